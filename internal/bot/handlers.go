package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"outagebot/internal/schedule"
	"outagebot/internal/snapshot"
	kit "outagebot/internal/transport"
)

func (b *Bot) commandList() []Command {
	return []Command{
		{Name: "start", Description: "головне меню", Handle: b.cmdStart},
		{Name: "help", Description: "довідка", Handle: b.cmdHelp},
		{Name: "subscribe", Description: "підписатися на черги", Usage: "/subscribe 1.1 5.2", Handle: b.cmdSubscribe},
		{Name: "unsubscribe", Description: "відписатися від черг", Usage: "/unsubscribe 1.1 | all", Handle: b.cmdUnsubscribe},
		{Name: "myqueues", Description: "мої черги", Handle: b.cmdMyQueues},
		{Name: "today", Description: "графік на сьогодні", Handle: b.cmdDay(false)},
		{Name: "tomorrow", Description: "графік на завтра", Handle: b.cmdDay(true)},
		{Name: "lead", Description: "за скільки хвилин попереджати", Usage: "/lead 30", Handle: b.cmdLead},
		{Name: "notify", Description: "увімкнути/вимкнути тип сповіщень", Usage: "/notify before|start|end on|off", Handle: b.cmdNotify},
		{Name: "quiet", Description: "тиша (не турбувати)", Usage: "/quiet on|off|22:00-08:00", Handle: b.cmdQuiet},
		{Name: "settings", Description: "налаштування сповіщень", Handle: b.cmdSettings},
	}
}

func (b *Bot) callbackRoutes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"SHOW":          b.cbShow,
		"REFRESH":       b.cbRefresh,
		"BACK_MAIN":     b.cbBackMain,
		"MANAGE_QUEUES": b.cbManageQueues,
		"TOGGLE":        b.cbToggleQueue,
		"CLEAR_QUEUES":  b.cbClearQueues,
		"DONE_QUEUES":   b.cbDoneQueues,
		"OPEN_SETTINGS": b.cbOpenSettings,
		"TOGGLE_NOTIFY": b.cbToggleNotify,
		"OPEN_LEAD":     b.cbOpenLead,
		"LEAD":          b.cbLead,
		"OPEN_QUIET":    b.cbOpenQuiet,
		"QUIET_ON":      b.cbQuietSwitch(true),
		"QUIET_OFF":     b.cbQuietSwitch(false),
		"QUIET_PRESET":  b.cbQuietPreset,
	}
}

// ---- commands ----

func (b *Bot) cmdStart(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, textStart, mainMenu())
}

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	var sb strings.Builder
	sb.WriteString("Команди:\n")
	for _, c := range b.ordered {
		sb.WriteString("/" + c.Name + " — " + c.Description)
		if c.Usage != "" {
			sb.WriteString(" (" + c.Usage + ")")
		}
		sb.WriteString("\n")
	}
	return b.reply(ctx, req, strings.TrimRight(sb.String(), "\n"), nil)
}

func (b *Bot) cmdSubscribe(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return b.reply(ctx, req, "Використання: /subscribe 1.1 5.2", nil)
	}
	var invalid []string
	for _, q := range req.Args {
		if !schedule.ValidQueue(q) {
			invalid = append(invalid, q)
		}
	}
	if len(invalid) > 0 {
		return b.reply(ctx, req, fmt.Sprintf("Некоректні черги: %s. Приклад: 1.1", strings.Join(invalid, ", ")), nil)
	}
	for _, q := range req.Args {
		if err := b.store.AddSubscription(ctx, req.ChatID, q); err != nil {
			return err
		}
	}
	queues, err := b.store.ListQueues(ctx, req.ChatID)
	if err != nil {
		return err
	}
	return b.reply(ctx, req, "Підписано: "+strings.Join(queues, ", "), mainMenu())
}

func (b *Bot) cmdUnsubscribe(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return b.reply(ctx, req, "Використання: /unsubscribe 1.1 5.2 або /unsubscribe all", nil)
	}
	if len(req.Args) == 1 && strings.EqualFold(req.Args[0], "all") {
		if err := b.store.ClearSubscriptions(ctx, req.ChatID); err != nil {
			return err
		}
	} else {
		for _, q := range req.Args {
			if err := b.store.RemoveSubscription(ctx, req.ChatID, q); err != nil {
				return err
			}
		}
	}
	queues, err := b.store.ListQueues(ctx, req.ChatID)
	if err != nil {
		return err
	}
	if len(queues) == 0 {
		return b.reply(ctx, req, "Підписок немає.", mainMenu())
	}
	return b.reply(ctx, req, "Залишились: "+strings.Join(queues, ", "), mainMenu())
}

func (b *Bot) cmdMyQueues(ctx context.Context, req *Request) error {
	queues, err := b.store.ListQueues(ctx, req.ChatID)
	if err != nil {
		return err
	}
	return b.reply(ctx, req, myQueuesText(queues), mainMenu())
}

func (b *Bot) cmdDay(tomorrow bool) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		text, kb, err := b.dayView(ctx, req.ChatID, tomorrow)
		if err != nil {
			return err
		}
		return b.reply(ctx, req, text, kb)
	}
}

func (b *Bot) cmdLead(ctx context.Context, req *Request) error {
	usage := "Використання: /lead 30 (0..180 хв)"
	if len(req.Args) != 1 {
		return b.reply(ctx, req, usage, nil)
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return b.reply(ctx, req, usage, nil)
	}
	p, err := b.store.UpdatePrefs(ctx, req.ChatID, schedule.PrefsPatch{LeadMinutes: &n})
	if errors.Is(err, schedule.ErrInvalidLead) {
		return b.reply(ctx, req, usage, nil)
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, req, fmt.Sprintf("Готово. Попереджатиму за %d хв.", p.LeadMinutes), nil)
}

func (b *Bot) cmdNotify(ctx context.Context, req *Request) error {
	usage := "Використання: /notify before|start|end on|off"
	if len(req.Args) != 2 {
		return b.reply(ctx, req, usage, nil)
	}
	var on bool
	switch strings.ToLower(req.Args[1]) {
	case "on":
		on = true
	case "off":
	default:
		return b.reply(ctx, req, usage, nil)
	}
	patch, ok := notifyPatch(strings.ToLower(req.Args[0]), on)
	if !ok {
		return b.reply(ctx, req, usage, nil)
	}
	p, err := b.store.UpdatePrefs(ctx, req.ChatID, patch)
	if err != nil {
		return err
	}
	return b.reply(ctx, req, settingsText(p), settingsKeyboard(p))
}

func (b *Bot) cmdQuiet(ctx context.Context, req *Request) error {
	usage := "Використання: /quiet on, /quiet off або /quiet 22:00-08:00"
	if len(req.Args) != 1 {
		return b.reply(ctx, req, usage, nil)
	}
	var patch schedule.PrefsPatch
	switch arg := strings.ToLower(req.Args[0]); arg {
	case "on", "off":
		on := arg == "on"
		patch.QuietEnabled = &on
	default:
		start, end, err := schedule.ParseQuietRange(arg)
		if err != nil {
			return b.reply(ctx, req, "Некоректно. Приклад: 22:00-08:00", nil)
		}
		patch.QuietStart, patch.QuietEnd = &start, &end
	}
	p, err := b.store.UpdatePrefs(ctx, req.ChatID, patch)
	if err != nil {
		return err
	}
	return b.reply(ctx, req, "✅ Збережено. "+quietText(p), quietKeyboard(p))
}

func (b *Bot) cmdSettings(ctx context.Context, req *Request) error {
	p, err := b.store.GetPrefs(ctx, req.ChatID)
	if err != nil {
		return err
	}
	return b.reply(ctx, req, settingsText(p), settingsKeyboard(p))
}

// ---- callbacks ----

func (b *Bot) cbShow(ctx context.Context, req *Request) error {
	switch req.Payload {
	case "today", "tomorrow":
		text, kb, err := b.dayView(ctx, req.ChatID, req.Payload == "tomorrow")
		if err != nil {
			return err
		}
		return b.reply(ctx, req, text, kb)
	case "myqueues":
		return b.cmdMyQueues(ctx, req)
	}
	return nil
}

func (b *Bot) cbRefresh(ctx context.Context, req *Request) error {
	if req.Payload != "today" && req.Payload != "tomorrow" {
		return nil
	}
	text, kb, err := b.dayView(ctx, req.ChatID, req.Payload == "tomorrow")
	if err != nil {
		return err
	}
	return b.edit(ctx, req, text, kb)
}

func (b *Bot) cbBackMain(ctx context.Context, req *Request) error {
	return b.edit(ctx, req, "Меню:", mainMenu())
}

func (b *Bot) cbManageQueues(ctx context.Context, req *Request) error {
	queues, err := b.store.ListQueues(ctx, req.ChatID)
	if err != nil {
		return err
	}
	return b.reply(ctx, req, manageQueuesText(queues), queuesKeyboard(queues))
}

func (b *Bot) cbToggleQueue(ctx context.Context, req *Request) error {
	q := req.Payload
	if !schedule.ValidQueue(q) {
		return schedule.ErrInvalidQueue
	}
	queues, err := b.store.ListQueues(ctx, req.ChatID)
	if err != nil {
		return err
	}
	subscribed := false
	for _, cur := range queues {
		if cur == q {
			subscribed = true
			break
		}
	}
	if subscribed {
		err = b.store.RemoveSubscription(ctx, req.ChatID, q)
	} else {
		err = b.store.AddSubscription(ctx, req.ChatID, q)
	}
	if err != nil {
		return err
	}
	return b.refreshQueues(ctx, req)
}

func (b *Bot) cbClearQueues(ctx context.Context, req *Request) error {
	if err := b.store.ClearSubscriptions(ctx, req.ChatID); err != nil {
		return err
	}
	return b.refreshQueues(ctx, req)
}

func (b *Bot) refreshQueues(ctx context.Context, req *Request) error {
	queues, err := b.store.ListQueues(ctx, req.ChatID)
	if err != nil {
		return err
	}
	return b.edit(ctx, req, manageQueuesText(queues), queuesKeyboard(queues))
}

func (b *Bot) cbDoneQueues(ctx context.Context, req *Request) error {
	return b.edit(ctx, req, "Готово ✅", mainMenu())
}

func (b *Bot) cbOpenSettings(ctx context.Context, req *Request) error {
	return b.cmdSettings(ctx, req)
}

func (b *Bot) cbToggleNotify(ctx context.Context, req *Request) error {
	cur, err := b.store.GetPrefs(ctx, req.ChatID)
	if err != nil {
		return err
	}
	var on bool
	switch req.Payload {
	case "before":
		on = !cur.NotifyBefore
	case "start":
		on = !cur.NotifyStart
	case "end":
		on = !cur.NotifyEnd
	}
	patch, ok := notifyPatch(req.Payload, on)
	if !ok {
		return nil
	}
	p, err := b.store.UpdatePrefs(ctx, req.ChatID, patch)
	if err != nil {
		return err
	}
	return b.edit(ctx, req, settingsText(p), settingsKeyboard(p))
}

func (b *Bot) cbOpenLead(ctx context.Context, req *Request) error {
	p, err := b.store.GetPrefs(ctx, req.ChatID)
	if err != nil {
		return err
	}
	return b.reply(ctx, req, fmt.Sprintf("⏳ За скільки хвилин попереджати?\n\nЗараз: %d хв", p.LeadMinutes), leadKeyboard(p.LeadMinutes))
}

func (b *Bot) cbLead(ctx context.Context, req *Request) error {
	n, err := strconv.Atoi(req.Payload)
	if err != nil {
		return b.reply(ctx, req, "Некоректне значення. Доступно 0..180 хв.", mainMenu())
	}
	p, err := b.store.UpdatePrefs(ctx, req.ChatID, schedule.PrefsPatch{LeadMinutes: &n})
	if errors.Is(err, schedule.ErrInvalidLead) {
		return b.reply(ctx, req, "Некоректне значення. Доступно 0..180 хв.", mainMenu())
	}
	if err != nil {
		return err
	}
	return b.edit(ctx, req, fmt.Sprintf("✅ Готово. Попереджатиму за %d хв.\n\nМожеш змінити тут:", p.LeadMinutes), leadKeyboard(p.LeadMinutes))
}

func (b *Bot) cbOpenQuiet(ctx context.Context, req *Request) error {
	p, err := b.store.GetPrefs(ctx, req.ChatID)
	if err != nil {
		return err
	}
	text := "🌙 Тиша (не турбувати)\n\n" +
		"Статус: " + onOff(p.Quiet.Enabled) + "\n" +
		"Період: " + p.Quiet.Start + "–" + p.Quiet.End + "\n\n" +
		"Під час тиші сповіщення не надсилатимуться."
	return b.reply(ctx, req, text, quietKeyboard(p))
}

func (b *Bot) cbQuietSwitch(on bool) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		p, err := b.store.UpdatePrefs(ctx, req.ChatID, schedule.PrefsPatch{QuietEnabled: &on})
		if err != nil {
			return err
		}
		return b.edit(ctx, req, quietText(p), quietKeyboard(p))
	}
}

func (b *Bot) cbQuietPreset(ctx context.Context, req *Request) error {
	start, end, err := schedule.ParseQuietRange(req.Payload)
	if err != nil {
		return err
	}
	p, err := b.store.UpdatePrefs(ctx, req.ChatID, schedule.PrefsPatch{QuietStart: &start, QuietEnd: &end})
	if err != nil {
		return err
	}
	return b.edit(ctx, req, quietText(p), quietKeyboard(p))
}

// ---- helpers ----

func notifyPatch(kind string, on bool) (schedule.PrefsPatch, bool) {
	var p schedule.PrefsPatch
	switch kind {
	case "before":
		p.NotifyBefore = &on
	case "start":
		p.NotifyStart = &on
	case "end":
		p.NotifyEnd = &on
	default:
		return p, false
	}
	return p, true
}

// dayView renders the chat's subscribed queues for today or tomorrow from
// the stored snapshots.
func (b *Bot) dayView(ctx context.Context, chatID int64, tomorrow bool) (string, *kit.Keyboard, error) {
	queues, err := b.store.ListQueues(ctx, chatID)
	if err != nil {
		return "", nil, err
	}
	if len(queues) == 0 {
		return textNoSubs, mainMenu(), nil
	}
	date := schedule.DateOf(b.now(), b.cfg.Location)
	day := "today"
	if tomorrow {
		day = "tomorrow"
		if date, err = schedule.AddDays(date, 1); err != nil {
			return "", nil, err
		}
	}
	payloads := make([]schedule.Payload, 0, len(queues))
	for _, q := range queues {
		p, ok, err := snapshot.Load(ctx, b.store, date, q)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			p = schedule.Payload{Date: date, Queue: q}
		}
		payloads = append(payloads, p)
	}
	return schedule.FormatDayView(tomorrow, date, payloads), refreshKeyboard(day), nil
}
