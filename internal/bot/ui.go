package bot

import (
	"fmt"
	"strings"

	"outagebot/internal/schedule"
	kit "outagebot/internal/transport"
)

func btn(text, data string) kit.Button { return kit.Button{Text: text, Data: data} }

func mark(on bool) string {
	if on {
		return "✅"
	}
	return "☐"
}

func onOff(on bool) string {
	if on {
		return "увімкнено"
	}
	return "вимкнено"
}

func mainMenu() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]kit.Button{
		kit.Row(btn("Сьогодні", "SHOW:today"), btn("Завтра", "SHOW:tomorrow")),
		kit.Row(btn("Мої черги", "SHOW:myqueues"), btn("Керувати чергами", "MANAGE_QUEUES")),
		kit.Row(btn("⏳ Попередження", "OPEN_LEAD"), btn("⚙️ Налаштування", "OPEN_SETTINGS")),
	}}
}

func refreshKeyboard(day string) *kit.Keyboard {
	kb := mainMenu()
	kb.Rows = append([][]kit.Button{kit.Row(btn("Оновити", "REFRESH:"+day))}, kb.Rows...)
	return kb
}

func queuesKeyboard(selected []string) *kit.Keyboard {
	set := make(map[string]bool, len(selected))
	for _, q := range selected {
		set[q] = true
	}
	kb := &kit.Keyboard{}
	qs := schedule.KnownQueues
	for i := 0; i+1 < len(qs); i += 2 {
		a, b := qs[i], qs[i+1]
		kb.Rows = append(kb.Rows, kit.Row(
			btn(mark(set[a])+" "+a, "TOGGLE:"+a),
			btn(mark(set[b])+" "+b, "TOGGLE:"+b),
		))
	}
	kb.Rows = append(kb.Rows,
		kit.Row(btn("Очистити", "CLEAR_QUEUES"), btn("Готово", "DONE_QUEUES")),
		kit.Row(btn("Назад", "BACK_MAIN")),
	)
	return kb
}

var leadPresets = []int{5, 15, 30, 60}

func leadKeyboard(current int) *kit.Keyboard {
	label := func(n int) kit.Button {
		t := fmt.Sprintf("%d хв", n)
		if n == current {
			t = "✅ " + t
		}
		return btn(t, fmt.Sprintf("LEAD:%d", n))
	}
	return &kit.Keyboard{Rows: [][]kit.Button{
		kit.Row(label(leadPresets[0]), label(leadPresets[1])),
		kit.Row(label(leadPresets[2]), label(leadPresets[3])),
		kit.Row(btn("Назад", "BACK_MAIN")),
	}}
}

func settingsKeyboard(p schedule.Prefs) *kit.Keyboard {
	quiet := "вимкн."
	if p.Quiet.Enabled {
		quiet = "увімкн."
	}
	return &kit.Keyboard{Rows: [][]kit.Button{
		kit.Row(btn(fmt.Sprintf("⏳ Попереджати (%d хв)", p.LeadMinutes), "OPEN_LEAD")),
		kit.Row(
			btn(mark(p.NotifyBefore)+" До відключення", "TOGGLE_NOTIFY:before"),
			btn(mark(p.NotifyStart)+" Початок", "TOGGLE_NOTIFY:start"),
		),
		kit.Row(btn(mark(p.NotifyEnd)+" Кінець", "TOGGLE_NOTIFY:end")),
		kit.Row(btn(fmt.Sprintf("🌙 Тиша: %s (%s-%s)", quiet, p.Quiet.Start, p.Quiet.End), "OPEN_QUIET")),
		kit.Row(btn("Назад", "BACK_MAIN")),
	}}
}

var quietPresets = []string{"22:00-08:00", "23:00-07:00", "00:00-08:00", "21:00-09:00"}

func quietKeyboard(p schedule.Prefs) *kit.Keyboard {
	preset := func(r string) kit.Button {
		return btn(strings.Replace(r, "-", "–", 1), "QUIET_PRESET:"+r)
	}
	return &kit.Keyboard{Rows: [][]kit.Button{
		kit.Row(btn(mark(p.Quiet.Enabled)+" Увімкнути", "QUIET_ON"), btn(mark(!p.Quiet.Enabled)+" Вимкнути", "QUIET_OFF")),
		kit.Row(preset(quietPresets[0]), preset(quietPresets[1])),
		kit.Row(preset(quietPresets[2]), preset(quietPresets[3])),
		kit.Row(btn("Назад", "OPEN_SETTINGS")),
	}}
}

func settingsText(p schedule.Prefs) string {
	return "⚙️ Налаштування сповіщень\n\n" +
		fmt.Sprintf("Попередження: %d хв\n", p.LeadMinutes) +
		"До відключення: " + onOff(p.NotifyBefore) + "\n" +
		"Початок: " + onOff(p.NotifyStart) + "\n" +
		"Кінець: " + onOff(p.NotifyEnd) + "\n" +
		fmt.Sprintf("Тиша: %s (%s-%s)", onOff(p.Quiet.Enabled), p.Quiet.Start, p.Quiet.End)
}

func quietText(p schedule.Prefs) string {
	return fmt.Sprintf("🌙 Тиша: %s (%s–%s)", onOff(p.Quiet.Enabled), p.Quiet.Start, p.Quiet.End)
}

func myQueuesText(queues []string) string {
	if len(queues) == 0 {
		return "Підписок немає. Додай: \"Керувати чергами\"."
	}
	return "Твої черги: " + strings.Join(queues, ", ")
}

func manageQueuesText(queues []string) string {
	if len(queues) == 0 {
		return "Підписок немає.\n\nНатискай, щоб додати:"
	}
	return "Твої черги: " + strings.Join(queues, ", ") + "\n\nНатискай, щоб додати/зняти:"
}

const (
	textStart   = "Привіт! Обери дію кнопками або командами."
	textNoSubs  = "Підписок немає. Додай черги натиснувши \"Керувати чергами\"."
	textBusy    = "Зайнято, спробуй ще раз."
	textUnknown = "Невідома команда. Спробуй /help"
	textFailed  = "Помилка, спробуй пізніше."
)
