// Package bot is the chat command UI: queue subscriptions, day views and
// notification preferences. It reads the same stores the alert scheduler
// and broadcast dispatcher use.
package bot

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"outagebot/internal/metrics"
	rtsup "outagebot/internal/runtime/supervisor"
	"outagebot/internal/storage"
	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

// Store is what the command handlers read and write.
type Store interface {
	storage.SnapshotStore
	storage.Subscriptions
	storage.PrefsStore
}

type Config struct {
	Location       *time.Location
	Workers        int
	QueueSize      int
	CommandTimeout time.Duration
}

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handle      HandlerFunc
}

type Request struct {
	ChatID     int64
	FromID     int64
	MessageID  int
	CallbackID string
	Command    string
	Args       []string
	Payload    string
}

// IsCallback reports whether the request came from an inline button.
func (r *Request) IsCallback() bool { return r.CallbackID != "" }

type Bot struct {
	cfg     Config
	store   Store
	adapter kit.Adapter
	log     logx.Logger
	now     func() time.Time

	commands  map[string]*Command
	ordered   []*Command
	callbacks map[string]HandlerFunc

	jobs chan func()
}

func New(cfg Config, store Store, adapter kit.Adapter, log logx.Logger) *Bot {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Workers <= 0 {
		cfg.Workers = max(2, runtime.NumCPU())
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		cfg:     cfg,
		store:   store,
		adapter: adapter,
		log:     log,
		now:     time.Now,
		jobs:    make(chan func(), cfg.QueueSize),
	}
	b.register()
	return b
}

// SetClock replaces the clock; used by tests.
func (b *Bot) SetClock(now func() time.Time) { b.now = now }

func (b *Bot) register() {
	b.commands = map[string]*Command{}
	b.ordered = nil
	for _, c := range b.commandList() {
		c := c
		b.ordered = append(b.ordered, &c)
		b.commands[c.Name] = &c
		for _, a := range c.Aliases {
			b.commands[a] = &c
		}
	}
	sort.Slice(b.ordered, func(i, j int) bool { return b.ordered[i].Name < b.ordered[j].Name })
	b.callbacks = b.callbackRoutes()
}

// MenuCommands is the list published to the chat client's command menu.
func (b *Bot) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(b.ordered))
	for _, c := range b.ordered {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// Run consumes updates with a bounded worker pool until ctx is done or
// updates is closed.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(b.log.With(logx.String("comp", "bot.workers"))))
	for i := 0; i < b.cfg.Workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-b.jobs:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	if up, ok := b.adapter.(kit.CommandMenuUpdater); ok {
		sup.Go("menu.update", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, b.MenuCommands()); err != nil {
				b.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	b.log.Info("command dispatcher started", logx.Int("workers", b.cfg.Workers), logx.Int("job_queue_cap", cap(b.jobs)))
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		b.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := b.route(ctx, up)
			if job == nil {
				continue
			}
			select {
			case b.jobs <- job:
			default:
				b.busy(ctx, up)
			}
		}
	}
}

func (b *Bot) busy(ctx context.Context, up kit.Update) {
	switch {
	case up.Callback != nil:
		_ = b.adapter.AnswerCallback(ctx, up.Callback.ID, textBusy)
	case up.Message != nil:
		_, _ = b.adapter.SendText(ctx, kit.ChatTarget{ChatID: up.Message.ChatID}, textBusy, nil)
	}
}

// route resolves an update to a runnable job, or nil when there is nothing
// to do.
func (b *Bot) route(ctx context.Context, up kit.Update) func() {
	switch up.Kind {
	case kit.UpdateMessage:
		return b.routeMessage(ctx, up.Message)
	case kit.UpdateCallback:
		return b.routeCallback(ctx, up.Callback)
	}
	return nil
}

func (b *Bot) wrap(h HandlerFunc) HandlerFunc {
	return Chain(h, MWPanicRecover(b.log), MWRequestLog(b.log), MWTimeout(b.cfg.CommandTimeout))
}

func (b *Bot) routeMessage(ctx context.Context, msg *kit.Message) func() {
	if msg == nil {
		return nil
	}
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil
	}
	word := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	req := &Request{ChatID: msg.ChatID, FromID: msg.FromID, MessageID: msg.ID, Command: word, Args: fields[1:]}

	cmd, ok := b.commands[word]
	if !ok {
		metrics.Commands.WithLabelValues("unknown", "unknown").Inc()
		return func() { _ = b.reply(ctx, req, textUnknown, nil) }
	}
	req.Command = cmd.Name
	h := b.wrap(cmd.Handle)
	return func() {
		if err := h(ctx, req); err != nil {
			_ = b.reply(ctx, req, textFailed, nil)
		}
	}
}

func (b *Bot) routeCallback(ctx context.Context, cb *kit.Callback) func() {
	if cb == nil {
		return nil
	}
	action, payload, _ := strings.Cut(strings.TrimSpace(cb.Data), ":")
	h, ok := b.callbacks[action]
	if !ok {
		return func() { _ = b.adapter.AnswerCallback(ctx, cb.ID, "") }
	}
	req := &Request{
		ChatID:     cb.ChatID,
		FromID:     cb.FromID,
		MessageID:  cb.MessageID,
		CallbackID: cb.ID,
		Command:    "cb:" + action,
		Payload:    payload,
	}
	h = b.wrap(h)
	return func() {
		err := h(ctx, req)
		text := ""
		if err != nil {
			text = textFailed
		}
		_ = b.adapter.AnswerCallback(ctx, cb.ID, text)
	}
}

func (b *Bot) reply(ctx context.Context, req *Request, text string, kb *kit.Keyboard) error {
	_, err := b.adapter.SendText(ctx, kit.ChatTarget{ChatID: req.ChatID}, text, &kit.SendOptions{DisablePreview: true, Keyboard: kb})
	return err
}

// edit replaces the message a button was pressed on. An unchanged message
// is not an error; any other failure falls back to a new message.
func (b *Bot) edit(ctx context.Context, req *Request, text string, kb *kit.Keyboard) error {
	if !req.IsCallback() || req.MessageID == 0 {
		return b.reply(ctx, req, text, kb)
	}
	ref := kit.MessageRef{ChatID: req.ChatID, MessageID: req.MessageID}
	err := b.adapter.EditText(ctx, ref, text, &kit.SendOptions{DisablePreview: true, Keyboard: kb})
	if err == nil || strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
		return nil
	}
	b.log.Debug("edit failed; sending new message", logx.Err(err))
	return b.reply(ctx, req, text, kb)
}
