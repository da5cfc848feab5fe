package app

import (
	"context"
	"fmt"

	"outagebot/internal/alerts"
	"outagebot/internal/bot"
	"outagebot/internal/broadcast"
	"outagebot/internal/config"
	"outagebot/internal/notifier"
	"outagebot/internal/refresh"
	"outagebot/internal/storage"
	"outagebot/internal/task"
	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

// components are the domain services shared by the daemon and the one-shot
// commands.
type components struct {
	store      storage.Store
	notif      *notifier.Service
	refresher  *refresh.Refresher
	dispatcher *broadcast.Dispatcher
	alerts     *alerts.Scheduler
	bot        *bot.Bot
}

func wire(cfg *config.Config, set config.Settings, store storage.Store, adapter kit.Adapter, log logx.Logger) *components {
	notif := notifier.New(mapNotifierConfig(cfg, set), adapter, log.With(logx.String("comp", "notifier")))
	return &components{
		store:      store,
		notif:      notif,
		refresher:  refresh.New(newSource(cfg, set, log), store, log.With(logx.String("comp", "refresh"))),
		dispatcher: broadcast.New(mapBroadcastConfig(set), store, notif, log.With(logx.String("comp", "broadcast"))),
		alerts:     alerts.New(mapAlertsConfig(set), store, notif, log.With(logx.String("comp", "alerts"))),
		bot:        bot.New(mapBotConfig(set), store, adapter, log.With(logx.String("comp", "bot"))),
	}
}

// refreshCycle runs one refresh and hands a changed result to the
// broadcast dispatcher.
func (c *components) refreshCycle(ctx context.Context) (refresh.Result, error) {
	res, err := c.refresher.RunOnce(ctx)
	if err != nil {
		return res, err
	}
	if !res.Changed {
		return res, nil
	}
	if err := c.dispatcher.Handle(ctx, res); err != nil {
		return res, fmt.Errorf("broadcast: %w", err)
	}
	return res, nil
}

// schedule registers the two periodic drivers on r. The alerts tick has no
// run deadline; a tick still in flight makes the runner skip the next one.
func (c *components) schedule(r *task.Runner, set config.Settings) error {
	if err := r.AddInterval(taskRefresh, set.RefreshInterval, set.RefreshTimeout, func(ctx context.Context) error {
		_, err := c.refreshCycle(ctx)
		return err
	}); err != nil {
		return err
	}
	return r.AddCron(taskAlerts, set.AlertsCron, 0, c.alerts.Tick)
}

// loadConfig reads the file, applies env overrides and resolves settings.
func loadConfig(path string) (*config.ConfigManager, *config.Config, config.Settings, error) {
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, config.Settings{}, err
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		return nil, nil, config.Settings{}, err
	}
	return cfgm, cfg, set, nil
}

// Migrate opens storage, which applies pending migrations, and closes it.
func Migrate(ctx context.Context, cfgPath string) error {
	_, cfg, set, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	logs, log := logx.New(mapLoggingConfig(withoutOpsChat(cfg)), nil)
	defer logs.Close()

	sc := mapStorageConfig(cfg, set)
	st, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	log.Info("storage migrated", logx.String("driver", sc.Driver))
	return st.Close()
}

// withoutOpsChat returns a copy with chat logging off, for bootstrapping
// before the transport exists.
func withoutOpsChat(cfg *config.Config) *config.Config {
	c := *cfg
	c.Logging.OpsChat.Enabled = false
	return &c
}
