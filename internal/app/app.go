package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"outagebot/internal/config"
	"outagebot/internal/ops"
	"outagebot/internal/refresh"
	rtsup "outagebot/internal/runtime/supervisor"
	"outagebot/internal/storage"
	"outagebot/internal/task"
	kit "outagebot/internal/transport"
	"outagebot/internal/transport/telegram"
	logx "outagebot/pkg/logx"
	"outagebot/pkg/systemd"
)

const (
	taskRefresh = "schedule.refresh"
	taskAlerts  = "alerts.tick"
)

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	set  config.Settings

	sup  *rtsup.Supervisor
	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	*components
	tasks *task.Runner
	ops   *ops.Server

	updates chan kit.Update
}

// New loads configuration and builds every component. Nothing runs until
// Start; the one-shot methods (RefreshOnce, TickOnce, Prune) work without
// Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm, cfg, set, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	// Ops-chat logging needs the transport; bootstrap without it, then
	// attach the sender and apply the final config.
	logs, log := logx.New(mapLoggingConfig(withoutOpsChat(cfg)), nil)
	log = log.With(logx.String("comp", "app"))

	ad, err := telegram.New(mapTelegramConfig(cfg, set), log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logs.SetSender(ad)
	logs.Apply(mapLoggingConfig(cfg))

	sc := mapStorageConfig(cfg, set)
	store, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	return &App{
		cfgm:       cfgm,
		cfg:        cfg,
		set:        set,
		log:        log,
		logs:       logs,
		adapter:    ad,
		components: wire(cfg, set, store, ad, log),
		tasks:      task.New(set.Location, log.With(logx.String("comp", "tasks"))),
		updates:    make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RefreshOnce runs one refresh cycle followed by change broadcasts.
func (a *App) RefreshOnce(ctx context.Context) (refresh.Result, error) {
	return a.refreshCycle(ctx)
}

// TickOnce runs one notification scheduler pass.
func (a *App) TickOnce(ctx context.Context) error {
	return a.alerts.Tick(ctx)
}

// Prune purges ledger rows older than the retention.
func (a *App) Prune(ctx context.Context) (int64, error) {
	return a.alerts.Prune(ctx)
}

// Close releases storage and logging for one-shot runs that never called
// Start.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	if err := a.schedule(a.tasks, a.set); err != nil {
		return err
	}
	if a.set.RefreshOnStart {
		a.tasks.RunNow(taskRefresh)
	}

	a.ops = ops.New(mapOpsConfig(a.cfg, a.set), ops.Deps{
		Store:       a.store,
		Tasks:       a.tasks.Snapshot,
		Supervisors: a.supervisorStats,
		Deliveries:  a.notif.History,
	}, a.log.With(logx.String("comp", "ops")))
	a.ops.Start(a.sup.Context())

	a.startConfigReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.Watchdog(c, iv, a.healthy, a.log)
		})
	}
	systemd.Ready(a.log)
	systemd.Status(a.log, "running")

	a.log.Info("app started",
		logx.String("tz", a.set.Location.String()),
		logx.String("source", a.set.SourceKind),
		logx.Duration("refresh_interval", a.set.RefreshInterval),
		logx.String("alerts_cron", a.set.AlertsCron),
	)
	return nil
}

// healthy gates watchdog pings on storage reachability.
func (a *App) healthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.store.Ping(ctx) == nil
}

func (a *App) supervisorStats() map[string][]rtsup.Stats {
	out := map[string][]rtsup.Stats{}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if s := a.adapter.Supervisor(); s != nil {
		out["telegram"] = s.Snapshot()
	}
	if a.ops != nil {
		if s := a.ops.Supervisor(); s != nil {
			out["ops"] = s.Snapshot()
		}
	}
	return out
}

// startConfigReload applies what can change live (logging, notifier) and
// warns about the rest.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	set, err := config.Resolve(next)
	if err != nil {
		// The watcher validates before publishing; this is a last guard.
		a.log.Warn("reloaded config invalid; keeping previous", logx.Err(err))
		return
	}

	var restart []string
	for _, s := range sections {
		switch s {
		case "logging", "telegram":
			a.logs.Apply(mapLoggingConfig(next))
			if s == "telegram" {
				restart = append(restart, s)
			}
		case "notifier":
			a.notif.Apply(mapNotifierConfig(next, set))
		default:
			restart = append(restart, s)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping(a.log)

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step bounds one shutdown step so it cannot stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, max(time.Until(dl), 0))
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("tasks", 3*time.Second, func(c context.Context) error {
		a.tasks.Stop()
		return a.tasks.Wait(c)
	})
	step("ops", time.Second, func(c context.Context) error {
		if a.ops != nil {
			a.ops.Stop(c)
		}
		return nil
	})
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
