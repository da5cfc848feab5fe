package app

import (
	"outagebot/internal/alerts"
	"outagebot/internal/bot"
	"outagebot/internal/broadcast"
	"outagebot/internal/config"
	"outagebot/internal/notifier"
	"outagebot/internal/ops"
	"outagebot/internal/refresh"
	"outagebot/internal/source/file"
	"outagebot/internal/source/hoe"
	"outagebot/internal/transport/telegram"
	logx "outagebot/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		OpsChat: logx.OpsChatConfig{
			Enabled:    cfg.Logging.OpsChat.Enabled,
			ChatID:     cfg.Telegram.OpsChatID,
			MinLevel:   cfg.Logging.OpsChat.MinLevel,
			RatePerSec: cfg.Logging.OpsChat.RatePerSec,
		},
	}
}

func mapTelegramConfig(cfg *config.Config, set config.Settings) telegram.Config {
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: set.PollTimeout}
}

func mapNotifierConfig(cfg *config.Config, set config.Settings) notifier.Config {
	return notifier.Config{
		RatePerSec:    cfg.Notifier.RatePerSec,
		RetryMax:      cfg.Notifier.RetryMax,
		RetryBase:     set.RetryBase,
		RetryMaxDelay: set.RetryMaxDelay,
		SendTimeout:   set.SendTimeout,
	}
}

func mapAlertsConfig(set config.Settings) alerts.Config {
	return alerts.Config{
		Location:        set.Location,
		EarlyTolerance:  set.EarlyTolerance,
		CatchupBefore:   set.CatchupBefore,
		CatchupStartEnd: set.CatchupStartEnd,
		PruneEvery:      set.PurgeEveryTicks,
		Retention:       set.LedgerRetention,
	}
}

func mapBroadcastConfig(set config.Settings) broadcast.Config {
	return broadcast.Config{Location: set.Location, ArtifactMinStartHour: set.ArtifactStartHour}
}

func mapBotConfig(set config.Settings) bot.Config {
	return bot.Config{Location: set.Location}
}

func mapOpsConfig(cfg *config.Config, set config.Settings) ops.Config {
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          set.OpsAddr,
		Token:         cfg.Ops.Token,
		AllowInsecure: cfg.Ops.AllowInsecure,
	}
}

// newSource builds the schedule source named by source.kind.
func newSource(cfg *config.Config, set config.Settings, log logx.Logger) refresh.Source {
	log = log.With(logx.String("comp", "source"), logx.String("kind", set.SourceKind))
	if set.SourceKind == "file" {
		return file.New(cfg.Source.Path, log)
	}
	return hoe.New(hoe.Config{
		URL:       cfg.Source.URL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   set.SourceTimeout,
	}, log)
}
