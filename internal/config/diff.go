package config

import (
	"reflect"
	"sort"
	"strings"

	logx "outagebot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Tokens and DSNs are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.OpsChatID != newCfg.Telegram.OpsChatID ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.ops_chat_set", newCfg.Telegram.OpsChatID != 0),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.ops_chat_enabled", newCfg.Logging.OpsChat.Enabled),
		)
	}

	// Storage cannot be swapped at runtime; report it so operators know a
	// restart is needed.
	if strings.TrimSpace(oldCfg.Storage.Driver) != strings.TrimSpace(newCfg.Storage.Driver) ||
		strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		oldCfg.Storage.DSN != newCfg.Storage.DSN ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
		)
	}

	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.kind", newCfg.Source.Kind),
			logx.String("source.url", newCfg.Source.URL),
			logx.String("source.path", newCfg.Source.Path),
		)
	}

	if !reflect.DeepEqual(oldCfg.Refresh, newCfg.Refresh) {
		changed = append(changed, "refresh")
		attrs = append(attrs,
			logx.String("refresh.interval", newCfg.Refresh.Interval),
			logx.String("refresh.timeout", newCfg.Refresh.Timeout),
		)
	}

	if oldCfg.Alerts != newCfg.Alerts {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.String("alerts.cron", newCfg.Alerts.Cron),
			logx.String("alerts.catchup_before", newCfg.Alerts.CatchupBefore),
			logx.String("alerts.catchup_start_end", newCfg.Alerts.CatchupStartEnd),
			logx.Int("alerts.purge_every_ticks", newCfg.Alerts.PurgeEveryTicks),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs, logx.Int("broadcast.artifact_min_start_hour", newCfg.Broadcast.ArtifactMinStartHour))
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.retry_max", newCfg.Notifier.RetryMax),
			logx.String("notifier.send_timeout", newCfg.Notifier.SendTimeout),
		)
	}

	// Ops (never log token)
	if oldCfg.Ops.Enabled != newCfg.Ops.Enabled ||
		strings.TrimSpace(oldCfg.Ops.Addr) != strings.TrimSpace(newCfg.Ops.Addr) ||
		oldCfg.Ops.AllowInsecure != newCfg.Ops.AllowInsecure ||
		oldCfg.Ops.Token != newCfg.Ops.Token {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
			logx.Bool("ops.allow_insecure", newCfg.Ops.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
