package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultTimezone        = "Europe/Kyiv"
	DefaultRefreshInterval = 30 * time.Minute
	DefaultAlertsCron      = "* * * * *"
	DefaultOpsAddr         = "127.0.0.1:9090"
)

// Settings are the parsed, validated values of a Config. Zero durations
// mean "use the component default".
type Settings struct {
	Location *time.Location

	PollTimeout time.Duration

	StorageBusyTimeout time.Duration

	SourceKind    string
	SourceTimeout time.Duration

	RefreshInterval   time.Duration
	RefreshOnStart    bool
	RefreshTimeout    time.Duration
	AlertsCron        string
	EarlyTolerance    time.Duration
	CatchupBefore     time.Duration
	CatchupStartEnd   time.Duration
	PurgeEveryTicks   int
	LedgerRetention   time.Duration
	ArtifactStartHour int

	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration

	OpsAddr string
}

// Resolve validates cfg and parses every duration, timezone and cron spec.
// All problems are reported together.
func Resolve(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, errors.New("config is nil")
	}
	var (
		s    Settings
		errs []error
	)
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := parseDuration(path, raw, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	s.Location = loc

	s.PollTimeout = dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if cfg.Logging.OpsChat.Enabled && cfg.Telegram.OpsChatID == 0 {
		errs = append(errs, errors.New("logging.ops_chat.enabled requires telegram.ops_chat_id"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required when storage.driver=sqlite"))
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required when storage.driver=postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver))
	}
	s.StorageBusyTimeout = dur("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)

	s.SourceKind = strings.ToLower(strings.TrimSpace(cfg.Source.Kind))
	switch s.SourceKind {
	case "":
		s.SourceKind = "hoe"
	case "hoe":
	case "file":
		if strings.TrimSpace(cfg.Source.Path) == "" {
			errs = append(errs, errors.New("source.path is required when source.kind=file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.kind: %s", cfg.Source.Kind))
	}
	s.SourceTimeout = dur("source.timeout", cfg.Source.Timeout, 0)

	s.RefreshInterval = dur("refresh.interval", cfg.Refresh.Interval, DefaultRefreshInterval)
	if s.RefreshInterval > 0 && s.RefreshInterval < time.Minute {
		errs = append(errs, errors.New("refresh.interval must be at least 1m"))
	}
	s.RefreshOnStart = cfg.Refresh.RunOnStart == nil || *cfg.Refresh.RunOnStart
	s.RefreshTimeout = dur("refresh.timeout", cfg.Refresh.Timeout, 2*time.Minute)

	s.AlertsCron = strings.TrimSpace(cfg.Alerts.Cron)
	if s.AlertsCron == "" {
		s.AlertsCron = DefaultAlertsCron
	}
	if _, err := cron.ParseStandard(s.AlertsCron); err != nil {
		errs = append(errs, fmt.Errorf("alerts.cron: %w", err))
	}
	s.EarlyTolerance = dur("alerts.early_tolerance", cfg.Alerts.EarlyTolerance, 30*time.Second)
	s.CatchupBefore = dur("alerts.catchup_before", cfg.Alerts.CatchupBefore, 5*time.Minute)
	s.CatchupStartEnd = dur("alerts.catchup_start_end", cfg.Alerts.CatchupStartEnd, 2*time.Minute)
	s.PurgeEveryTicks = cfg.Alerts.PurgeEveryTicks
	if s.PurgeEveryTicks < 0 {
		errs = append(errs, errors.New("alerts.purge_every_ticks must be >= 0"))
	}
	if s.PurgeEveryTicks == 0 {
		s.PurgeEveryTicks = 360
	}
	s.LedgerRetention = dur("alerts.retention", cfg.Alerts.Retention, 7*24*time.Hour)

	s.ArtifactStartHour = cfg.Broadcast.ArtifactMinStartHour
	if s.ArtifactStartHour < 0 || s.ArtifactStartHour > 23 {
		errs = append(errs, errors.New("broadcast.artifact_min_start_hour must be within 0..23"))
	}
	if s.ArtifactStartHour == 0 {
		s.ArtifactStartHour = 20
	}

	if cfg.Notifier.RatePerSec < 0 || cfg.Notifier.RetryMax < 0 {
		errs = append(errs, errors.New("notifier.rate_per_sec and notifier.retry_max must be >= 0"))
	}
	s.RetryBase = dur("notifier.retry_base", cfg.Notifier.RetryBase, 500*time.Millisecond)
	s.RetryMaxDelay = dur("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay, 10*time.Second)
	s.SendTimeout = dur("notifier.send_timeout", cfg.Notifier.SendTimeout, 15*time.Second)

	s.OpsAddr = strings.TrimSpace(cfg.Ops.Addr)
	if s.OpsAddr == "" {
		s.OpsAddr = DefaultOpsAddr
	}
	if cfg.Ops.Enabled {
		if err := checkOpsExposure(s.OpsAddr, cfg.Ops); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// checkOpsExposure refuses a non-loopback ops listener without a token
// unless allow_insecure is set.
func checkOpsExposure(addr string, ops OpsConfig) error {
	if strings.TrimSpace(ops.Token) != "" || ops.AllowInsecure {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("ops.addr: %w", err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("ops.addr %q is not loopback; set ops.token or ops.allow_insecure", addr)
}

// parseDuration reads a Go duration string at path. Empty and zero values
// fall back to def; negative values are rejected.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}
