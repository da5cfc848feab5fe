package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "30s", "5m", "168h"); they
// are parsed and validated by Resolve.
type Config struct {
	// Timezone is the schedule timezone. Default: Europe/Kyiv.
	Timezone string `json:"timezone,omitempty"`

	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Source    SourceConfig    `json:"source"`
	Refresh   RefreshConfig   `json:"refresh"`
	Alerts    AlertsConfig    `json:"alerts"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Notifier  NotifierConfig  `json:"notifier"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// OpsChatID receives operator log lines when logging.ops_chat is enabled.
	OpsChatID int64 `json:"ops_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	OpsChat LoggingOpsChat `json:"ops_chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingOpsChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/outagebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// SourceConfig selects where schedules come from: "hoe" (the utility web
// page) or "file" (a local JSON/YAML document).
type SourceConfig struct {
	Kind      string `json:"kind"`
	URL       string `json:"url,omitempty"`
	Path      string `json:"path,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type RefreshConfig struct {
	Interval string `json:"interval,omitempty"` // default "30m"
	// RunOnStart is a pointer so an omitted value defaults to true.
	RunOnStart *bool  `json:"run_on_start,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type AlertsConfig struct {
	Cron            string `json:"cron,omitempty"`              // default "* * * * *"
	EarlyTolerance  string `json:"early_tolerance,omitempty"`   // default "30s"
	CatchupBefore   string `json:"catchup_before,omitempty"`    // default "5m"
	CatchupStartEnd string `json:"catchup_start_end,omitempty"` // default "2m"
	PurgeEveryTicks int    `json:"purge_every_ticks,omitempty"` // default 360
	Retention       string `json:"retention,omitempty"`         // default "168h"
}

type BroadcastConfig struct {
	ArtifactMinStartHour int `json:"artifact_min_start_hour,omitempty"` // default 20
}

type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	SendTimeout   string `json:"send_timeout"`
}

// OpsConfig controls the operational HTTP server (health, metrics, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
