// Package systemd speaks the sd_notify protocol to the service manager.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "outagebot/pkg/logx"
)

// Ready tells systemd that startup finished (Type=notify units).
func Ready(log logx.Logger) {
	notify(log, daemon.SdNotifyReady)
}

// Stopping tells systemd that shutdown began.
func Stopping(log logx.Logger) {
	notify(log, daemon.SdNotifyStopping)
}

// Status publishes a one-line status shown by `systemctl status`.
func Status(log logx.Logger, text string) {
	notify(log, "STATUS="+text)
}

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// WatchdogInterval returns how often to ping the watchdog, 0 when
// WatchdogSec is not configured for this unit.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings the watchdog every interval until ctx is done. healthy
// may veto a ping; a missed ping lets systemd restart the unit.
func Watchdog(ctx context.Context, interval time.Duration, healthy func() bool, log logx.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if healthy != nil && !healthy() {
				log.Warn("watchdog ping withheld: unhealthy")
				continue
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("watchdog ping failed", logx.Err(err))
			}
		}
	}
}
