// Package systemd reports service state to the service manager through
// sd_notify. Outside a systemd unit every call is a cheap no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "habitbot/pkg/logx"
)

type Notifier struct {
	log logx.Logger

	notify          func(unsetEnvironment bool, state string) (bool, error)
	watchdogEnabled func(unsetEnvironment bool) (time.Duration, error)
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log, notify: daemon.SdNotify, watchdogEnabled: daemon.SdWatchdogEnabled}
}

// Ready tells systemd startup is complete (Type=notify units).
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Status(s string) { n.send("STATUS=" + s) }

func (n *Notifier) send(state string) bool {
	ok, err := n.notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	if ok {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
	return ok
}

// Watchdog pings the watchdog at half the configured WatchdogSec until ctx
// is cancelled. It returns at once when the unit has no watchdog.
func (n *Notifier) Watchdog(ctx context.Context) {
	every, err := n.watchdogEnabled(false)
	if err != nil {
		n.log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	every /= 2
	n.log.Info("watchdog enabled", logx.Duration("every", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
