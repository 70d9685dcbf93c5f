// Package systemd reports service state to the systemd supervisor with
// sd_notify. Outside systemd every call is a silent no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/stkcam/internal/events"
)

// Notifier sends readiness, status and watchdog messages.
type Notifier struct {
	logger   *slog.Logger
	notify   func(state string) (bool, error)
	watchdog func() (time.Duration, error)
	unsub    func()
}

// NewNotifier creates a notifier bound to $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("Failed to notify systemd", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("Notified systemd", "state", state)
	}
}

// Ready signals that the service finished starting.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Stopping signals that shutdown began.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

// Follow mirrors capture state changes into the status line.
func (n *Notifier) Follow(bus *events.Bus) {
	n.Status("idle")
	n.unsub = bus.Subscribe(func(e events.StreamStateChangedEvent) {
		n.Status(statusLine(e))
	})
}

// Unfollow stops mirroring capture state.
func (n *Notifier) Unfollow() {
	if n.unsub != nil {
		n.unsub()
		n.unsub = nil
	}
}

func statusLine(e events.StreamStateChangedEvent) string {
	if !e.IsRunning() {
		return "idle"
	}
	return fmt.Sprintf("capturing %s %s", e.Resolution, e.Format)
}

// RunWatchdog pings the watchdog at half the configured interval until ctx
// is cancelled. It returns at once when WatchdogSec is not set.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := n.watchdog()
	if err != nil {
		n.logger.Warn("Failed to read watchdog interval", "error", err)
		return
	}
	if interval <= 0 {
		return
	}
	n.logger.Info("systemd watchdog enabled", "interval", interval)

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
