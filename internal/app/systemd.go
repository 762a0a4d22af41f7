package app

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports lifecycle to the service manager.
type Notifier interface {
	Ready()
	Status(s string)
	Watchdog()
	Stopping()
}

// systemdNotifier talks sd_notify. Every call is a no-op outside systemd
// (NOTIFY_SOCKET unset).
type systemdNotifier struct{}

func (systemdNotifier) Ready()    { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }
func (systemdNotifier) Stopping() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }

func (systemdNotifier) Status(s string) {
	_, _ = daemon.SdNotify(false, "STATUS="+s)
}

func (systemdNotifier) Watchdog() {
	if d, err := daemon.SdWatchdogEnabled(false); err != nil || d == 0 {
		return
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
}
