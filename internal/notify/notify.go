// Package notify is the outbound notification sink for drive transitions.
// Rendering is owned by the platform; this package only delivers titles and
// bodies to whatever the host wired in.
package notify

import (
	"log/slog"
	"os/exec"
)

// Notifier receives user-facing notifications for Start and Park events.
type Notifier interface {
	Notify(title, body string)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(title, body string) {}

// LogNotifier writes notifications to the structured log. Used when no
// platform notifier is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(title, body string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "title", title, "body", body)
}

// ExecNotifier shells out to an external command (e.g. notify-send) with the
// title and body as arguments. Failures are logged and dropped; the engine
// never blocks on notification delivery.
type ExecNotifier struct {
	Command string
	Logger  *slog.Logger
}

func (n ExecNotifier) Notify(title, body string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := exec.Command(n.Command, title, body).Run(); err != nil {
		logger.Warn("notification command failed", "command", n.Command, "error", err)
	}
}
