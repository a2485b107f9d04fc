package provider

import (
	"regfs/internal/logging"
	"regfs/internal/notify"
)

var notifyLogger = logging.GetLogger().WithPrefix("notify")

// Notification describes one lifecycle event under the virtualization root.
// Paths are root-relative with forward slashes; the root itself is "".
type Notification struct {
	Event       notify.Event
	Path        string
	Destination string // PreRename only
	IsDirectory bool
}

// Sink receives notifications. For PreRename and PreDelete a non-nil error
// vetoes the operation; for FileOpened the error is only logged.
type Sink interface {
	Notify(n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n Notification) error

// Notify calls f(n).
func (f SinkFunc) Notify(n Notification) error {
	return f(n)
}

// LogSink logs every notification and never vetoes.
type LogSink struct{}

// Notify implements Sink.
func (LogSink) Notify(n Notification) error {
	if n.Destination != "" {
		notifyLogger.Info("%s %q -> %q", n.Event, n.Path, n.Destination)
		return nil
	}
	notifyLogger.Info("%s %q (dir=%v)", n.Event, n.Path, n.IsDirectory)
	return nil
}

// dispatch delivers n if the start options subscribed to it.
func (p *Provider) dispatch(n Notification) error {
	if !p.options().Wants(n.Path, n.Event) {
		notifyLogger.Trace("Skipping unsubscribed %s for %q", n.Event, n.Path)
		return nil
	}
	if err := p.sink.Notify(n); err != nil {
		if n.Event == notify.FileOpened {
			notifyLogger.Warn("Sink failed on %s for %q: %v", n.Event, n.Path, err)
			return nil
		}
		notifyLogger.Info("Sink vetoed %s for %q: %v", n.Event, n.Path, err)
		return ErrVetoed
	}
	return nil
}
