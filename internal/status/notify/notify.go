// Package notify decouples user-facing status messages from the components
// that emit them: the dispatch policy and the sweeper report through a
// Notifier and the presentation layer decides how to render it.
package notify

import "log/slog"

type Kind string

const (
	// KindInfo is a remote-success confirmation.
	KindInfo Kind = "info"
	// KindQueued means the action was saved locally and will be sent later.
	// Never rendered as equivalent to KindInfo: the action is not yet
	// authoritative.
	KindQueued Kind = "queued"
	// KindSyncStarted / KindSyncCompleted frame a reconciliation sweep.
	KindSyncStarted   Kind = "sync.started"
	KindSyncCompleted Kind = "sync.completed"
	// KindError is a loud, user-action-required failure (local storage loss).
	KindError Kind = "error"
)

type Notifier interface {
	OnStatus(kind Kind, message string)
}

// Func adapts a function to the Notifier interface.
type Func func(kind Kind, message string)

func (f Func) OnStatus(kind Kind, message string) { f(kind, message) }

// Log is the default Notifier for hosts that wire nothing else.
type Log struct{}

func (Log) OnStatus(kind Kind, message string) {
	switch kind {
	case KindError:
		slog.Error("status", "kind", string(kind), "message", message)
	case KindQueued:
		slog.Warn("status", "kind", string(kind), "message", message)
	default:
		slog.Info("status", "kind", string(kind), "message", message)
	}
}

// Multi fans a status out to several notifiers in order.
func Multi(ns ...Notifier) Notifier {
	return Func(func(kind Kind, message string) {
		for _, n := range ns {
			if n != nil {
				n.OnStatus(kind, message)
			}
		}
	})
}
