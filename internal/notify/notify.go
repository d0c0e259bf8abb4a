// Package notify defines the user-facing notification boundary. Producers
// (connectivity observer, sync manager) emit transient toast-style messages
// without knowing how they reach the user.
package notify

import "github.com/mwangivic/soma/internal/logging"

// Notifier receives transient user-facing messages.
type Notifier interface {
	Success(message string)
	Warning(message string)
	Error(message string)
}

// Log is a Notifier that writes notifications to the structured log. It is
// the fallback sink when no UI client is connected.
type Log struct{}

func (Log) Success(message string) {
	logging.Info("notification", map[string]interface{}{"kind": "success", "message": message})
}

func (Log) Warning(message string) {
	logging.Warn("notification", map[string]interface{}{"kind": "warning", "message": message})
}

func (Log) Error(message string) {
	logging.Error("notification", nil, map[string]interface{}{"kind": "error", "message": message})
}

// Nop discards all notifications. Used in tests and the CLI.
type Nop struct{}

func (Nop) Success(string) {}
func (Nop) Warning(string) {}
func (Nop) Error(string)   {}

// Multi fans a notification out to several sinks in order.
type Multi []Notifier

func (m Multi) Success(message string) {
	for _, n := range m {
		n.Success(message)
	}
}

func (m Multi) Warning(message string) {
	for _, n := range m {
		n.Warning(message)
	}
}

func (m Multi) Error(message string) {
	for _, n := range m {
		n.Error(message)
	}
}
