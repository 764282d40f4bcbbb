// Package notify gates user-facing notifications by verbosity level and
// fans them out to whichever surface currently owns the terminal.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level controls which notification kinds reach the user.
type Level int

const (
	LevelNone Level = iota
	LevelFailures
	LevelAll
)

// ParseLevel maps a config token to a Level. Unknown tokens map to
// LevelAll so a typo never silences failure notifications.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return LevelNone
	case "failures":
		return LevelFailures
	default:
		return LevelAll
	}
}

// Kind classifies a notification for level filtering.
type Kind int

const (
	KindInfo Kind = iota
	KindWarning
	KindFailure
)

// Notification is one user-facing message that passed the gate.
type Notification struct {
	Kind    Kind
	Message string
	Time    time.Time
}

// Notifier filters notifications by level and delivers the survivors to
// a sink. The default sink is the process log; the TUI swaps in its
// message bar while it owns the terminal.
type Notifier struct {
	mu      sync.Mutex
	level   Level
	enabled bool
	sink    func(Notification)
	seen    map[string]bool
}

// New creates a Notifier. A nil sink logs through logrus.
func New(level Level, enabled bool) *Notifier {
	return &Notifier{
		level:   level,
		enabled: enabled,
		seen:    make(map[string]bool),
	}
}

// SetSink routes subsequent notifications to fn. Passing nil restores
// the log sink.
func (n *Notifier) SetSink(fn func(Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sink = fn
}

// Infof emits an informational notification.
func (n *Notifier) Infof(format string, args ...interface{}) {
	n.emit(KindInfo, fmt.Sprintf(format, args...))
}

// Warnf emits a warning notification.
func (n *Notifier) Warnf(format string, args ...interface{}) {
	n.emit(KindWarning, fmt.Sprintf(format, args...))
}

// Failuref emits a failure notification.
func (n *Notifier) Failuref(format string, args ...interface{}) {
	n.emit(KindFailure, fmt.Sprintf(format, args...))
}

// WarnOnce emits a warning at most once per key for the lifetime of the
// notifier. Used for conditions that would otherwise repeat on every
// poll, such as a missing or rejected token.
func (n *Notifier) WarnOnce(key, format string, args ...interface{}) {
	n.mu.Lock()
	if n.seen[key] {
		n.mu.Unlock()
		return
	}
	n.seen[key] = true
	n.mu.Unlock()
	n.emit(KindWarning, fmt.Sprintf(format, args...))
}

func (n *Notifier) emit(kind Kind, msg string) {
	n.mu.Lock()
	enabled, level, sink := n.enabled, n.level, n.sink
	n.mu.Unlock()

	if !enabled || !level.allows(kind) {
		return
	}

	note := Notification{Kind: kind, Message: msg, Time: time.Now()}
	if sink != nil {
		sink(note)
		return
	}
	switch kind {
	case KindFailure:
		logrus.Error(msg)
	case KindWarning:
		logrus.Warn(msg)
	default:
		logrus.Info(msg)
	}
}

func (l Level) allows(kind Kind) bool {
	switch l {
	case LevelNone:
		return false
	case LevelFailures:
		return kind == KindFailure || kind == KindWarning
	default:
		return true
	}
}
