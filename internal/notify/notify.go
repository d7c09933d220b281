// Package notify implements transient user-facing status messages ("toasts").
//
// A Tray collects the notifications raised while serving one request. The
// tray travels in the request context; when no tray is attached, Notify is a
// silent no-op.
package notify

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

const (
	// DefaultDuration is how long a toast stays fully visible.
	DefaultDuration = 2000 * time.Millisecond
	// FadeOut is the delay between starting the fade and removing the toast.
	FadeOut = 300 * time.Millisecond

	mediumLength = 30
	largeLength  = 50
)

type Notification struct {
	Message  string        `json:"message"`
	Level    Level         `json:"level"`
	Size     Size          `json:"size"`
	Duration time.Duration `json:"-"`
}

// DurationMS is the display duration in milliseconds, as rendered to the page.
func (n Notification) DurationMS() int64 {
	return n.Duration.Milliseconds()
}

// SizeFor picks the toast size. Warnings or messages over 30 characters are
// medium; errors or messages over 50 characters are large.
func SizeFor(message string, level Level) Size {
	n := utf8.RuneCountInString(message)
	size := SizeSmall
	if level == LevelWarning || n > mediumLength {
		size = SizeMedium
	}
	if level == LevelError || n > largeLength {
		size = SizeLarge
	}
	return size
}

// New builds a notification. A zero or omitted duration means DefaultDuration.
func New(message string, level Level, duration ...time.Duration) Notification {
	d := DefaultDuration
	if len(duration) > 0 && duration[0] > 0 {
		d = duration[0]
	}
	return Notification{
		Message:  message,
		Level:    level,
		Size:     SizeFor(message, level),
		Duration: d,
	}
}

// Tray is the per-request notification surface.
type Tray struct {
	mu    sync.Mutex
	items []Notification
}

func NewTray() *Tray {
	return &Tray{}
}

// Add appends n. There is no cap and no deduplication.
func (t *Tray) Add(n Notification) {
	t.mu.Lock()
	t.items = append(t.items, n)
	t.mu.Unlock()
}

// Items returns a copy of the queued notifications.
func (t *Tray) Items() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Notification, len(t.items))
	copy(out, t.items)
	return out
}

// Drain returns the queued notifications and empties the tray.
func (t *Tray) Drain() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.items
	t.items = nil
	return out
}

func (t *Tray) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

type contextKey struct{}

func WithTray(ctx context.Context, t *Tray) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

func TrayFrom(ctx context.Context) *Tray {
	t, _ := ctx.Value(contextKey{}).(*Tray)
	return t
}

// Notify queues a notification on the context's tray, if there is one.
func Notify(ctx context.Context, message string, level Level, duration ...time.Duration) {
	t := TrayFrom(ctx)
	if t == nil {
		return
	}
	t.Add(New(message, level, duration...))
}
