// Package alert rate-limits the audio/visual cue raised when usage lands in DANGER.
package alert

import (
	"log/slog"
	"sync"
	"time"

	"github.com/boshu2/contextcompass/internal/usage"
)

// DefaultCooldown is the minimum wall-clock gap between two alerts.
const DefaultCooldown = 30 * time.Second

// Notifier delivers one alert cue (sound, bell, desktop notification).
type Notifier interface {
	Notify() error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func() error

// Notify calls f.
func (f NotifierFunc) Notify() error { return f() }

// Alerter fires notifiers when usage is in DANGER, at most once per cooldown.
//
// The cooldown is evaluated lazily: nothing runs between observations, and a
// DANGER observation inside the window is dropped rather than deferred.
type Alerter struct {
	cooldown  time.Duration
	now       func() time.Time
	notifiers []Notifier
	logger    *slog.Logger

	mu              sync.Mutex
	lastTriggeredAt time.Time
}

// Option configures an Alerter.
type Option func(*Alerter)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(a *Alerter) {
		a.cooldown = d
	}
}

// WithClock injects the time source. Tests use this to step time.
func WithClock(now func() time.Time) Option {
	return func(a *Alerter) {
		a.now = now
	}
}

// WithNotifiers sets the cues fired on each alert.
func WithNotifiers(notifiers ...Notifier) Option {
	return func(a *Alerter) {
		a.notifiers = notifiers
	}
}

// WithLogger sets the logger used for notifier failures.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Alerter) {
		a.logger = logger
	}
}

// New creates an Alerter.
func New(opts ...Option) *Alerter {
	a := &Alerter{
		cooldown: DefaultCooldown,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Observe evaluates one usage recomputation and fires if it lands in DANGER
// with tokens still left. Returns true when the alert fired.
func (a *Alerter) Observe(u usage.Usage) bool {
	if u.Tier != usage.TierDanger || u.TokensLeft <= 0 {
		return false
	}
	return a.Trigger()
}

// Trigger fires the notifiers unless the previous alert is within the
// cooldown. The cooldown clock is reset at attempt time, so a failing
// notifier still consumes the window.
func (a *Alerter) Trigger() bool {
	a.mu.Lock()
	now := a.now()
	if !a.lastTriggeredAt.IsZero() && now.Sub(a.lastTriggeredAt) < a.cooldown {
		a.mu.Unlock()
		return false
	}
	a.lastTriggeredAt = now
	notifiers := a.notifiers
	a.mu.Unlock()

	for _, n := range notifiers {
		if err := n.Notify(); err != nil {
			a.logger.Warn("alert notifier failed", "error", err)
		}
	}
	return true
}

// LastTriggeredAt returns when the alert last fired (zero if never).
func (a *Alerter) LastTriggeredAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastTriggeredAt
}

// Reset clears the cooldown so the next DANGER observation fires.
func (a *Alerter) Reset() {
	a.mu.Lock()
	a.lastTriggeredAt = time.Time{}
	a.mu.Unlock()
}
