// Package history records how each session's token count grows over time and
// rolls the growth up into daily, per-project and per-model totals.
//
// Both live in one JSON key-value file: "sessions" maps a session ID to its
// points, "analytics" holds the totals.
package history

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/boshu2/contextcompass/internal/storage"
)

const (
	// DefaultMaxPoints caps the points kept per session; older points are dropped.
	DefaultMaxPoints = 200

	// Unknown labels samples without a project or model.
	Unknown = "unknown"

	sessionsKey  = "sessions"
	analyticsKey = "analytics"
	dayLayout    = "2006-01-02"
)

// Point is one recorded token count.
type Point struct {
	At     time.Time `json:"ts"`
	Tokens int       `json:"tokens"`
	// Delta is the change since the previous point; 0 for the first one.
	Delta int `json:"delta"`
}

// Totals accumulates token growth. Sessions is only kept for days.
type Totals struct {
	Total    int `json:"total"`
	Sessions int `json:"sessions,omitempty"`
}

// Analytics holds growth totals keyed by day (YYYY-MM-DD, local time),
// project and model.
type Analytics struct {
	Daily    map[string]Totals `json:"daily"`
	Projects map[string]Totals `json:"projects"`
	Models   map[string]Totals `json:"models"`
}

// Sample is one observation of a session.
type Sample struct {
	SessionID string
	Tokens    int
	Project   string
	Model     string
}

// Recorder appends samples to a history file. It is safe for concurrent use
// within one process.
type Recorder struct {
	kv        *storage.KVFile
	maxPoints int
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMaxPoints overrides DefaultMaxPoints. Non-positive values are ignored.
func WithMaxPoints(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxPoints = n
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns a Recorder backed by the file at path.
func New(path string, opts ...Option) *Recorder {
	r := &Recorder{
		kv:        storage.NewKVFile(path),
		maxPoints: DefaultMaxPoints,
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the backing file.
func (r *Recorder) Path() string {
	return r.kv.Path
}

// Record appends s to its session and adds any growth to today's, the
// project's and the model's totals. It returns the change since the session's
// previous point. A count equal to the previous one is not appended.
func (r *Recorder) Record(s Sample) (int, error) {
	if strings.TrimSpace(s.SessionID) == "" {
		return 0, ErrSessionRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.loadSessions()
	if err != nil {
		return 0, err
	}
	now := r.now()
	points := all[s.SessionID]

	delta := 0
	newToday := true
	if n := len(points); n > 0 {
		last := points[n-1]
		if last.Tokens == s.Tokens {
			return 0, nil
		}
		if last.Tokens > 0 {
			delta = s.Tokens - last.Tokens
		}
		newToday = last.At.Local().Format(dayLayout) != now.Local().Format(dayLayout)
	}

	points = append(points, Point{At: now, Tokens: s.Tokens, Delta: delta})
	if len(points) > r.maxPoints {
		points = slices.Clone(points[len(points)-r.maxPoints:])
	}
	all[s.SessionID] = points
	if err := r.kv.Set(sessionsKey, all); err != nil {
		return 0, fmt.Errorf("save history: %w", err)
	}

	a, err := r.loadAnalytics()
	if err != nil {
		return delta, err
	}
	day := now.Local().Format(dayLayout)
	today := a.Daily[day]
	if newToday {
		today.Sessions++
	}
	if delta > 0 {
		today.Total += delta
		addTotal(a.Projects, labelOr(s.Project), delta)
		addTotal(a.Models, labelOr(s.Model), delta)
	}
	a.Daily[day] = today
	if err := r.kv.Set(analyticsKey, a); err != nil {
		return delta, fmt.Errorf("save analytics: %w", err)
	}

	r.logger.Debug("recorded session tokens", "session", s.SessionID, "tokens", s.Tokens, "delta", delta)
	return delta, nil
}

// Session returns the recorded points of one session, oldest first.
func (r *Recorder) Session(id string) ([]Point, error) {
	all, err := r.Sessions()
	if err != nil {
		return nil, err
	}
	return all[id], nil
}

// Sessions returns every recorded session.
func (r *Recorder) Sessions() (map[string][]Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadSessions()
}

// Analytics returns the accumulated totals.
func (r *Recorder) Analytics() (Analytics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadAnalytics()
}

// Today returns the totals for the current local day.
func (r *Recorder) Today() (Totals, error) {
	a, err := r.Analytics()
	if err != nil {
		return Totals{}, err
	}
	return a.Daily[r.now().Local().Format(dayLayout)], nil
}

func (r *Recorder) loadSessions() (map[string][]Point, error) {
	all := make(map[string][]Point)
	if err := r.kv.Get(sessionsKey, &all); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if all == nil {
		all = make(map[string][]Point)
	}
	return all, nil
}

func (r *Recorder) loadAnalytics() (Analytics, error) {
	var a Analytics
	if err := r.kv.Get(analyticsKey, &a); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Analytics{}, fmt.Errorf("load analytics: %w", err)
	}
	if a.Daily == nil {
		a.Daily = make(map[string]Totals)
	}
	if a.Projects == nil {
		a.Projects = make(map[string]Totals)
	}
	if a.Models == nil {
		a.Models = make(map[string]Totals)
	}
	return a, nil
}

func addTotal(m map[string]Totals, key string, delta int) {
	t := m[key]
	t.Total += delta
	m[key] = t
}

func labelOr(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return Unknown
}

// Latest returns the last point of points, or false when there is none.
func Latest(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	return points[len(points)-1], true
}
