// Package sessions discovers conversation transcripts on disk and reports the
// most recently modified one as the active session.
package sessions

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultExtension is the transcript file suffix.
	DefaultExtension = ".pb"

	// DefaultTempMarker excludes in-flight writes such as "abc.pb.tmp".
	DefaultTempMarker = ".tmp"

	// DefaultBytesPerToken converts transcript size to an estimated token count.
	DefaultBytesPerToken = 4.0

	// DefaultRecentLimit caps Snapshot.RecentSessions.
	DefaultRecentLimit = 5
)

// Session is one transcript file as seen by a single scan.
type Session struct {
	ID              string    `json:"id"`
	Size            int64     `json:"size"`
	Modified        time.Time `json:"modified"`
	EstimatedTokens int       `json:"estimatedTokens"`
}

// Snapshot is the result of one scan, shared by the HTTP API and the snapshot file.
type Snapshot struct {
	Timestamp      string    `json:"timestamp"`
	ActiveSession  *Session  `json:"activeSession"`
	RecentSessions []Session `json:"recentSessions"`
}

// Scanner enumerates transcripts in one directory.
type Scanner struct {
	// Dir is the transcript directory.
	Dir string

	// Extension selects transcript files by suffix.
	Extension string

	// TempMarker excludes any name containing it.
	TempMarker string

	// BytesPerToken is the size-to-token heuristic.
	BytesPerToken float64

	// RecentLimit caps the recent list.
	RecentLimit int

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtension sets the transcript suffix.
func WithExtension(ext string) Option {
	return func(s *Scanner) {
		if ext != "" {
			s.Extension = ext
		}
	}
}

// WithTempMarker sets the temporary-file marker.
func WithTempMarker(marker string) Option {
	return func(s *Scanner) {
		if marker != "" {
			s.TempMarker = marker
		}
	}
}

// WithBytesPerToken sets the size-to-token heuristic.
func WithBytesPerToken(ratio float64) Option {
	return func(s *Scanner) {
		if ratio > 0 {
			s.BytesPerToken = ratio
		}
	}
}

// WithRecentLimit sets how many sessions Snapshot.RecentSessions keeps.
func WithRecentLimit(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.RecentLimit = n
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for Snapshot.Timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// NewScanner creates a Scanner for dir.
func NewScanner(dir string, opts ...Option) *Scanner {
	s := &Scanner{
		Dir:           dir,
		Extension:     DefaultExtension,
		TempMarker:    DefaultTempMarker,
		BytesPerToken: DefaultBytesPerToken,
		RecentLimit:   DefaultRecentLimit,
		logger:        slog.New(slog.DiscardHandler),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EstimateTokens converts a byte size to tokens, rounding half up.
func EstimateTokens(size int64, bytesPerToken float64) int {
	if size <= 0 {
		return 0
	}
	if bytesPerToken <= 0 {
		bytesPerToken = DefaultBytesPerToken
	}
	return int(math.Round(float64(size) / bytesPerToken))
}

// List returns every transcript in the directory, most recently modified first.
// An unreadable directory is logged and reads as empty.
func (s *Scanner) List() []Session {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		s.logger.Warn("read transcript directory", "dir", s.Dir, "error", err)
		return []Session{}
	}

	found := make([]Session, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !s.matches(name) || entry.IsDir() {
			continue
		}
		// os.Stat follows symlinks; entry.Info would report the link itself.
		info, err := os.Stat(filepath.Join(s.Dir, name))
		if err != nil {
			s.logger.Debug("stat transcript", "file", name, "error", err)
			continue
		}
		if info.IsDir() {
			continue
		}
		found = append(found, Session{
			ID:              strings.TrimSuffix(name, s.Extension),
			Size:            info.Size(),
			Modified:        info.ModTime(),
			EstimatedTokens: EstimateTokens(info.Size(), s.BytesPerToken),
		})
	}

	slices.SortStableFunc(found, func(a, b Session) int {
		return b.Modified.Compare(a.Modified)
	})
	return found
}

// Scan lists transcripts and builds a Snapshot.
func (s *Scanner) Scan() Snapshot {
	return s.snapshot(s.List())
}

func (s *Scanner) snapshot(all []Session) Snapshot {
	snap := Snapshot{
		Timestamp:      s.now().UTC().Format(time.RFC3339Nano),
		RecentSessions: []Session{},
	}
	if len(all) == 0 {
		return snap
	}
	active := all[0]
	snap.ActiveSession = &active
	n := min(len(all), s.RecentLimit)
	snap.RecentSessions = append(snap.RecentSessions, all[:n]...)
	return snap
}

func (s *Scanner) matches(name string) bool {
	if !strings.HasSuffix(name, s.Extension) {
		return false
	}
	return s.TempMarker == "" || !strings.Contains(name, s.TempMarker)
}

// DefaultDir returns the transcript directory under the user profile:
// $USERPROFILE/.gemini/antigravity/conversations, falling back to the
// home directory when USERPROFILE is unset.
func DefaultDir() string {
	base := os.Getenv("USERPROFILE")
	if base == "" {
		base, _ = os.UserHomeDir()
	}
	return filepath.Join(base, ".gemini", "antigravity", "conversations")
}
