// Package state persists the widget's inputs between runs under a single key of
// a shared JSON key-value file.
package state

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/boshu2/contextcompass/internal/storage"
)

// Key is the entry the widget state lives under.
const Key = "contextCompass"

// Position is where the widget was last placed. Values are kept as written
// (for example "120px") so other front ends sharing the file round-trip them.
type Position struct {
	Left string `json:"left"`
	Top  string `json:"top"`
}

// WidgetState is the persisted widget input. Every field is optional.
type WidgetState struct {
	TokensLeft     string   `json:"tokensLeft"`
	ContextWindow  string   `json:"contextWindow"`
	Notes          string   `json:"notes"`
	ConversationID string   `json:"conversationId"`
	Minimized      bool     `json:"minimized"`
	Position       Position `json:"position"`
}

// Window parses ContextWindow, returning 0 when it is unset or malformed.
func (w WidgetState) Window() int {
	n, err := strconv.Atoi(strings.TrimSpace(w.ContextWindow))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SetWindow stores a window size.
func (w *WidgetState) SetWindow(n int) {
	w.ContextWindow = strconv.Itoa(n)
}

// Store reads and writes WidgetState.
type Store struct {
	kv     *storage.KVFile
	logger *slog.Logger
}

// NewStore opens the state file at path. A nil logger discards output.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: storage.NewKVFile(path), logger: logger}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.kv.Path
}

// Load returns the saved state. A missing entry yields the zero state; a
// corrupt file is logged and also yields the zero state.
func (s *Store) Load() WidgetState {
	var ws WidgetState
	err := s.kv.Get(Key, &ws)
	switch {
	case err == nil:
		return ws
	case errors.Is(err, storage.ErrNotFound):
		return WidgetState{}
	default:
		s.logger.Warn("ignoring unreadable widget state", "path", s.kv.Path, "error", err)
		return WidgetState{}
	}
}

// Save replaces the stored state; other keys in the file are kept.
func (s *Store) Save(ws WidgetState) error {
	return s.kv.Set(Key, ws)
}

// DefaultPath is ~/.compass/state.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".compass", "state.json")
	}
	return filepath.Join(home, ".compass", "state.json")
}
