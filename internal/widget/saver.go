package widget

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/boshu2/contextcompass/internal/state"
)

// saver orders state writes. Every save runs in its own Cmd goroutine, so
// each one is stamped when Update creates it and a write older than the last
// one attempted is dropped.
type saver struct {
	store StateStore
	seq   atomic.Uint64

	mu   sync.Mutex
	last uint64
}

func newSaver(store StateStore) *saver {
	return &saver{store: store}
}

// cmd returns a Cmd that persists ws unless a newer state got there first.
func (s *saver) cmd(ws state.WidgetState) tea.Cmd {
	seq := s.seq.Add(1)
	return func() tea.Msg {
		return saveResultMsg{err: s.save(seq, ws)}
	}
}

func (s *saver) save(seq uint64, ws state.WidgetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.last {
		return nil
	}
	s.last = seq
	return s.store.Save(ws)
}
