package sessions

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/boshu2/contextcompass/internal/storage"
)

// WriteSnapshot replaces the snapshot file at path with snap as indented JSON.
// Readers never observe a partially written file.
func WriteSnapshot(path string, snap Snapshot) error {
	return storage.AtomicWrite(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	})
}

// ReadSnapshot loads a snapshot file written by WriteSnapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return Snapshot{}, ErrEmptySnapshot
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if snap.RecentSessions == nil {
		snap.RecentSessions = []Session{}
	}
	return snap, nil
}
