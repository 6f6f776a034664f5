package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/boshu2/contextcompass/internal/config"
	"github.com/boshu2/contextcompass/internal/formatter"
	"github.com/boshu2/contextcompass/internal/history"
	"github.com/boshu2/contextcompass/internal/sessions"
)

var (
	scanWatch bool
	scanDir   string
	scanOut   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Write the active-session snapshot file",
	Long: `Scan the transcript directory and write the snapshot file read by
other tools: the most recently modified transcript is the active session.
The active session's token count is also appended to the history file that
'compass status' reads.

With --watch the directory is watched and the snapshot is rewritten on every
change until interrupted. The snapshot file must live outside the watched
directory.

Examples:
  compass scan
  compass scan --watch
  compass scan --dir ./conversations --out /tmp/active-session.json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Rewrite the snapshot on every change")
	scanCmd.Flags().StringVar(&scanDir, "dir", "", "Transcript directory (default from config)")
	scanCmd.Flags().StringVar(&scanOut, "out", "", "Snapshot file (default from config)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(&config.Config{
		Paths: config.PathsConfig{TranscriptsDir: scanDir, SnapshotFile: scanOut},
	})
	if err != nil {
		return err
	}
	snapshotPath := cfg.Paths.SnapshotFile
	scanner := newScanner(cfg)
	recorder := newRecorder(cfg, logger)

	if !scanWatch {
		snap := scanner.Scan()
		if err := sessions.WriteSnapshot(snapshotPath, snap); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		recordActive(cfg, recorder, snap)
		if cfg.Output == "json" {
			return formatter.WriteJSON(cmd.OutOrStdout(), snap)
		}
		printScanSummary(cmd.OutOrStdout(), snapshotPath, snap)
		return nil
	}

	if err := checkSnapshotOutside(snapshotPath, cfg.Paths.TranscriptsDir); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publish := func(snap sessions.Snapshot) {
		if err := sessions.WriteSnapshot(snapshotPath, snap); err != nil {
			logger.Error("write snapshot", "path", snapshotPath, "error", err)
			return
		}
		if snap.ActiveSession != nil {
			logger.Info("active session", "id", snap.ActiveSession.ID, "estimated_tokens", snap.ActiveSession.EstimatedTokens)
		}
		recordActive(cfg, recorder, snap)
	}

	publish(scanner.Scan())
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (writing %s). Press Ctrl+C to stop.\n", cfg.Paths.TranscriptsDir, snapshotPath)
	return sessions.Watch(ctx, scanner, publish)
}

// recordActive appends the active session to the history file. Failures are
// logged; the snapshot is what other tools depend on.
func recordActive(cfg *config.Config, rec *history.Recorder, snap sessions.Snapshot) {
	if snap.ActiveSession == nil {
		return
	}
	if _, err := rec.Record(historySample(cfg, snap.ActiveSession)); err != nil {
		logger.Warn("record history", "path", rec.Path(), "error", err)
	}
}

// checkSnapshotOutside rejects a snapshot path inside dir: every write would
// trigger another rescan.
func checkSnapshotOutside(snapshotPath, dir string) error {
	absSnap, err := filepath.Abs(snapshotPath)
	if err != nil {
		return fmt.Errorf("resolve snapshot path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve transcript dir: %w", err)
	}
	rel, err := filepath.Rel(absDir, filepath.Dir(absSnap))
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("%w: %s is inside %s", ErrSnapshotInWatchedDir, snapshotPath, dir)
	}
	return nil
}

func printScanSummary(w io.Writer, path string, snap sessions.Snapshot) {
	fmt.Fprintf(w, "Wrote %s\n", path)
	if snap.ActiveSession == nil {
		fmt.Fprintln(w, "No active session found")
		return
	}
	s := snap.ActiveSession
	fmt.Fprintf(w, "Active session: %s (%s, ~%s tokens, modified %s)\n",
		s.ID, humanize.Bytes(uint64(max(s.Size, 0))), humanize.Comma(int64(s.EstimatedTokens)), humanize.Time(s.Modified))
}
