package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/boshu2/contextcompass/internal/client"
	"github.com/boshu2/contextcompass/internal/config"
	"github.com/boshu2/contextcompass/internal/formatter"
	"github.com/boshu2/contextcompass/internal/history"
	"github.com/boshu2/contextcompass/internal/sessions"
)

const (
	sourceScan     = "scan"
	sourceServer   = "server"
	sourceSnapshot = "snapshot"
)

var (
	statusSource string
	statusDir    string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show discovered sessions",
	Long: `List the most recent transcripts with their estimated token counts.
The first row is the active session. GROWTH is the change in tokens between
the last two recorded points of a session, and the footer totals today's
growth. Both come from the history file written by 'compass scan' and
'compass widget'.

Sources:
  scan       read the transcript directory directly (default)
  server     ask the running 'compass serve'
  snapshot   read the file written by 'compass scan'

Examples:
  compass status
  compass status --source server -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusSource, "source", sourceScan, "Where to read sessions from (scan, server, snapshot)")
	statusCmd.Flags().StringVar(&statusDir, "dir", "", "Transcript directory (default from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(&config.Config{
		Paths: config.PathsConfig{TranscriptsDir: statusDir},
	})
	if err != nil {
		return err
	}

	var snap sessions.Snapshot
	switch statusSource {
	case sourceScan:
		snap = newScanner(cfg).Scan()
	case sourceServer:
		snap, err = client.New(cfg.Server.Addr).Sessions(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("query %s: %w", cfg.Server.Addr, err)
		}
	case sourceSnapshot:
		snap, err = sessions.ReadSnapshot(cfg.Paths.SnapshotFile)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q (want scan, server or snapshot)", ErrUnknownSource, statusSource)
	}

	out := statusOutput{Snapshot: snap, Growth: map[string]int{}}
	loadUsage(newRecorder(cfg, logger), &out)

	if cfg.Output == "json" {
		return formatter.WriteJSON(cmd.OutOrStdout(), out)
	}
	return printStatusTable(cmd.OutOrStdout(), out)
}

type statusOutput struct {
	sessions.Snapshot

	// Today is the token growth recorded for the current day.
	Today history.Totals `json:"today"`

	// Growth maps a session ID to the delta of its latest history point.
	Growth map[string]int `json:"growth"`
}

// loadUsage fills today's totals and per-session growth. An unreadable
// history file leaves them empty.
func loadUsage(rec *history.Recorder, out *statusOutput) {
	today, err := rec.Today()
	if err != nil {
		logger.Warn("read usage history", "path", rec.Path(), "error", err)
		return
	}
	out.Today = today

	all, err := rec.Sessions()
	if err != nil {
		logger.Warn("read usage history", "path", rec.Path(), "error", err)
		return
	}
	for _, s := range out.RecentSessions {
		if p, ok := history.Latest(all[s.ID]); ok {
			out.Growth[s.ID] = p.Delta
		}
	}
}

func printStatusTable(w io.Writer, out statusOutput) error {
	if out.ActiveSession == nil {
		fmt.Fprintln(w, "No sessions found")
		return nil
	}

	table := formatter.NewTable(w, "", "SESSION", "SIZE", "EST. TOKENS", "GROWTH", "MODIFIED")
	table.SetMaxWidth(1, 40)
	for _, s := range out.RecentSessions {
		marker := ""
		if s.ID == out.ActiveSession.ID {
			marker = "*"
		}
		growth := "-"
		if d, ok := out.Growth[s.ID]; ok {
			growth = formatGrowth(d)
		}
		table.AddRow(
			marker,
			s.ID,
			humanize.Bytes(uint64(max(s.Size, 0))),
			humanize.Comma(int64(s.EstimatedTokens)),
			growth,
			humanize.Time(s.Modified),
		)
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nToday: %s tokens across %d sessions\n",
		humanize.Comma(int64(out.Today.Total)), out.Today.Sessions)
	return nil
}

func formatGrowth(d int) string {
	if d > 0 {
		return "+" + humanize.Comma(int64(d))
	}
	return humanize.Comma(int64(d))
}
