package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/boshu2/contextcompass/internal/alert"
	"github.com/boshu2/contextcompass/internal/client"
	"github.com/boshu2/contextcompass/internal/config"
	"github.com/boshu2/contextcompass/internal/formatter"
	"github.com/boshu2/contextcompass/internal/sessions"
	"github.com/boshu2/contextcompass/internal/usage"
	"github.com/boshu2/contextcompass/internal/widget"
)

var (
	gaugeLeft        string
	gaugeWindow      int
	gaugeModel       string
	gaugeFromSession bool
	gaugeBell        bool
)

var gaugeCmd = &cobra.Command{
	Use:   "gauge",
	Short: "Show context usage for a token count or the active session",
	Long: `Compute how much of the context window is used and which tier it falls in.

Tiers:
  NORMAL   below 60% used
  WARNING  60% to 79% used
  DANGER   80% and above (rings the terminal bell unless --bell=false)

With --from-session the count comes from the active session, read from the
running server or, when it is not running, from the snapshot file. The
transcript estimate is divided by gauge.transcript_divisor before it is
charged against the window.

Examples:
  compass gauge --left 150,000
  compass gauge --left 20000 --model "Claude 3.5 Sonnet"
  compass gauge --from-session -o json`,
	Args: cobra.NoArgs,
	RunE: runGauge,
}

func init() {
	rootCmd.AddCommand(gaugeCmd)
	gaugeCmd.Flags().StringVar(&gaugeLeft, "left", "", "Tokens left in the context window (e.g. 150,000)")
	gaugeCmd.Flags().IntVar(&gaugeWindow, "window", 0, "Context window size in tokens")
	gaugeCmd.Flags().StringVar(&gaugeModel, "model", "", "Model preset name (sets the window)")
	gaugeCmd.Flags().BoolVar(&gaugeFromSession, "from-session", false, "Use the active session's estimate")
	gaugeCmd.Flags().BoolVar(&gaugeBell, "bell", true, "Ring the terminal bell in DANGER")
}

type gaugeOutput struct {
	Model          string            `json:"model"`
	Usage          usage.Usage       `json:"usage"`
	Status         string            `json:"status"`
	Recommendation string            `json:"recommendation"`
	Session        *sessions.Session `json:"session,omitempty"`
}

func runGauge(cmd *cobra.Command, args []string) error {
	cfg, err := loadGaugeConfig(gaugeWindow, gaugeModel)
	if err != nil {
		return err
	}
	window := cfg.Window()

	var result gaugeOutput
	if gaugeFromSession {
		snap := activeSnapshot(commandContext(cmd), cfg)
		if snap.ActiveSession == nil {
			return fmt.Errorf("no active session in %s", cfg.Paths.TranscriptsDir)
		}
		result.Session = snap.ActiveSession
		result.Usage = usage.FromTranscript(snap.ActiveSession.EstimatedTokens, window, cfg.Gauge.TranscriptDivisor)
	} else {
		result.Usage = usage.ComputeRaw(gaugeLeft, window)
	}
	result.Model = usage.ModelName(window)
	result.Status = result.Usage.Tier.Status()
	result.Recommendation = result.Usage.Recommendation()

	if gaugeBell {
		alerter := alert.New(
			alert.WithNotifiers(alert.NewBell(cmd.ErrOrStderr())),
			alert.WithLogger(logger),
		)
		alerter.Observe(result.Usage)
	}

	if cfg.Output == "json" {
		return formatter.WriteJSON(cmd.OutOrStdout(), result)
	}
	printGauge(cmd.OutOrStdout(), result)
	return nil
}

// loadGaugeConfig loads configuration with window and model flag overrides.
// An explicit window without a model replaces any configured model.
func loadGaugeConfig(window int, model string) (*config.Config, error) {
	if model != "" {
		if _, ok := usage.LookupModel(model); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
		}
	}
	cfg, err := loadConfig(&config.Config{
		Gauge: config.GaugeConfig{ContextWindow: window, Model: model},
	})
	if err != nil {
		return nil, err
	}
	if window > 0 && model == "" {
		cfg.Gauge.Model = ""
	}
	return cfg, nil
}

// activeSnapshot asks the running server for the current snapshot and falls
// back to the snapshot file, then to a direct scan.
func activeSnapshot(ctx context.Context, cfg *config.Config) sessions.Snapshot {
	snap, err := client.New(cfg.Server.Addr).Sessions(ctx)
	if err == nil {
		return snap
	}
	logger.Debug("session server unavailable", "addr", cfg.Server.Addr, "error", err)

	snap, err = sessions.ReadSnapshot(cfg.Paths.SnapshotFile)
	if err == nil && snap.ActiveSession != nil {
		return snap
	}
	logger.Debug("snapshot file unavailable", "path", cfg.Paths.SnapshotFile, "error", err)

	return newScanner(cfg).Scan()
}

func printGauge(w io.Writer, g gaugeOutput) {
	u := g.Usage
	if g.Session != nil {
		fmt.Fprintf(w, "Session:  %s\n", g.Session.ID)
	}
	fmt.Fprintf(w, "Model:    %s (%s tokens)\n", g.Model, humanize.Comma(int64(u.ContextWindow)))
	fmt.Fprintf(w, "Used:     %s\n", humanize.Comma(int64(u.TokensUsed)))
	fmt.Fprintf(w, "Left:     %s\n", humanize.Comma(int64(u.TokensLeft)))
	fmt.Fprintf(w, "%s\n", widget.RenderGauge(u, widget.DefaultGaugeWidth))
	fmt.Fprintf(w, "%s: %s\n", u.Tier, g.Status)
	fmt.Fprintln(w, g.Recommendation)
}
