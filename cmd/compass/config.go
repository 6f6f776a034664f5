package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextcompass/internal/config"
	"github.com/boshu2/contextcompass/internal/formatter"
)

var (
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	Long: `View Context Compass configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (COMPASS_*)
  3. Project config (.compass/config.yaml, or COMPASS_CONFIG)
  4. Home config (~/.compass/config.yaml)
  5. Defaults

Environment variables:
  COMPASS_CONFIG             - Explicit project config file path
  COMPASS_OUTPUT             - Default output format (table, json)
  COMPASS_VERBOSE            - Enable debug logging (true/1)
  COMPASS_TRANSCRIPTS_DIR    - Transcript directory
  COMPASS_SNAPSHOT_FILE      - Snapshot file written by 'compass scan'
  COMPASS_STATIC_DIR         - Static files served by 'compass serve'
  COMPASS_STATE_FILE         - Widget state file
  COMPASS_SCAN_EXTENSION     - Transcript file suffix (default .pb)
  COMPASS_BYTES_PER_TOKEN    - Size-to-token ratio (default 4)
  COMPASS_RECENT_LIMIT       - Recent sessions kept in a snapshot (default 5)
  COMPASS_MODEL              - Model preset (overrides the context window)
  COMPASS_CONTEXT_WINDOW     - Context window in tokens (default 1,000,000)
  COMPASS_TRANSCRIPT_DIVISOR - Transcript estimate divisor (default 10)
  COMPASS_ADDR               - Server listen/poll address
  COMPASS_HISTORY_FILE       - Token history and usage totals
  COMPASS_PROJECT            - Project label for usage totals (default: cwd name)
  COMPASS_HISTORY_POINTS     - Points kept per session (default 200)

Examples:
  compass config --show
  compass config --show -o json`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

var configEnvVars = []string{
	"COMPASS_CONFIG",
	"COMPASS_OUTPUT",
	"COMPASS_VERBOSE",
	"COMPASS_TRANSCRIPTS_DIR",
	"COMPASS_SNAPSHOT_FILE",
	"COMPASS_STATIC_DIR",
	"COMPASS_STATE_FILE",
	"COMPASS_SCAN_EXTENSION",
	"COMPASS_BYTES_PER_TOKEN",
	"COMPASS_RECENT_LIMIT",
	"COMPASS_MODEL",
	"COMPASS_CONTEXT_WINDOW",
	"COMPASS_TRANSCRIPT_DIVISOR",
	"COMPASS_ADDR",
	"COMPASS_HISTORY_FILE",
	"COMPASS_PROJECT",
	"COMPASS_HISTORY_POINTS",
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	resolved := config.Resolve(config.Flags{
		Output:  GetOutput(),
		Verbose: GetVerbose(),
	})
	out := cmd.OutOrStdout()

	if resolved.Output.Value == "json" {
		return formatter.WriteJSON(out, resolved)
	}
	printConfig(out, resolved)
	return nil
}

func printConfig(w io.Writer, resolved *config.ResolvedConfig) {
	fmt.Fprintln(w, "Context Compass Configuration")
	fmt.Fprintln(w, "=============================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Config files:")
	home, _ := os.UserHomeDir()
	printConfigFile(w, "Home:   ", filepath.Join(home, ".compass", "config.yaml"))
	project := os.Getenv("COMPASS_CONFIG")
	if project == "" {
		cwd, _ := os.Getwd()
		project = filepath.Join(cwd, ".compass", "config.yaml")
	}
	printConfigFile(w, "Project:", project)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Resolved values:")
	table := formatter.NewTable(w, "KEY", "VALUE", "SOURCE")
	table.SetMaxWidth(1, 60)
	for _, e := range resolved.Entries() {
		table.AddRow(e.Key, fmt.Sprint(e.Value), string(e.Source))
	}
	_ = table.Render()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables (if set):")
	anySet := false
	for _, env := range configEnvVars {
		if v := os.Getenv(env); v != "" {
			fmt.Fprintf(w, "  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Fprintln(w, "  (none set)")
	}
}

func printConfigFile(w io.Writer, label, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  ✓ %s %s\n", label, path)
	} else {
		fmt.Fprintf(w, "  ✗ %s %s (not found)\n", label, path)
	}
}
