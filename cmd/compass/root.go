package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextcompass/internal/config"
	"github.com/boshu2/contextcompass/internal/history"
	"github.com/boshu2/contextcompass/internal/sessions"
	"github.com/boshu2/contextcompass/internal/usage"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string

	// logger is replaced in PersistentPreRun once flags are parsed.
	logger           = slog.New(slog.DiscardHandler)
	logOut io.Writer = os.Stderr
)

// Sentinel errors for command validation.
var (
	ErrSnapshotInWatchedDir = errors.New("snapshot file must live outside the transcript directory")
	ErrNotTerminal          = errors.New("widget needs an interactive terminal")
	ErrUnknownModel         = errors.New("unknown model")
	ErrUnknownSource        = errors.New("unknown source")
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "compass",
	Short: "Context window gauge and handoff helper",
	Long: `compass keeps an eye on how much of an AI model's context window a
session has used, and helps hand work off to a fresh session before it runs out.

Sessions:
  scan         Write the active-session snapshot file (once, or --watch)
  serve        Serve the session API and widget files over HTTP
  status       Show discovered sessions

Gauge:
  gauge        Show usage for a token count or the active session
  widget       Interactive terminal gauge with notes and alerts

Handoff:
  handoff      Turn session notes into a handoff document

Other:
  config       Show resolved configuration
  version      Show version information`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
		logOut = cmd.ErrOrStderr()
		logger = newLogger(logOut, verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (table, json; default from config)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .compass/config.yaml)")
}

// GetVerbose returns the verbose flag value for use by subcommands.
func GetVerbose() bool {
	return verbose
}

// GetOutput returns the output flag value. Empty means the configured default.
func GetOutput() string {
	return output
}

// GetConfigFile returns the config file path for use by subcommands.
func GetConfigFile() string {
	return cfgFile
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(GetConfigFile())
	if path == "" {
		return
	}
	_ = os.Setenv("COMPASS_CONFIG", path)
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads layered configuration with the global flags and the
// command's own overrides applied on top.
func loadConfig(overrides *config.Config) (*config.Config, error) {
	if overrides == nil {
		overrides = &config.Config{}
	}
	overrides.Output = GetOutput()
	if GetVerbose() {
		overrides.Verbose = true
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Verbose && !GetVerbose() {
		logger = newLogger(logOut, true)
	}
	logger.Debug("config loaded", "transcripts", cfg.Paths.TranscriptsDir, "window", cfg.Window())
	return cfg, nil
}

// newScanner builds a transcript scanner from configuration.
func newScanner(cfg *config.Config) *sessions.Scanner {
	return sessions.NewScanner(cfg.Paths.TranscriptsDir,
		sessions.WithExtension(cfg.Scan.Extension),
		sessions.WithTempMarker(cfg.Scan.TempMarker),
		sessions.WithBytesPerToken(cfg.Scan.BytesPerToken),
		sessions.WithRecentLimit(cfg.Scan.RecentLimit),
		sessions.WithLogger(logger),
	)
}

// newRecorder opens the token history file.
func newRecorder(cfg *config.Config, l *slog.Logger) *history.Recorder {
	return history.New(cfg.Paths.HistoryFile,
		history.WithMaxPoints(cfg.History.MaxPoints),
		history.WithLogger(l),
	)
}

// projectName is the configured project label, or the working directory name.
func projectName(cfg *config.Config) string {
	if cfg.History.Project != "" {
		return cfg.History.Project
	}
	cwd, err := os.Getwd()
	if err != nil {
		return history.Unknown
	}
	return filepath.Base(cwd)
}

// historySample converts a session's transcript estimate into the tokens it
// holds in the configured window.
func historySample(cfg *config.Config, s *sessions.Session) history.Sample {
	u := usage.FromTranscript(s.EstimatedTokens, cfg.Window(), cfg.Gauge.TranscriptDivisor)
	return history.Sample{
		SessionID: s.ID,
		Tokens:    u.TokensUsed,
		Project:   projectName(cfg),
		Model:     usage.ModelName(cfg.Window()),
	}
}

// commandContext returns the command's context, which is nil when a RunE is
// called directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
