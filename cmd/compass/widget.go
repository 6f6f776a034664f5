package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/boshu2/contextcompass/internal/alert"
	"github.com/boshu2/contextcompass/internal/client"
	"github.com/boshu2/contextcompass/internal/clip"
	"github.com/boshu2/contextcompass/internal/config"
	"github.com/boshu2/contextcompass/internal/state"
	"github.com/boshu2/contextcompass/internal/widget"
)

var (
	widgetNoPoll bool
	widgetAddr   string
	widgetMute   bool
)

var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Interactive terminal gauge with notes and alerts",
	Long: `Open the terminal gauge. It polls 'compass serve' every 30 seconds for
the active session, shows usage against the selected model, collects handoff
notes and rings a chime when the window is nearly full. In DANGER the handoff
is copied to the clipboard once. Every poll of the active session is added to
the history file that 'compass status' reads.

Input is saved to paths.state_file after every change. Logs go to
widget.log next to it.

Keys:
  tab / shift+tab  move between fields
  ctrl+w           cycle model
  ctrl+g           generate handoff
  ctrl+y           copy handoff
  ctrl+r           copy resume prompt
  ctrl+x           clear (press twice)
  ctrl+n           minimize
  f5               refresh now
  esc              quit`,
	Args: cobra.NoArgs,
	RunE: runWidget,
}

func init() {
	rootCmd.AddCommand(widgetCmd)
	widgetCmd.Flags().BoolVar(&widgetNoPoll, "no-poll", false, "Do not poll the session server")
	widgetCmd.Flags().StringVar(&widgetAddr, "addr", "", "Session server address (default 127.0.0.1:3847)")
	widgetCmd.Flags().BoolVar(&widgetMute, "mute", false, "Do not ring the alert chime")
}

func runWidget(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNotTerminal
	}

	cfg, err := loadConfig(&config.Config{
		Server: config.ServerConfig{Addr: widgetAddr},
	})
	if err != nil {
		return err
	}

	// The program owns the terminal, so logs go to a file.
	logPath := filepath.Join(filepath.Dir(cfg.Paths.StateFile), "widget.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open widget log: %w", err)
	}
	defer func() {
		_ = logFile.Close() //nolint:errcheck // log file, best-effort
	}()
	widgetLogger := newLogger(logFile, cfg.Verbose)

	ctx := commandContext(cmd)
	opts := widget.Options{
		Context:           ctx,
		Store:             state.NewStore(cfg.Paths.StateFile, widgetLogger),
		History:           newRecorder(cfg, widgetLogger),
		Project:           projectName(cfg),
		Alerter:           alert.New(alert.WithLogger(widgetLogger)),
		Copy:              func(text string) bool { return clip.Copy(text, widgetLogger) },
		Logger:            widgetLogger,
		Window:            cfg.Window(),
		TranscriptDivisor: cfg.Gauge.TranscriptDivisor,
		AgentDir:          filepath.Dir(cfg.Paths.TranscriptsDir),
	}
	if !widgetNoPoll {
		opts.Source = client.New(cfg.Server.Addr)
	}
	if !widgetMute {
		opts.Chime = alert.NewBell(os.Stderr)
	}

	program := tea.NewProgram(widget.New(opts), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run widget: %w", err)
	}
	return nil
}
