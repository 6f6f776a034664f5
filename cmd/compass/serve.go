package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextcompass/internal/config"
	"github.com/boshu2/contextcompass/internal/server"
)

var (
	serveAddr      string
	serveStaticDir string
	serveDir       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API and widget files over HTTP",
	Long: `Start an HTTP server that reports the active session.

  GET /api/sessions   current snapshot as JSON (rescanned per request)
  GET /<file>         static file from --static-dir ("/" serves index.html)

Examples:
  compass serve
  compass serve --addr 127.0.0.1:4000 --static-dir ./web`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default 127.0.0.1:3847)")
	serveCmd.Flags().StringVar(&serveStaticDir, "static-dir", "", "Directory of static files to serve")
	serveCmd.Flags().StringVar(&serveDir, "dir", "", "Transcript directory (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(&config.Config{
		Paths:  config.PathsConfig{TranscriptsDir: serveDir, StaticDir: serveStaticDir},
		Server: config.ServerConfig{Addr: serveAddr},
	})
	if err != nil {
		return err
	}

	handler := server.NewHandler(newScanner(cfg), cfg.Paths.StaticDir, logger)
	srv := server.New(cfg.Server.Addr, handler, logger)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		select {
		case <-srv.Ready():
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Context Compass server running at http://%s\n", srv.Addr())
			fmt.Fprintf(out, "Watching: %s\n", cfg.Paths.TranscriptsDir)
		case <-ctx.Done():
		}
	}()

	return srv.Serve(ctx)
}
