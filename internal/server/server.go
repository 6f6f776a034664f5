// Package server exposes the active-session snapshot over HTTP and serves the
// widget's static files.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/boshu2/contextcompass/internal/sessions"
)

const (
	// DefaultAddr is loopback only; the API has no authentication.
	DefaultAddr = "127.0.0.1:3847"

	// SessionsPath is matched as a prefix, so "/api/sessions/anything" and
	// "/api/sessions?x=1" both reach the API.
	SessionsPath = "/api/sessions"

	shutdownTimeout = 5 * time.Second
)

// contentTypes maps static file extensions to MIME types; anything else is
// served as text/plain.
var contentTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// ContentType returns the MIME type for a file name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "text/plain"
}

// Snapshotter produces the current snapshot. *sessions.Scanner satisfies it.
type Snapshotter interface {
	Scan() sessions.Snapshot
}

// Handler routes the sessions API and static files.
type Handler struct {
	scanner   Snapshotter
	staticDir string
	logger    *slog.Logger
}

// NewHandler builds a Handler. An empty staticDir disables static files.
func NewHandler(scanner Snapshotter, staticDir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{scanner: scanner, staticDir: staticDir, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	if urlPath == "/" {
		urlPath = "/index.html"
	}

	if strings.HasPrefix(urlPath, SessionsPath) {
		h.serveSessions(w)
		return
	}
	h.serveStatic(w, urlPath)
}

func (h *Handler) serveSessions(w http.ResponseWriter) {
	snap := h.scanner.Scan()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.logger.Warn("write sessions response", "error", err)
	}
}

func (h *Handler) serveStatic(w http.ResponseWriter, urlPath string) {
	if h.staticDir == "" {
		notFound(w)
		return
	}

	// Clean against a rooted path so ".." can never climb above staticDir.
	clean := path.Clean("/" + urlPath)
	full := filepath.Join(h.staticDir, filepath.FromSlash(clean))

	data, err := os.ReadFile(full)
	if err != nil {
		h.logger.Debug("static file not served", "path", clean, "error", err)
		notFound(w)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", ContentType(full))
	hdr.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("write static response", "path", clean, "error", err)
	}
}

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not found")) //nolint:errcheck // client went away
}

// Server binds a Handler to a listen address.
type Server struct {
	handler http.Handler
	address string
	logger  *slog.Logger
	ready   chan struct{}
	addr    net.Addr
}

// New returns a Server for address. Call Serve to start it.
func New(address string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if address == "" {
		address = DefaultAddr
	}
	return &Server{
		handler: handler,
		address: address,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound address. Only valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve accepts connections until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("serving", "url", "http://"+s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
