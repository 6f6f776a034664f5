// Package clip copies text to the system clipboard. Failures are logged and
// otherwise ignored; a missing clipboard never breaks a command.
package clip

import (
	"log/slog"

	"github.com/atotto/clipboard"
)

// writeAll is swapped out in tests.
var writeAll = clipboard.WriteAll

// Copy writes text to the clipboard and reports whether it succeeded.
func Copy(text string, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clipboard.Unsupported {
		logger.Warn("clipboard unavailable on this system")
		return false
	}
	if err := writeAll(text); err != nil {
		logger.Warn("copy to clipboard failed", "error", err)
		return false
	}
	logger.Debug("copied to clipboard", "bytes", len(text))
	return true
}
