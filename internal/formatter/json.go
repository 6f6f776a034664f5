package formatter

import (
	"encoding/json"
	"io"
)

// WriteJSON writes v as indented JSON without HTML escaping, so handoff text
// containing <, > or & stays readable.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
