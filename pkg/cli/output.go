package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat selects the output format for command results.
type OutputFormat string

const (
	// FormatText is the human-readable table output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is machine-readable JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseFormat maps a --format flag value to an OutputFormat. The empty
// string means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteJSON writes v to w as indented JSON with a trailing newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
