package cli

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"", FormatText, false},
		{"yaml", "", true},
		{"JSON", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q) expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	data := struct {
		Model string  `json:"model"`
		Price float64 `json:"price"`
	}{Model: "gpt-4", Price: 0.03}

	if err := WriteJSON(buf, data); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("WriteJSON() produced invalid JSON: %v", err)
	}
	if result["model"] != "gpt-4" {
		t.Errorf("model = %v, want gpt-4", result["model"])
	}
	if buf.Bytes()[buf.Len()-1] != '\n' {
		t.Error("WriteJSON() should end output with a newline")
	}
}
