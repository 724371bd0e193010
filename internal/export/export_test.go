package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
)

func testSession() conversation.SessionRecord {
	return conversation.SessionRecord{
		Name: "OCR: invoice.png",
		Turns: []core.Turn{
			core.UserTurn("What is the **total**?"),
			core.AssistantTurn("The total is 42 EUR.\n```\n**kept**\n```"),
		},
		ModifiedAt: time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		ext     string
		wantErr bool
	}{
		{format: "json", ext: "json"},
		{format: "jsonl", ext: "jsonl"},
		{format: "yaml", ext: "yaml"},
		{format: "yml", ext: "yaml"},
		{format: "md", ext: "md"},
		{format: "markdown", ext: "md"},
		{format: "pdf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exporter, err := NewExporter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewExporter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if err == nil && exporter.Extension() != tt.ext {
				t.Errorf("extension: got %q, want %q", exporter.Extension(), tt.ext)
			}
		})
	}
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(testSession(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var decoded conversation.SessionRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Name != "OCR: invoice.png" || len(decoded.Turns) != 2 {
		t.Errorf("unexpected document %+v", decoded)
	}
}

func TestJSONLExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONLExporter{}).Export(testSession(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var turn core.Turn
	if err := json.Unmarshal([]byte(lines[0]), &turn); err != nil {
		t.Fatal(err)
	}
	if turn.Role != core.RoleUser {
		t.Errorf("role: got %q", turn.Role)
	}
}

func TestYAMLExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(testSession(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded["name"] != "OCR: invoice.png" {
		t.Errorf("name: got %v", decoded["name"])
	}
	turns, ok := decoded["turns"].([]any)
	if !ok || len(turns) != 2 {
		t.Errorf("turns: got %v", decoded["turns"])
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestYAMLExporter_WriteFailure(t *testing.T) {
	if err := (&YAMLExporter{}).Export(testSession(), failingWriter{}); err == nil {
		t.Fatal("expected the write failure to be reported")
	}
}

func TestMarkdownExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(testSession(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# OCR: invoice.png",
		"**Turns:** 2",
		"**You:**",
		"**Assistant:**",
		`What is the \*\*total\*\*?`,
		"```\n**kept**\n```",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
