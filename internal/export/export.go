// Package export writes session transcripts in shareable formats.
package export

import (
	"fmt"
	"io"

	"github.com/erg0nix/docchat/internal/conversation"
)

// Exporter writes one session to w.
type Exporter interface {
	Export(session conversation.SessionRecord, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "jsonl":
		return &JSONLExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, jsonl, yaml, md)", format)
	}
}
