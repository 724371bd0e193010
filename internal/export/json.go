package export

import (
	"encoding/json"
	"io"

	"github.com/erg0nix/docchat/internal/conversation"
)

// JSONExporter writes the session as one indented JSON document.
type JSONExporter struct{}

func (e *JSONExporter) Export(session conversation.SessionRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(session)
}

func (e *JSONExporter) Extension() string {
	return "json"
}

// JSONLExporter writes one {role, content} object per line.
type JSONLExporter struct{}

func (e *JSONLExporter) Export(session conversation.SessionRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, turn := range session.Turns {
		if err := enc.Encode(turn); err != nil {
			return err
		}
	}
	return nil
}

func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
