package export

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/erg0nix/docchat/internal/conversation"
)

type YAMLExporter struct{}

func (e *YAMLExporter) Export(session conversation.SessionRecord, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(session); err != nil {
		enc.Close()
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}
