package ingest

import (
	"context"
	"strings"
	"unicode/utf8"
)

// TextIngestor decodes plain-text uploads.
type TextIngestor struct{}

func (TextIngestor) Ingest(_ context.Context, artifact Artifact) (string, error) {
	text := string(artifact.Data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.TrimPrefix(text, "\ufeff")

	text = strings.TrimSpace(text)
	if text == "" {
		return "", noText(artifact)
	}
	return text, nil
}
