package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFIngestor extracts the text layer of a PDF. Scanned PDFs without a text layer yield
// ErrNoText.
type PDFIngestor struct{}

func (PDFIngestor) Ingest(_ context.Context, artifact Artifact) (text string, err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = ingestError(artifact, "parse pdf", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(artifact.Data), int64(len(artifact.Data)))
	if err != nil {
		return "", ingestError(artifact, "open pdf", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", ingestError(artifact, "extract pdf text", err)
	}

	data, err := io.ReadAll(plain)
	if err != nil {
		return "", ingestError(artifact, "read pdf text", err)
	}

	text = strings.TrimSpace(string(data))
	if text == "" {
		return "", noText(artifact)
	}
	return text, nil
}
