package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// DOCXIngestor reads the paragraphs of word/document.xml, one line per paragraph.
type DOCXIngestor struct{}

func (DOCXIngestor) Ingest(_ context.Context, artifact Artifact) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(artifact.Data), int64(len(artifact.Data)))
	if err != nil {
		return "", ingestError(artifact, "open docx", err)
	}

	file, err := archive.Open("word/document.xml")
	if err != nil {
		return "", ingestError(artifact, "open docx body", err)
	}
	defer file.Close()

	paragraphs, err := docxParagraphs(file)
	if err != nil {
		return "", ingestError(artifact, "parse docx body", err)
	}

	text := strings.TrimSpace(strings.Join(paragraphs, "\n"))
	if text == "" {
		return "", noText(artifact)
	}
	return text, nil
}

func docxParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	return paragraphs, nil
}
