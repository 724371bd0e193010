package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// TesseractIngestor runs the tesseract CLI over image data.
type TesseractIngestor struct {
	BinPath   string
	Languages string
}

func (t TesseractIngestor) Ingest(ctx context.Context, artifact Artifact) (string, error) {
	bin := t.BinPath
	if bin == "" {
		bin = "tesseract"
	}

	args := []string{"stdin", "stdout"}
	if t.Languages != "" {
		args = append(args, "-l", t.Languages)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(artifact.Data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ingestError(artifact, "tesseract not installed", err)
		}
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return "", ingestError(artifact, "run tesseract", err)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", noText(artifact)
	}
	return text, nil
}
