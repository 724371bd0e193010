package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/erg0nix/docchat/internal/config"
)

// Router dispatches an artifact to the ingestor registered for its kind.
type Router struct {
	ingestors map[Kind]Ingestor
	maxBytes  int64
}

func NewRouter(maxBytes int64) *Router {
	return &Router{ingestors: make(map[Kind]Ingestor), maxBytes: maxBytes}
}

// New wires the default ingestors: built-in text, PDF and DOCX readers, and image OCR through
// tesseract with the remote OCR service as fallback when one is configured.
func New(cfg config.IngestConfig, timeout time.Duration) *Router {
	router := NewRouter(cfg.MaxUploadBytes)
	router.Register(KindText, TextIngestor{})
	router.Register(KindPDF, PDFIngestor{})
	router.Register(KindDOCX, DOCXIngestor{})

	var image []Ingestor
	if cfg.TesseractBin != "" {
		image = append(image, TesseractIngestor{BinPath: cfg.TesseractBin, Languages: cfg.Languages})
	}
	if cfg.OCREndpoint != "" {
		image = append(image, NewRemoteIngestor(cfg.OCREndpoint, timeout))
	}
	if len(image) > 0 {
		router.Register(KindImage, FirstOf(image...))
	}

	return router
}

func (r *Router) Register(kind Kind, ingestor Ingestor) {
	r.ingestors[kind] = ingestor
}

func (r *Router) Ingest(ctx context.Context, artifact Artifact) (string, error) {
	if r.maxBytes > 0 && int64(len(artifact.Data)) > r.maxBytes {
		return "", ingestError(artifact, fmt.Sprintf("file exceeds %d bytes", r.maxBytes), nil)
	}

	kind := artifact.Kind
	if kind == KindUnknown {
		kind = NewArtifact(artifact.Name, artifact.Data).Kind
	}

	ingestor, ok := r.ingestors[kind]
	if !ok {
		return "", ingestError(artifact, "no ingestor for this kind", ErrUnsupported)
	}
	return ingestor.Ingest(ctx, artifact)
}

// FirstOf tries each ingestor in order and returns the first text found. When all fail, the
// last error is returned.
func FirstOf(ingestors ...Ingestor) Ingestor {
	return IngestorFunc(func(ctx context.Context, artifact Artifact) (string, error) {
		var lastErr error
		for _, ingestor := range ingestors {
			text, err := ingestor.Ingest(ctx, artifact)
			if err == nil {
				return text, nil
			}
			if ctx.Err() != nil {
				return "", err
			}
			slog.Debug("ingestor failed, trying next", "artifact", artifact.Name, "error", err)
			lastErr = err
		}
		if lastErr == nil {
			return "", ingestError(artifact, "no ingestor for this kind", ErrUnsupported)
		}
		return "", lastErr
	})
}
