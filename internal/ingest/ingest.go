// Package ingest turns uploaded documents into plain text for the conversation.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/erg0nix/docchat/internal/core"
)

var (
	// ErrNoText reports a document that was read successfully but holds no text.
	ErrNoText = errors.New("no readable text found")
	// ErrUnsupported reports a document kind no ingestor handles.
	ErrUnsupported = errors.New("unsupported file type")
)

type Kind string

const (
	KindImage   Kind = "image"
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindText    Kind = "text"
	KindUnknown Kind = ""
)

// Artifact is an uploaded document.
type Artifact struct {
	Name string
	Kind Kind
	Data []byte
}

// NewArtifact names data and infers its kind from the file extension, falling back to the
// sniffed content type.
func NewArtifact(name string, data []byte) Artifact {
	kind := KindFromName(name)
	if kind == KindUnknown {
		kind = KindFromMIME(http.DetectContentType(data))
	}
	return Artifact{Name: name, Kind: kind, Data: data}
}

// Hash identifies the artifact's content.
func (a Artifact) Hash() string {
	sum := sha256.Sum256(a.Data)
	return hex.EncodeToString(sum[:])
}

// Ingestor extracts text from an artifact. Failures are *core.IngestError; an artifact with
// no text fails with an error matching ErrNoText.
type Ingestor interface {
	Ingest(ctx context.Context, artifact Artifact) (string, error)
}

// IngestorFunc adapts a function to Ingestor.
type IngestorFunc func(ctx context.Context, artifact Artifact) (string, error)

func (f IngestorFunc) Ingest(ctx context.Context, artifact Artifact) (string, error) {
	return f(ctx, artifact)
}

func KindFromName(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return KindImage
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".txt", ".md", ".csv", ".log", ".json":
		return KindText
	default:
		return KindUnknown
	}
}

func KindFromMIME(contentType string) Kind {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return KindImage
	case mediaType == "application/pdf":
		return KindPDF
	case mediaType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return KindDOCX
	case strings.HasPrefix(mediaType, "text/"):
		return KindText
	default:
		return KindUnknown
	}
}

func ingestError(artifact Artifact, reason string, err error) *core.IngestError {
	return &core.IngestError{Artifact: artifact.Name, Reason: reason, Err: err}
}

func noText(artifact Artifact) *core.IngestError {
	return ingestError(artifact, "empty document", ErrNoText)
}
