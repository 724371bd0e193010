package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erg0nix/docchat/internal/config"
	"github.com/erg0nix/docchat/internal/core"
)

func staticIngestor(text string, err error) Ingestor {
	return IngestorFunc(func(context.Context, Artifact) (string, error) {
		return text, err
	})
}

func TestRouter_Dispatch(t *testing.T) {
	router := NewRouter(0)
	router.Register(KindImage, staticIngestor("from image", nil))
	router.Register(KindText, TextIngestor{})

	text, err := router.Ingest(context.Background(), NewArtifact("scan.png", []byte{1, 2, 3}))
	if err != nil || text != "from image" {
		t.Errorf("image: got (%q, %v)", text, err)
	}

	text, err = router.Ingest(context.Background(), Artifact{Name: "notes", Data: []byte("sniffed")})
	if err != nil || text != "sniffed" {
		t.Errorf("sniffed text: got (%q, %v)", text, err)
	}
}

func TestRouter_Unsupported(t *testing.T) {
	router := NewRouter(0)

	_, err := router.Ingest(context.Background(), NewArtifact("a.pdf", []byte("%PDF")))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestRouter_TooLarge(t *testing.T) {
	router := NewRouter(4)
	router.Register(KindText, TextIngestor{})

	_, err := router.Ingest(context.Background(), NewArtifact("a.txt", []byte("too long")))

	var ingestErr *core.IngestError
	if !errors.As(err, &ingestErr) {
		t.Fatalf("expected IngestError, got %v", err)
	}
}

func TestFirstOf(t *testing.T) {
	failing := staticIngestor("", &core.IngestError{Artifact: "x", Reason: "down"})
	empty := staticIngestor("", &core.IngestError{Artifact: "x", Reason: "empty", Err: ErrNoText})

	text, err := FirstOf(failing, staticIngestor("ok", nil)).Ingest(context.Background(), Artifact{})
	if err != nil || text != "ok" {
		t.Errorf("fallback: got (%q, %v)", text, err)
	}

	_, err = FirstOf(failing, empty).Ingest(context.Background(), Artifact{})
	if !errors.Is(err, ErrNoText) {
		t.Errorf("expected last error ErrNoText, got %v", err)
	}

	_, err = FirstOf().Ingest(context.Background(), Artifact{})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestNew_RemoteFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"extracted_text":"remote text"}`)
	}))
	defer server.Close()

	router := New(config.IngestConfig{
		TesseractBin: "docchat-no-such-tesseract",
		OCREndpoint:  server.URL,
	}, 0)

	text, err := router.Ingest(context.Background(), NewArtifact("scan.png", []byte{0x89, 'P', 'N', 'G'}))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if text != "remote text" {
		t.Errorf("got %q", text)
	}
}

func TestRemoteIngestor(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
		noText  bool
	}{
		{name: "extracted_text", status: 200, body: `{"extracted_text":" hello "}`, want: "hello"},
		{name: "text", status: 200, body: `{"text":"hi"}`, want: "hi"},
		{name: "error payload", status: 200, body: `{"error":"Unsupported file type."}`, wantErr: true},
		{name: "no readable text", status: 200, body: `{"error":"No readable text found in file."}`, wantErr: true, noText: true},
		{name: "empty payload", status: 200, body: `{}`, wantErr: true, noText: true},
		{name: "server error", status: 502, body: `bad gateway`, wantErr: true},
		{name: "not json", status: 200, body: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFile string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				file, header, err := r.FormFile("file")
				if err == nil {
					data, _ := io.ReadAll(file)
					gotFile = header.Filename + ":" + string(data)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			ingestor := NewRemoteIngestor(server.URL, 0)
			text, err := ingestor.Ingest(context.Background(), Artifact{Name: "scan.png", Data: []byte("img")})

			if gotFile != "scan.png:img" {
				t.Errorf("upload: got %q", gotFile)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if tt.noText && !errors.Is(err, ErrNoText) {
				t.Errorf("expected ErrNoText, got %v", err)
			}
			if text != tt.want {
				t.Errorf("got %q, want %q", text, tt.want)
			}
		})
	}
}
