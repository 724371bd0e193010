package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// RemoteIngestor uploads the artifact to an OCR service as the multipart field "file". The
// service answers {"extracted_text": ...} or {"text": ...} on success and {"error": ...} on
// failure.
type RemoteIngestor struct {
	Endpoint string
	Client   *http.Client
}

func NewRemoteIngestor(endpoint string, timeout time.Duration) *RemoteIngestor {
	return &RemoteIngestor{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

type remoteResponse struct {
	ExtractedText string `json:"extracted_text"`
	Text          string `json:"text"`
	Error         string `json:"error"`
}

func (r *RemoteIngestor) Ingest(ctx context.Context, artifact Artifact) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", artifact.Name)
	if err != nil {
		return "", ingestError(artifact, "build upload", err)
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return "", ingestError(artifact, "build upload", err)
	}
	if err := writer.Close(); err != nil {
		return "", ingestError(artifact, "build upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, &body)
	if err != nil {
		return "", ingestError(artifact, "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", ingestError(artifact, "ocr service unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return "", ingestError(artifact, "read ocr response", err)
	}

	var payload remoteResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", ingestError(artifact, "ocr service error", errors.New(resp.Status))
		}
		return "", ingestError(artifact, "decode ocr response", err)
	}

	text := payload.ExtractedText
	if text == "" {
		text = payload.Text
	}
	text = strings.TrimSpace(text)

	if text == "" && payload.Error != "" {
		if strings.Contains(strings.ToLower(payload.Error), "no readable text") {
			return "", noText(artifact)
		}
		return "", ingestError(artifact, "ocr service error", errors.New(payload.Error))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ingestError(artifact, "ocr service error", fmt.Errorf("%s", resp.Status))
	}
	if text == "" {
		return "", noText(artifact)
	}
	return text, nil
}
