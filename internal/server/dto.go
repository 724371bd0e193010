package server

import (
	"time"

	"github.com/erg0nix/docchat/internal/chat"
	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
)

type chatRequest struct {
	Text    string `json:"text"`
	Session string `json:"session,omitempty"`
	Stream  *bool  `json:"stream,omitempty"`
}

type chatResponse struct {
	Session      string      `json:"session"`
	Reply        string      `json:"reply,omitempty"`
	Appended     bool        `json:"appended"`
	Duplicate    bool        `json:"duplicate,omitempty"`
	Cancelled    bool        `json:"cancelled,omitempty"`
	Warnings     []string    `json:"warnings,omitempty"`
	Error        string      `json:"error,omitempty"`
	PersistError string      `json:"persist_error,omitempty"`
	Usage        *core.Usage `json:"usage,omitempty"`
}

type sessionResult struct {
	Name         string `json:"name,omitempty"`
	Active       string `json:"active,omitempty"`
	PersistError string `json:"persist_error,omitempty"`
}

type sessionResponse struct {
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	TurnCount  int       `json:"turn_count"`
	LastRole   core.Role `json:"last_role,omitempty"`
	Preview    string    `json:"preview,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

type transcriptResponse struct {
	Name  string      `json:"name"`
	Turns []core.Turn `json:"turns"`
}

type ocrResponse struct {
	ExtractedText string `json:"extracted_text,omitempty"`
	AISummary     string `json:"ai_summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

func toChatResponse(outcome chat.Outcome) chatResponse {
	resp := chatResponse{
		Session:   outcome.Session,
		Appended:  outcome.Appended,
		Duplicate: outcome.Duplicate,
		Cancelled: outcome.Cancelled,
		Warnings:  outcome.Warnings,
		Usage:     outcome.Usage,
	}
	if outcome.Appended {
		resp.Reply = outcome.Reply.Content
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	if outcome.PersistErr != nil {
		resp.PersistError = outcome.PersistErr.Error()
	}
	return resp
}

func toSessionResponse(summary conversation.Summary) sessionResponse {
	return sessionResponse{
		Name:       summary.Name,
		Active:     summary.Active,
		TurnCount:  summary.TurnCount,
		LastRole:   summary.LastRole,
		Preview:    summary.Preview,
		ModifiedAt: summary.ModifiedAt,
	}
}

func toSessionsResponse(summaries []conversation.Summary) []sessionResponse {
	out := make([]sessionResponse, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, toSessionResponse(summary))
	}
	return out
}
