package conversation

import (
	"strings"
)

const (
	// DefaultSessionName names the placeholder chat a fresh store starts with.
	DefaultSessionName = "New Chat"

	promptTitleWidth = 25
)

// TitleFromPrompt derives a chat title from the first prompt of a conversation.
func TitleFromPrompt(prompt string) string {
	prompt = strings.Join(strings.Fields(prompt), " ")
	if prompt == "" {
		return DefaultSessionName
	}
	return truncateRunes(prompt, promptTitleWidth, "...")
}

// TitleFromArtifact derives a chat title from an uploaded file name.
func TitleFromArtifact(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "upload"
	}
	return "OCR: " + filename
}
