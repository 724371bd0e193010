package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
)

// MarkdownExporter renders the transcript for reading. Document text embedded in user turns is
// kept verbatim.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(session conversation.SessionRecord, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# %s\n\n", session.Name); err != nil {
		return err
	}
	if !session.ModifiedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Modified:** %s  \n", session.ModifiedAt.Format("2006-01-02 15:04"))
	}
	_, _ = fmt.Fprintf(w, "**Turns:** %d\n\n", len(session.Turns))
	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, turn := range session.Turns {
		_, _ = fmt.Fprintf(w, "**%s:**\n\n%s\n\n", speaker(turn.Role), escapeMarkdown(turn.Content))

		if i < len(session.Turns)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

func speaker(role core.Role) string {
	switch role {
	case core.RoleUser:
		return "You"
	case core.RoleAssistant:
		return "Assistant"
	case core.RoleSystem:
		return "System"
	default:
		return string(role)
	}
}

// escapeMarkdown neutralises bold and underline markers outside fenced code blocks.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCodeBlock := false

	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}
		line = strings.ReplaceAll(line, "**", "\\*\\*")
		lines[i] = strings.ReplaceAll(line, "__", "\\_\\_")
	}

	return strings.Join(lines, "\n")
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
