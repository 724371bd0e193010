package conversation

import (
	"strings"

	"github.com/erg0nix/docchat/internal/core"
)

const (
	// DefaultDocumentBudget caps how many characters of extracted document text reach the model.
	DefaultDocumentBudget = 6000

	// DocumentPreamble instructs the model to answer from the injected document text.
	DocumentPreamble = "You are a helpful AI assistant that analyzes the provided document text " +
		"and answers user questions strictly based on its content. " +
		"If the question asks for a summary or explanation, provide a clear, concise, and structured answer."
)

// PromptAssembler builds the exact message sequence sent to an inference gateway. It holds no
// state besides its settings, so Assemble is a pure function of its inputs.
type PromptAssembler struct {
	SystemInstruction string
	DocumentBudget    int
}

// Assemble returns the standing instruction (unless the session already leads with one), the
// full session history and the new user turn, in that order.
func (a PromptAssembler) Assemble(session *Session, userText, documentContext string) []core.Turn {
	var history []core.Turn
	if session != nil {
		history = session.turns
	}

	out := make([]core.Turn, 0, len(history)+2)

	instruction := strings.TrimSpace(a.SystemInstruction)
	leadsWithSystem := len(history) > 0 && history[0].Role == core.RoleSystem
	if instruction != "" && !leadsWithSystem {
		out = append(out, core.SystemTurn(instruction))
	}

	out = append(out, history...)
	out = append(out, a.UserTurn(userText, documentContext))

	return out
}

// UserTurn builds the user turn for userText, embedding documentContext cut to the document
// budget when it is not empty.
func (a PromptAssembler) UserTurn(userText, documentContext string) core.Turn {
	if strings.TrimSpace(documentContext) == "" {
		return core.UserTurn(userText)
	}

	budget := a.DocumentBudget
	if budget <= 0 {
		budget = DefaultDocumentBudget
	}

	var b strings.Builder
	b.WriteString(DocumentPreamble)
	b.WriteString("\n\nUser query: ")
	b.WriteString(userText)
	b.WriteString("\n\nDocument content:\n")
	b.WriteString(prefixRunes(documentContext, budget))

	return core.UserTurn(b.String())
}

func prefixRunes(text string, limit int) string {
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
