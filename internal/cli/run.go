package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/erg0nix/docchat/internal/chat"
	"github.com/erg0nix/docchat/internal/core"
	"github.com/erg0nix/docchat/internal/ingest"
	"github.com/erg0nix/docchat/internal/rpc"
)

func runCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	filePath, _ := cmd.Flags().GetString("file")
	sessionName, _ := cmd.Flags().GetString("session")
	newChat, _ := cmd.Flags().GetBool("new")
	noStream, _ := cmd.Flags().GetBool("no-stream")
	remote, _ := cmd.Flags().GetBool("remote")

	ctx := cmd.Context()
	prompt := strings.TrimSpace(strings.Join(args, " "))

	if prompt == "" && filePath == "" {
		if isInteractive() {
			return runChat(ctx, a, sessionName, a.Config.Stream && !noStream)
		}
		return fmt.Errorf("prompt or --file is required")
	}

	if remote {
		if filePath != "" {
			return fmt.Errorf("--file is not supported with --remote")
		}
		return runRemote(ctx, a, prompt, sessionName, os.Stdout)
	}

	services, err := a.services(ctx)
	if err != nil {
		return err
	}
	defer services.Close()

	orch := services.Orchestrator
	if err := selectSession(ctx, orch, sessionName, newChat); err != nil {
		return err
	}

	action := chat.Action{Text: prompt, Stream: a.Config.Stream && !noStream}
	if filePath != "" {
		artifact, err := readArtifact(filePath)
		if err != nil {
			return err
		}
		action.Artifact = &artifact
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if _, err := submit(ctx, orch, action, os.Stdout); err != nil {
		fmt.Println(styledError(err.Error()))
	}
	return nil
}

// selectSession activates the chat the user asked for. A named chat that does not exist yet is
// created under that name.
func selectSession(ctx context.Context, orch *chat.Orchestrator, name string, fresh bool) error {
	name = strings.TrimSpace(name)

	if fresh {
		_, err := orch.NewChat(ctx, name)
		return tolerateSaveError(io.Discard, err)
	}
	if name == "" {
		return nil
	}

	err := orch.Activate(ctx, name)
	var notFound *core.NotFoundError
	if errors.As(err, &notFound) {
		_, err = orch.NewChat(ctx, name)
	}
	return tolerateSaveError(io.Discard, err)
}

func readArtifact(path string) (ingest.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Artifact{}, fmt.Errorf("read %s: %w", path, err)
	}
	return ingest.NewArtifact(filepath.Base(path), data), nil
}

// submit runs one action, printing fragments to w as they arrive and a status line afterwards.
func submit(ctx context.Context, orch *chat.Orchestrator, action chat.Action, w io.Writer) (chat.Outcome, error) {
	streamed := false

	var onFragment chat.FragmentFunc
	if action.Stream {
		onFragment = func(fragment string) bool {
			streamed = true
			fmt.Fprint(w, fragment)
			return true
		}
	}

	outcome, err := orch.Submit(ctx, action, onFragment)
	if err != nil {
		return outcome, err
	}

	renderOutcome(w, outcome, streamed)
	return outcome, nil
}

func renderOutcome(w io.Writer, outcome chat.Outcome, streamed bool) {
	if streamed {
		fmt.Fprintln(w)
	}

	for _, warning := range outcome.Warnings {
		fmt.Fprintln(w, styleWarning.Render("warning: "+warning))
	}

	switch {
	case outcome.Cancelled:
		fmt.Fprintln(w, styleWarning.Render("cancelled, nothing saved"))
	case !outcome.Appended && outcome.Duplicate:
		fmt.Fprintln(w, styleDim.Render("document already processed in this chat"))
	case outcome.Err != nil:
		fmt.Fprintln(w, styleError.Render(outcome.Reply.Content))
	case !streamed:
		fmt.Fprintln(w, outcome.Reply.Content)
	}

	if outcome.Appended && outcome.Duplicate {
		fmt.Fprintln(w, styleDim.Render("document already processed, sent the question alone"))
	}
	if outcome.PersistErr != nil {
		fmt.Fprintln(w, styleWarning.Render("history not saved: "+outcome.PersistErr.Error()))
	}
	if usage := outcome.Usage; usage != nil {
		fmt.Fprintln(w, styleDim.Render(fmt.Sprintf("tokens in:%d out:%d", usage.PromptTokens, usage.CompletionTokens)))
	}
}

func runRemote(ctx context.Context, a *App, prompt, session string, w io.Writer) error {
	client, err := rpc.Dial(a.ServerAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	for frame, err := range client.Stream(ctx, prompt, session) {
		if status.Code(err) == codes.Unavailable {
			printServerNotRunning(a.ServerAddr, err)
			return nil
		}
		if err != nil {
			fmt.Fprintln(w, styledError(status.Convert(err).Message()))
			return nil
		}

		switch frame["type"] {
		case "fragment":
			content, _ := frame["content"].(string)
			fmt.Fprint(w, content)
		case "done":
			fmt.Fprintln(w)
			if msg, ok := frame["error"].(string); ok {
				fmt.Fprintln(w, styleError.Render(chat.TransportErrorPrefix+msg))
			}
			if msg, ok := frame["persist_error"].(string); ok {
				fmt.Fprintln(w, styleWarning.Render("history not saved: "+msg))
			}
		}
	}
	return nil
}

// tolerateSaveError turns a failed history write into a warning on w. The in-memory change has
// already happened; any other error is returned unchanged.
func tolerateSaveError(w io.Writer, err error) error {
	var persistErr *core.PersistenceError
	if !errors.As(err, &persistErr) {
		return err
	}
	fmt.Fprintln(w, styleWarning.Render("warning: "+persistErr.Error()))
	return nil
}
