package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/chat"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			sessionName, _ := cmd.Flags().GetString("session")
			noStream, _ := cmd.Flags().GetBool("no-stream")

			return runChat(cmd.Context(), a, sessionName, a.Config.Stream && !noStream)
		},
	}

	cmd.Flags().StringP("session", "s", "", "chat to continue")
	cmd.Flags().Bool("no-stream", false, "wait for whole replies")

	return cmd
}

func runChat(ctx context.Context, a *App, sessionName string, stream bool) error {
	services, err := a.services(ctx)
	if err != nil {
		return err
	}
	defer services.Close()

	orch := services.Orchestrator
	if err := selectSession(ctx, orch, sessionName, false); err != nil {
		return err
	}

	fmt.Println(styleDim.Render("model " + a.Config.Model + " via " + a.Config.Provider + ". /help for commands."))
	return repl(ctx, orch, os.Stdin, os.Stdout, stream)
}

// repl reads one line at a time. Lines starting with "/" are commands; anything else is sent
// to the active chat. An interrupt during a reply cancels that reply only.
func repl(ctx context.Context, orch *chat.Orchestrator, in io.Reader, out io.Writer, stream bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(out, stylePrompt.Render(promptLabel(orch.ActiveName())+">")+" ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var action chat.Action
		if strings.HasPrefix(line, "/") {
			name, args := parseSlashCommand(line)
			next, quit, err := runSlashCommand(ctx, orch, name, args, out)
			if err != nil {
				fmt.Fprintln(out, styledError(err.Error()))
			}
			if quit {
				return nil
			}
			if next == nil {
				continue
			}
			action = *next
		} else {
			action = chat.Action{Text: line}
		}
		action.Stream = stream

		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		_, err := submit(turnCtx, orch, action, out)
		stop()
		if err != nil {
			fmt.Fprintln(out, styledError(err.Error()))
		}
	}
}

func promptLabel(active string) string {
	if active == "" {
		return "docchat"
	}
	return active
}

func parseSlashCommand(input string) (name string, args string) {
	input = strings.TrimPrefix(input, "/")
	name, args, _ = strings.Cut(input, " ")
	return name, strings.TrimSpace(args)
}

const replHelp = `/new [name]              start a new chat
/clear                   empty the current chat
/file <path> [question]  send a document, optionally with a question
/sessions                list chats
/use <name>              switch to another chat
/quit                    leave`

// runSlashCommand executes one REPL command. It returns an action when the command sends
// something to the model.
func runSlashCommand(ctx context.Context, orch *chat.Orchestrator, name, args string, out io.Writer) (*chat.Action, bool, error) {
	switch name {
	case "quit", "exit", "q":
		return nil, true, nil

	case "help":
		fmt.Fprintln(out, styleDim.Render(replHelp))

	case "new":
		created, err := orch.NewChat(ctx, args)
		if err := tolerateSaveError(out, err); err != nil {
			return nil, false, err
		}
		fmt.Fprintln(out, styleSuccess.Render("started "+created))

	case "clear":
		if err := tolerateSaveError(out, orch.ClearChat(ctx)); err != nil {
			return nil, false, err
		}
		fmt.Fprintln(out, styleSuccess.Render("cleared "+orch.ActiveName()))

	case "sessions":
		printSessionsTable(out, orch.Sessions())

	case "use":
		if args == "" {
			return nil, false, fmt.Errorf("usage: /use <name>")
		}
		if err := tolerateSaveError(out, orch.Activate(ctx, args)); err != nil {
			return nil, false, err
		}
		fmt.Fprintln(out, styleSuccess.Render("switched to "+args))

	case "file":
		path, question, _ := strings.Cut(args, " ")
		if path == "" {
			return nil, false, fmt.Errorf("usage: /file <path> [question]")
		}
		artifact, err := readArtifact(path)
		if err != nil {
			return nil, false, err
		}
		return &chat.Action{Text: strings.TrimSpace(question), Artifact: &artifact}, false, nil

	default:
		return nil, false, fmt.Errorf("unknown command /%s, try /help", name)
	}

	return nil, false, nil
}
