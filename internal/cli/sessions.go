package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/app"
	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
	"github.com/erg0nix/docchat/internal/export"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage saved chats",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all chats",
		Args:  cobra.NoArgs,
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, _ []string) error {
			printSessionsTable(os.Stdout, s.Orchestrator.Sessions())
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "List chats whose name contains query",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			printSessionsTable(os.Stdout, s.Orchestrator.Search(args[0]))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print a chat transcript",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			turns, err := s.Orchestrator.Transcript(args[0])
			if err != nil {
				return err
			}
			printTranscript(os.Stdout, turns)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new [name]",
		Short: "Start a new chat and make it active",
		Args:  cobra.MaximumNArgs(1),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			hint := ""
			if len(args) == 1 {
				hint = args[0]
			}
			name, err := s.Orchestrator.NewChat(cmd.Context(), hint)
			if err := tolerateSaveError(cmd.OutOrStdout(), err); err != nil {
				return err
			}
			fmt.Println(styleSuccess.Render("started " + name))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <name>",
		Short: "Make a chat active",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			if err := tolerateSaveError(cmd.OutOrStdout(), s.Orchestrator.Activate(cmd.Context(), args[0])); err != nil {
				return err
			}
			fmt.Println(styleSuccess.Render("switched to " + args[0]))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a chat",
		Args:  cobra.ExactArgs(2),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			name, err := s.Orchestrator.Rename(cmd.Context(), args[0], args[1])
			if err := tolerateSaveError(cmd.OutOrStdout(), err); err != nil {
				return err
			}
			fmt.Println(styleSuccess.Render("renamed to " + name))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			if err := tolerateSaveError(cmd.OutOrStdout(), s.Orchestrator.Delete(cmd.Context(), args[0])); err != nil {
				return err
			}
			fmt.Println(styleSuccess.Render("deleted " + args[0]))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <name>",
		Short: "Remove every turn from a chat",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			if err := tolerateSaveError(cmd.OutOrStdout(), s.Orchestrator.ResetSession(cmd.Context(), args[0])); err != nil {
				return err
			}
			fmt.Println(styleSuccess.Render("reset " + args[0]))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every chat",
		Args:  cobra.NoArgs,
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, _ []string) error {
			if err := tolerateSaveError(cmd.OutOrStdout(), s.Orchestrator.ClearHistory(cmd.Context())); err != nil {
				return err
			}
			fmt.Println(styleSuccess.Render("history cleared"))
			return nil
		}),
	})

	cmd.AddCommand(newSessionsExportCmd())

	return cmd
}

func newSessionsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Write a chat as json, jsonl, yaml or markdown",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			exporter, err := export.NewExporter(format)
			if err != nil {
				return err
			}

			record, err := findRecord(s.Orchestrator.Snapshot(), args[0])
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return exporter.Export(record, os.Stdout)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			defer f.Close()

			if err := exporter.Export(record, f); err != nil {
				return fmt.Errorf("export %s: %w", args[0], err)
			}
			fmt.Println(styleSuccess.Render("wrote " + output))
			return nil
		}),
	}

	cmd.Flags().String("format", "md", "json, jsonl, yaml or md")
	cmd.Flags().StringP("output", "o", "", "output file (default stdout)")

	return cmd
}

// withServices loads config and history around a subcommand.
func withServices(run func(*cobra.Command, *app.Services, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		services, err := a.services(cmd.Context())
		if err != nil {
			return err
		}
		defer services.Close()

		return run(cmd, services, args)
	}
}

func findRecord(snap conversation.Snapshot, name string) (conversation.SessionRecord, error) {
	for _, record := range snap.Sessions {
		if record.Name == name {
			return record, nil
		}
	}
	return conversation.SessionRecord{}, &core.NotFoundError{Name: name}
}

func printSessionsTable(w io.Writer, summaries []conversation.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, styleDim.Render("No chats found."))
		return
	}

	t := newTable("", "NAME", "TURNS", "LAST", "MODIFIED", "PREVIEW")
	for _, summary := range summaries {
		marker := " "
		name := summary.Name
		if summary.Active {
			marker = styleActive.Render("*")
			name = styleActive.Render(name)
		}

		last := "-"
		if summary.LastRole != "" {
			last = string(summary.LastRole)
		}

		t.Row(marker, name, strconv.Itoa(summary.TurnCount), last, formatTime(summary.ModifiedAt), summary.Preview)
	}

	fmt.Fprintln(w, t.Render())
}

func printTranscript(w io.Writer, turns []core.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, styleDim.Render("This chat is empty."))
		return
	}

	for i, turn := range turns {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, roleLabel(turn.Role))
		fmt.Fprintln(w, turn.Content)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
