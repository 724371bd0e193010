package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/app"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Print the text extracted from a document or image",
		Args:  cobra.ExactArgs(1),
		RunE: withServices(func(cmd *cobra.Command, s *app.Services, args []string) error {
			summarize, _ := cmd.Flags().GetBool("summarize")

			artifact, err := readArtifact(args[0])
			if err != nil {
				return err
			}

			if !summarize {
				text, err := s.Orchestrator.Ingest(cmd.Context(), artifact)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			}

			text, reply, err := s.Orchestrator.Summarize(cmd.Context(), artifact)
			if text == "" && err != nil {
				return err
			}

			fmt.Println(styleTableHeader.Render("extracted text"))
			fmt.Println(text)
			fmt.Println()
			fmt.Println(styleTableHeader.Render("summary"))
			if err != nil {
				fmt.Println(styledError("summary failed", err.Error()))
				return nil
			}
			fmt.Println(reply.Content)
			return nil
		}),
	}

	cmd.Flags().Bool("summarize", false, "also ask the model for a summary")

	return cmd
}
