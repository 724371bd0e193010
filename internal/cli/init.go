package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config and check OCR tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = config.DefaultPath()
			}
			return runInit(cmd.OutOrStdout(), configPath)
		},
	}
}

func runInit(w io.Writer, configPath string) error {
	_, statErr := os.Stat(configPath)
	existed := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", configPath, statErr)
	}

	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if existed {
		fmt.Fprintln(w, styleDim.Render("config already exists at "+configPath))
	} else {
		fmt.Fprintln(w, styleSuccess.Render("wrote "+configPath))
	}

	tesseract := styleSuccess.Render("found")
	if _, err := exec.LookPath(cfg.Ingest.TesseractBin); err != nil {
		tesseract = styleWarning.Render("missing")
		if cfg.Ingest.OCREndpoint == "" {
			tesseract += styleDim.Render(" (images need tesseract or ingest.ocr_endpoint)")
		}
	}

	t := newTable("SETTING", "VALUE")
	t.Row("provider", cfg.Provider)
	t.Row("endpoint", cfg.Endpoint)
	t.Row("model", cfg.Model)
	t.Row("data dir", cfg.DataDir)
	t.Row("history", cfg.HistoryBackend)
	t.Row("tesseract", tesseract)
	fmt.Fprintln(w, t.Render())

	return nil
}
