package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/app"
	"github.com/erg0nix/docchat/internal/config"
)

type App struct {
	Config     config.Config
	ConfigPath string
	ServerAddr string
}

func newApp(cmd *cobra.Command) (*App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	serverOverride, _ := cmd.Flags().GetString("server")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Model = model
	}

	app.SetupLogging(os.Stderr, cfg.LogLevel)

	return &App{
		Config:     cfg,
		ConfigPath: configPath,
		ServerAddr: resolveServer(serverOverride, cfg),
	}, nil
}

// services wires an in-process orchestrator over the local history.
func (a *App) services(ctx context.Context) (*app.Services, error) {
	return app.NewServices(ctx, a.Config)
}
