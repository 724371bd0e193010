// Package cli implements the Cobra command tree for the docchat CLI.
package cli

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/app"
	"github.com/erg0nix/docchat/internal/config"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "docchat [prompt]",
		Short:         "Chat with a local model about your documents",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE:          runCmd,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("server", "", "gRPC address of a running server")
	rootCmd.PersistentFlags().String("model", "", "model to use (overrides config)")

	rootCmd.Flags().StringP("file", "f", "", "document or image to include")
	rootCmd.Flags().StringP("session", "s", "", "chat to continue")
	rootCmd.Flags().Bool("new", false, "start a new chat")
	rootCmd.Flags().Bool("no-stream", false, "wait for the whole reply")
	rootCmd.Flags().Bool("remote", false, "send the prompt through a running server")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newInitCmd())

	return rootCmd
}

func loadConfig(path string) (config.Config, error) {
	configPath := path
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	return config.LoadOrCreate(configPath)
}

func resolveServer(override string, cfg config.Config) string {
	if override != "" {
		return override
	}
	return clientAddrFromBind(cfg.Bind)
}

func clientAddrFromBind(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil || port == "" {
		return bind
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1:" + port
	}
	return bind
}

func alreadyRunning(dataDir string) bool {
	return app.ReadPID(app.PIDFile(dataDir)) != 0
}

func printServerNotRunning(addr string, err error) {
	fmt.Println(styleError.Render("server is not running at " + addr))
	fmt.Println("start with: " + styleCommand.Render("docchat serve"))
	if err != nil {
		fmt.Println(styleDim.Render(err.Error()))
	}
}
