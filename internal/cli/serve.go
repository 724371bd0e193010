package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/app"
	"github.com/erg0nix/docchat/internal/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docchat server (HTTP, WebSocket and gRPC)",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}

	cmd.Flags().Bool("foreground", false, "run server in foreground")
	cmd.Flags().String("bind", "", "gRPC bind address (overrides config)")
	cmd.Flags().String("http-bind", "", "HTTP bind address (overrides config)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	cfg := a.Config
	if bind, _ := cmd.Flags().GetString("bind"); bind != "" {
		cfg.Bind = bind
	}
	if httpBind, _ := cmd.Flags().GetString("http-bind"); httpBind != "" {
		cfg.HTTPBind = httpBind
	}

	if foreground, _ := cmd.Flags().GetBool("foreground"); foreground {
		return app.RunServer(cfg)
	}

	out := cmd.OutOrStdout()
	if alreadyRunning(cfg.DataDir) {
		fmt.Fprintln(out, styleDim.Render("server already running at "+resolveServer("", cfg)))
		return nil
	}

	pid, err := spawnServer(cfg, a.ConfigPath)
	if err != nil {
		return err
	}
	reportStarted(out, cfg, pid)
	return nil
}

// spawnServer re-executes the binary with --foreground, detached, logging to
// <data_dir>/server.log.
func spawnServer(cfg config.Config, configPath string) (int, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return 0, fmt.Errorf("start server: create data dir: %w", err)
	}

	logPath := filepath.Join(cfg.DataDir, "server.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("start server: open %s: %w", logPath, err)
	}
	defer logFile.Close()

	args := []string{"serve", "--foreground", "--bind", cfg.Bind, "--http-bind", cfg.HTTPBind}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	proc := exec.Command(os.Args[0], args...)
	proc.Stdout = logFile
	proc.Stderr = logFile
	if err := proc.Start(); err != nil {
		return 0, fmt.Errorf("start server: %w", err)
	}

	pid := proc.Process.Pid
	_ = proc.Process.Release()
	return pid, nil
}

// reportStarted polls for the pid file for up to two seconds.
func reportStarted(w io.Writer, cfg config.Config, pid int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if alreadyRunning(cfg.DataDir) {
			fmt.Fprintln(w, styleSuccess.Render("started server")+" "+
				stylePID.Render(fmt.Sprintf("pid %d", pid))+" "+
				styleDim.Render("http "+cfg.HTTPBind+", grpc "+cfg.Bind))
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(w, styleWarning.Render(fmt.Sprintf("server pid %d has not written its pid file yet", pid)))
	fmt.Fprintln(w, styleDim.Render("see "+filepath.Join(cfg.DataDir, "server.log")))
}
