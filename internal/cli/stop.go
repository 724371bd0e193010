package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/app"
	"github.com/erg0nix/docchat/internal/rpc"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the docchat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			pid := app.ReadPID(app.PIDFile(a.Config.DataDir))
			if pid == 0 {
				fmt.Fprintln(out, styleDim.Render("docchat server not running"))
				return nil
			}

			return requestStop(cmd.Context(), out, a.ServerAddr, a.Config.DataDir, pid)
		},
	}
}

// requestStop asks the server to shut down over gRPC and waits for it to release its pid file.
func requestStop(ctx context.Context, w io.Writer, serverAddr, dataDir string, pid int) error {
	client, err := rpc.Dial(serverAddr)
	if err != nil {
		return fmt.Errorf("stop: dial %s: %w", serverAddr, err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for alreadyRunning(dataDir) {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, styleWarning.Render(fmt.Sprintf("shutdown requested, pid %d still draining", pid)))
			return nil
		case <-ticker.C:
		}
	}

	fmt.Fprintln(w, styleSuccess.Render("stopped docchat server")+" "+stylePID.Render(fmt.Sprintf("pid %d", pid)))
	return nil
}
