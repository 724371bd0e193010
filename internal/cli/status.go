package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/erg0nix/docchat/internal/app"
	"github.com/erg0nix/docchat/internal/core"
	"github.com/erg0nix/docchat/internal/rpc"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the server is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			pid := app.ReadPID(app.PIDFile(a.Config.DataDir))
			if pid == 0 {
				t := newTable("NAME", "STATUS", "PID", "GRPC", "HTTP")
				t.Row("docchat", styleError.Render("stopped"), "-", a.ServerAddr, a.Config.HTTPBind)
				fmt.Println(t.Render())
				return nil
			}

			status, err := fetchStatus(cmd.Context(), a.ServerAddr)
			if err != nil {
				printServerNotRunning(a.ServerAddr, err)
				return nil
			}

			printStatus(pid, status)
			return nil
		},
	}
}

func fetchStatus(ctx context.Context, addr string) (map[string]any, error) {
	client, err := rpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return client.Status(ctx)
}

func printStatus(pid int, status map[string]any) {
	str := func(key string) string {
		if v, ok := status[key].(string); ok && v != "" {
			return v
		}
		return "-"
	}

	uptime := (time.Duration(core.IntFromAny(status["uptime_seconds"])) * time.Second).String()

	t := newTable("NAME", "STATUS", "PID", "GRPC", "HTTP", "UPTIME")
	t.Row("docchat", styleSuccess.Render("running"), strconv.Itoa(pid), str("bind"), str("http_bind"), uptime)
	fmt.Println(t.Render())

	details := newTable("SETTING", "VALUE")
	details.Row("provider", str("provider"))
	details.Row("endpoint", str("endpoint"))
	details.Row("model", str("model"))
	details.Row("history", str("history"))
	details.Row("state", str("state"))
	details.Row("active chat", str("active_session"))
	details.Row("chats", strconv.Itoa(core.IntFromAny(status["sessions"])))
	fmt.Println(details.Render())
}
