package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subselect/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and its cache summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			url := "http://" + cfg.Paths.APIBind + "/api/status"
			req, err := http.NewRequestWithContext(commandCtx(cmd), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				if jsonOutput {
					return writeJSON(cmd, api.StatusResponse{Running: false})
				}
				fmt.Fprintf(out, "Daemon: not running (%s)\n", cfg.Paths.APIBind)
				return nil
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon status: unexpected HTTP %d", resp.StatusCode)
			}
			var status api.StatusResponse
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("decode daemon status: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			fmt.Fprintf(out, "Daemon: running on %s\n", cfg.Paths.APIBind)
			if started, err := time.Parse(time.RFC3339, status.StartedAt); err == nil {
				fmt.Fprintf(out, "Started: %s\n", humanize.Time(started))
			}
			fmt.Fprintf(out, "Store: %s (degraded: %s)\n", status.StoreBackend, yesNo(status.Degraded))
			fmt.Fprintf(out, "Cache: %d/%d\n", status.Cached, status.Capacity)
			fmt.Fprintf(out, "Session: %s\n", yesNo(status.SessionActive))
			fmt.Fprintf(out, "Event subscribers: %d (dropped %s)\n", status.Subscribers, humanize.Comma(int64(status.DroppedEvents)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
