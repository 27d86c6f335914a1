package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// CreateSwitchCmd creates the switch command. Camera selection is a daemon
// decision, so this goes through the HTTP API rather than shared memory; a
// second writer on the control channel would race the capture pipeline.
func CreateSwitchCmd() *cobra.Command {
	var addr string
	var username string
	var password string

	cmd := &cobra.Command{
		Use:   "switch {day|night|auto}",
		Short: "Pin the active camera or resume automatic switching",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			target := args[0]

			var req *http.Request
			var err error
			switch target {
			case "day", "night":
				body, _ := json.Marshal(map[string]string{"camera": target})
				req, err = http.NewRequest(http.MethodPost, addr+"/api/switch/manual", bytes.NewReader(body))
				if req != nil {
					req.Header.Set("Content-Type", "application/json")
				}
			case "auto":
				req, err = http.NewRequest(http.MethodPost, addr+"/api/switch/auto", nil)
			default:
				return fmt.Errorf("target must be day, night, or auto, got %q", target)
			}
			if err != nil {
				return err
			}
			if username != "" {
				req.SetBasicAuth(username, password)
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("daemon unreachable at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			payload, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned %s: %s", resp.Status, payload)
			}

			var result struct {
				Mode         string `json:"mode"`
				ActiveCamera string `json:"active_camera"`
			}
			if err := json.Unmarshal(payload, &result); err != nil {
				return fmt.Errorf("unexpected response: %s", payload)
			}
			fmt.Printf("mode=%s active=%s\n", result.Mode, result.ActiveCamera)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8090", "Daemon API address")
	cmd.Flags().StringVarP(&username, "user", "u", "", "Basic auth username")
	cmd.Flags().StringVarP(&password, "pass", "P", "", "Basic auth password")
	return cmd
}
