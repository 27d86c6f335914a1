package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/smazurov/camnode/internal/channel"
	"github.com/smazurov/camnode/internal/frame"
	"github.com/smazurov/camnode/internal/shm"
	"github.com/spf13/cobra"
)

// CreateStatusCmd creates the status command. It attaches read-only to the
// daemon's shared-memory channels and prints a one-shot snapshot, so it works
// even when the HTTP API is disabled or unreachable.
func CreateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show shared-memory channel status",
		Long: `Attaches to the daemon's shared-memory channels and prints write indices, ` +
			`the active camera, and the latest brightness samples. Requires a running daemon on this host.`,
		Run: func(_ *cobra.Command, _ []string) {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

			fmt.Fprintln(w, "CHANNEL\tWRITE INDEX\tFRAME INTERVAL")
			for _, name := range channel.Rings() {
				ring, err := shm.OpenRing(name)
				if err != nil {
					fmt.Fprintf(w, "%s\t-\tunavailable\n", name)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", name, ring.WriteIndex(), ring.FrameInterval())
				ring.Close()
			}
			w.Flush()

			if control, err := channel.OpenControlWord(); err == nil {
				active, version := control.Active()
				fmt.Printf("\nactive camera: %s (version %d)\n", active.String(), version)
				control.Close()
			} else {
				fmt.Printf("\nactive camera: unavailable (%v)\n", err)
			}

			board, err := channel.OpenBrightnessBoard()
			if err != nil {
				fmt.Printf("brightness: unavailable (%v)\n", err)
				return
			}
			defer board.Close()
			for _, cam := range []frame.Camera{frame.CameraDay, frame.CameraNight} {
				sample, _ := board.Read(cam)
				fmt.Printf("brightness %s: avg=%.1f lux=%d zone=%s corrected=%v frame=%d\n",
					cam.String(), sample.Avg, sample.Lux, sample.Zone.String(),
					sample.CorrectionApplied, sample.FrameNumber)
			}
		},
	}
}
