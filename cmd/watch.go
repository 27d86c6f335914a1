package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/camnode/internal/channel"
	"github.com/smazurov/camnode/internal/frame"
	"github.com/smazurov/camnode/internal/shm"
	"github.com/spf13/cobra"
)

// CreateWatchCmd creates the watch command, a live tail of brightness samples
// and camera switches read straight from shared memory.
func CreateWatchCmd() *cobra.Command {
	var timeoutSec int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow brightness and camera switches live",
		Long: `Attaches to the brightness board and the camera control channel and prints ` +
			`every update until interrupted. Reads shared memory directly; no HTTP API needed.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			board, err := channel.OpenBrightnessBoard()
			if err != nil {
				return fmt.Errorf("brightness board: %w (is the daemon running?)", err)
			}
			defer board.Close()

			control, err := channel.OpenControlWord()
			if err != nil {
				return fmt.Errorf("control channel: %w", err)
			}
			defer control.Close()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			waitTimeout := time.Duration(timeoutSec) * time.Second
			boardSeq := board.EventSeq()
			activeCam, controlVersion := control.Active()
			fmt.Printf("%s active=%s\n", time.Now().Format(time.TimeOnly), activeCam.String())

			done := make(chan struct{})
			go func() {
				defer close(done)
				for {
					seq, err := board.WaitUpdate(boardSeq, waitTimeout)
					if errors.Is(err, shm.ErrTimeout) {
						continue
					}
					if err != nil {
						return
					}
					boardSeq = seq
					for _, cam := range []frame.Camera{frame.CameraDay, frame.CameraNight} {
						sample, _ := board.Read(cam)
						if sample.FrameNumber == 0 {
							continue
						}
						fmt.Printf("%s %s avg=%.1f lux=%d zone=%s corrected=%v\n",
							sample.Timestamp.Format(time.TimeOnly), cam.String(),
							sample.Avg, sample.Lux, sample.Zone.String(), sample.CorrectionApplied)
					}
					if cam, version := control.Active(); version != controlVersion {
						controlVersion = version
						fmt.Printf("%s switched to %s\n", time.Now().Format(time.TimeOnly), cam.String())
					}
				}
			}()

			select {
			case <-stop:
			case <-done:
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&timeoutSec, "wait-timeout", 5, "Seconds to block per update wait")
	return cmd
}
