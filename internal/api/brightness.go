package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camnode/internal/api/models"
	"github.com/smazurov/camnode/internal/frame"
)

// registerBrightnessRoutes exposes the shared brightness summary board
func (s *Server) registerBrightnessRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-brightness",
		Method:      http.MethodGet,
		Path:        "/api/brightness",
		Summary:     "Brightness summaries",
		Description: "Read the per-camera brightness summary board",
		Tags:        []string{"brightness"},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.BrightnessResponse, error) {
		if s.options.Board == nil {
			return nil, huma.Error503ServiceUnavailable("brightness board not available")
		}

		cameras := make([]models.CameraBrightness, 0, 2)
		for _, cam := range []frame.Camera{frame.CameraDay, frame.CameraNight} {
			sample, _ := s.options.Board.Read(cam)
			entry := models.CameraBrightness{
				Camera:      cam.String(),
				FrameNumber: sample.FrameNumber,
				Avg:         sample.Avg,
				Lux:         sample.Lux,
				Zone:        sample.Zone.String(),
				Corrected:   sample.CorrectionApplied,
			}
			if !sample.Timestamp.IsZero() {
				entry.Timestamp = sample.Timestamp.Format(time.RFC3339Nano)
			}
			cameras = append(cameras, entry)
		}

		return &models.BrightnessResponse{
			Body: models.BrightnessData{
				Version: s.options.Board.Version(),
				Cameras: cameras,
			},
		}, nil
	})
}
