package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camnode/internal/api/models"
	"github.com/smazurov/camnode/internal/switcher"
)

func statFromSwitcher(s switcher.Stat) models.BrightnessStat {
	out := models.BrightnessStat{
		Latest:  s.LatestValue,
		Avg:     s.Avg,
		Samples: s.Samples,
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return out
}

// registerSwitchRoutes sets up the camera switch controller endpoints
func (s *Server) registerSwitchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-switch-status",
		Method:      http.MethodGet,
		Path:        "/api/switch",
		Summary:     "Switch status",
		Description: "Get the camera switch controller state",
		Tags:        []string{"switch"},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SwitchStatusResponse, error) {
		status := s.options.Controller.Status()
		return &models.SwitchStatusResponse{
			Body: models.SwitchStatus{
				Mode:             status.Mode.String(),
				ActiveCamera:     status.ActiveCamera.String(),
				Day:              statFromSwitcher(status.Brightness[0]),
				Night:            statFromSwitcher(status.Brightness[1]),
				LastSwitchReason: status.LastSwitchReason,
				WarmupRemaining:  status.WarmupRemaining,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "manual-switch",
		Method:      http.MethodPost,
		Path:        "/api/switch/manual",
		Summary:     "Pin camera",
		Description: "Pin the active camera, suspending automatic switching",
		Tags:        []string{"switch"},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.ManualSwitchRequest) (*models.SwitchActionResponse, error) {
		cam, ok := cameraFromName(input.Body.Camera)
		if !ok {
			return nil, huma.Error400BadRequest("unknown camera: " + input.Body.Camera)
		}

		if s.options.Runtime != nil {
			if err := s.options.Runtime.ForceManual(cam); err != nil {
				return nil, huma.Error500InternalServerError("camera switch failed", err)
			}
		} else {
			s.options.Controller.ForceManual(cam)
		}

		status := s.options.Controller.Status()
		return &models.SwitchActionResponse{
			Body: models.SwitchActionData{
				Mode:         status.Mode.String(),
				ActiveCamera: status.ActiveCamera.String(),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "auto-switch",
		Method:      http.MethodPost,
		Path:        "/api/switch/auto",
		Summary:     "Resume automatic switching",
		Description: "Clear a manual camera pin and resume brightness-driven switching",
		Tags:        []string{"switch"},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SwitchActionResponse, error) {
		if s.options.Runtime != nil {
			s.options.Runtime.ResumeAuto()
		} else {
			s.options.Controller.ResumeAuto()
		}

		status := s.options.Controller.Status()
		return &models.SwitchActionResponse{
			Body: models.SwitchActionData{
				Mode:         status.Mode.String(),
				ActiveCamera: status.ActiveCamera.String(),
			},
		}, nil
	})
}
