package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camnode/internal/api/models"
)

// registerChannelRoutes exposes the shared-memory channel and queue counters
func (s *Server) registerChannelRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-channels",
		Method:      http.MethodGet,
		Path:        "/api/channels",
		Summary:     "Frame channels",
		Description: "List the daemon's shared-memory frame channels",
		Tags:        []string{"channels"},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ChannelsResponse, error) {
		channels := make([]models.ChannelInfo, 0, len(s.options.Rings))
		for name, ring := range s.options.Rings {
			if ring == nil {
				continue
			}
			channels = append(channels, models.ChannelInfo{
				Name:          name,
				WriteIndex:    ring.WriteIndex(),
				FrameInterval: ring.FrameInterval().Milliseconds(),
			})
		}
		sort.Slice(channels, func(i, j int) bool {
			return channels[i].Name < channels[j].Name
		})

		return &models.ChannelsResponse{
			Body: models.ChannelsData{Channels: channels},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-queue-stats",
		Method:      http.MethodGet,
		Path:        "/api/queue",
		Summary:     "Encoder queue",
		Description: "Get capture-to-encoder queue depth and drop counters",
		Tags:        []string{"channels"},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.QueueStatsResponse, error) {
		if s.options.Queue == nil {
			return nil, huma.Error503ServiceUnavailable("encoder queue not available")
		}

		return &models.QueueStatsResponse{
			Body: models.QueueStatsData{
				Depth:   s.options.Queue.Len(),
				Pushed:  s.options.Queue.Pushed(),
				Dropped: s.options.Queue.Dropped(),
			},
		}, nil
	})
}
