// Package models defines the request and response bodies of the HTTP API.
package models

// HealthData is the health check response body.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

// HealthResponse wraps HealthData.
type HealthResponse struct {
	Body HealthData
}

// VersionData contains build information.
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27" doc:"Build date"`
	BuildID   string `json:"build_id" example:"12345" doc:"Build ID"`
	GoVersion string `json:"go_version" example:"go1.24" doc:"Go version used"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

// VersionResponse wraps VersionData.
type VersionResponse struct {
	Body VersionData
}

// BrightnessStat describes one camera's running brightness state.
type BrightnessStat struct {
	Latest    float64 `json:"latest" example:"42.5" doc:"Most recent mean-luma sample (0-255)"`
	Avg       float64 `json:"avg" example:"55.1" doc:"Running average of all samples"`
	Samples   int     `json:"samples" example:"1200" doc:"Number of samples recorded"`
	UpdatedAt string  `json:"updated_at,omitempty" example:"2025-01-27T10:30:00Z" doc:"Last sample timestamp"`
}

// SwitchStatus is the camera switch controller snapshot.
type SwitchStatus struct {
	Mode             string         `json:"mode" example:"auto" doc:"Switch mode: auto or manual"`
	ActiveCamera     string         `json:"active_camera" example:"day" doc:"Currently active camera"`
	Day              BrightnessStat `json:"day" doc:"Day camera brightness state"`
	Night            BrightnessStat `json:"night" doc:"Night camera brightness state"`
	LastSwitchReason string         `json:"last_switch_reason" example:"auto-night" doc:"Reason for the last switch"`
	WarmupRemaining  uint           `json:"warmup_remaining" example:"0" doc:"Warmup frames still to discard"`
}

// SwitchStatusResponse wraps SwitchStatus.
type SwitchStatusResponse struct {
	Body SwitchStatus
}

// ManualSwitchRequest pins the active camera.
type ManualSwitchRequest struct {
	Body struct {
		Camera string `json:"camera" enum:"day,night" example:"night" doc:"Camera to pin"`
	}
}

// SwitchActionData reports the result of a mode change.
type SwitchActionData struct {
	Mode         string `json:"mode" example:"manual" doc:"Switch mode after the action"`
	ActiveCamera string `json:"active_camera" example:"night" doc:"Active camera after the action"`
}

// SwitchActionResponse wraps SwitchActionData.
type SwitchActionResponse struct {
	Body SwitchActionData
}

// CameraBrightness is one camera's published brightness summary.
type CameraBrightness struct {
	Camera      string  `json:"camera" example:"day" doc:"Camera name"`
	FrameNumber uint64  `json:"frame_number" example:"120443" doc:"Frame the sample was taken from"`
	Avg         float32 `json:"avg" example:"42.5" doc:"Mean-luma brightness (0-255)"`
	Lux         uint32  `json:"lux" example:"120" doc:"Ambient illuminance estimate"`
	Zone        string  `json:"zone" example:"dim" doc:"Classified brightness zone"`
	Corrected   bool    `json:"corrected" example:"false" doc:"Whether low-light correction is applied"`
	Timestamp   string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Sample timestamp"`
}

// BrightnessData is the brightness summary board contents.
type BrightnessData struct {
	Version uint32             `json:"version" example:"120443" doc:"Board update counter"`
	Cameras []CameraBrightness `json:"cameras" doc:"Per-camera brightness summaries"`
}

// BrightnessResponse wraps BrightnessData.
type BrightnessResponse struct {
	Body BrightnessData
}

// ChannelInfo describes one shared-memory frame channel.
type ChannelInfo struct {
	Name          string `json:"name" example:"camnode.active-frame" doc:"Channel name"`
	WriteIndex    uint32 `json:"write_index" example:"120443" doc:"Monotonic write counter"`
	FrameInterval int64  `json:"frame_interval_ms" example:"0" doc:"Dynamic frame interval, 0 = full rate"`
}

// ChannelsData lists the daemon's frame channels.
type ChannelsData struct {
	Channels []ChannelInfo `json:"channels" doc:"Ring channels owned by this daemon"`
}

// ChannelsResponse wraps ChannelsData.
type ChannelsResponse struct {
	Body ChannelsData
}

// QueueStatsData reports the capture-to-encoder queue counters.
type QueueStatsData struct {
	Depth   int    `json:"depth" example:"1" doc:"Frames currently queued"`
	Pushed  uint64 `json:"pushed" example:"432000" doc:"Total frames accepted"`
	Dropped uint64 `json:"dropped" example:"12" doc:"Total frames dropped because the queue was full"`
}

// QueueStatsResponse wraps QueueStatsData.
type QueueStatsResponse struct {
	Body QueueStatsData
}
