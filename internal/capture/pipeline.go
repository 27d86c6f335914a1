package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camnode/internal/brightness"
	"github.com/smazurov/camnode/internal/channel"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/frame"
	"github.com/smazurov/camnode/internal/framequeue"
	"github.com/smazurov/camnode/internal/metrics"
	"github.com/smazurov/camnode/internal/shm"
	"github.com/smazurov/camnode/internal/zerocopy"
)

const handoffTimeout = 100 * time.Millisecond

// PipelineOptions collects the pipeline's collaborators and channels. Source,
// Hardware, ActiveRing and Logger are required; everything else degrades to a
// disabled feature when nil.
type PipelineOptions struct {
	Source    Source
	Hardware  HardwareSwitcher
	Encoder   Encoder
	Corrector *brightness.Corrector

	ActiveRing *shm.Ring
	StreamRing *shm.Ring
	ProbeRing  *shm.Ring
	YoloRing   *shm.Ring
	MJPEGRing  *shm.Ring
	Board      *channel.BrightnessBoard
	Control    *channel.ControlWord

	ZeroCopyDay   *zerocopy.Channel
	ZeroCopyNight *zerocopy.Channel
	Exporter      HandleExporter

	Queue    *framequeue.Queue
	EventBus *events.Bus
	Logger   *slog.Logger
}

// Pipeline fans captured frames out: active frames to the active-frame ring
// and the encoder queue, probe frames to the probe ring, brightness samples
// to the summary board, and buffer handles to the zero-copy mailbox. It is
// the CaptureOps implementation the switch runtime drives.
type Pipeline struct {
	opts      PipelineOptions
	logger    *slog.Logger
	producers [2]*zerocopy.Producer

	// scratch frames for the downscaled fanout, reused across publishes
	yoloScratch  frame.Frame
	mjpegScratch frame.Frame

	encoderWG sync.WaitGroup
	cancel    context.CancelFunc
}

// NewPipeline wires a pipeline from its options.
func NewPipeline(opts PipelineOptions) *Pipeline {
	p := &Pipeline{opts: opts, logger: opts.Logger}
	if opts.Exporter != nil {
		if opts.ZeroCopyDay != nil {
			p.producers[frame.CameraDay] = zerocopy.NewProducer(opts.ZeroCopyDay, opts.Exporter.Release)
		}
		if opts.ZeroCopyNight != nil {
			p.producers[frame.CameraNight] = zerocopy.NewProducer(opts.ZeroCopyNight, opts.Exporter.Release)
		}
	}
	return p
}

// SwitchCamera flips the sensor pipeline and announces the new active camera
// on the control channel.
func (p *Pipeline) SwitchCamera(target frame.Camera) error {
	if err := p.opts.Hardware.SwitchCamera(target); err != nil {
		return err
	}
	if p.opts.Control != nil {
		p.opts.Control.SetActive(target)
	}
	metrics.SetActiveCamera(int(target))
	return nil
}

// CaptureActiveFrame blocks for the next active-camera frame, annotates it
// with the hardware brightness measurement, and feeds the low-light
// corrector.
func (p *Pipeline) CaptureActiveFrame(cam frame.Camera, f *frame.Frame) error {
	if err := p.opts.Source.CaptureFrame(cam, f); err != nil {
		return err
	}
	p.annotate(cam, f)
	return nil
}

// CaptureProbeFrame takes one frame from cam and mirrors it into the probe
// ring for other processes evaluating brightness.
func (p *Pipeline) CaptureProbeFrame(cam frame.Camera, f *frame.Frame) error {
	if err := p.opts.Source.ProbeFrame(cam, f); err != nil {
		return err
	}
	p.annotate(cam, f)
	if p.opts.ProbeRing != nil {
		if _, err := p.opts.ProbeRing.Write(f); err != nil {
			p.drop(channel.ProbeFrame, err)
		} else {
			metrics.IncFramesWritten(channel.ProbeFrame)
		}
	}
	return nil
}

func (p *Pipeline) annotate(cam frame.Camera, f *frame.Frame) {
	sample, err := p.opts.Source.BrightnessSample(cam)
	if err != nil {
		p.logger.Warn("brightness sample failed", "camera", cam.String(), "error", err)
		return
	}
	sample.FrameNumber = f.FrameNumber

	// The corrector follows the day camera only; the night sensor has its
	// own fixed IR tuning.
	if p.opts.Corrector != nil && cam == frame.CameraDay {
		sample.Corrected = p.opts.Corrector.Update(sample)
		metrics.SetLowlightActive(sample.Corrected)
	}

	f.BrightnessAvg = sample.Avg
	f.BrightnessLux = sample.Lux
	f.BrightnessZone = sample.Zone
	f.CorrectionApplied = sample.Corrected

	if p.opts.Board != nil {
		p.opts.Board.Publish(cam, channel.BrightnessSample{
			FrameNumber:       sample.FrameNumber,
			Timestamp:         sample.Timestamp,
			Avg:               sample.Avg,
			Lux:               sample.Lux,
			Zone:              sample.Zone,
			CorrectionApplied: sample.Corrected,
		})
	}
	metrics.SetBrightness(cam.String(), float64(sample.Avg), sample.Lux)
	if p.opts.EventBus != nil {
		p.opts.EventBus.Publish(events.BrightnessSampleEvent{
			Camera:    cam.String(),
			Avg:       float64(sample.Avg),
			Lux:       sample.Lux,
			Zone:      sample.Zone.String(),
			Timestamp: sample.Timestamp.Format(time.RFC3339),
		})
	}
}

// PublishFrame distributes one active frame: the raw ring, the encoder
// queue, and the zero-copy mailbox. Every failure is local; the capture loop
// never stalls on a slow consumer.
func (p *Pipeline) PublishFrame(f *frame.Frame) error {
	if _, err := p.opts.ActiveRing.Write(f); err != nil {
		p.drop(channel.ActiveFrame, err)
	} else {
		metrics.IncFramesWritten(channel.ActiveFrame)
	}

	if p.opts.Queue != nil {
		if err := p.opts.Queue.Push(f); err != nil {
			metrics.IncEncoderQueueDropped()
			p.drop(channel.Stream, err)
		}
		metrics.SetEncoderQueueDepth(p.opts.Queue.Len())
	}

	p.scaleFanout(f)
	p.handoff(f)
	return nil
}

// Downscaled side channels: 640x360 for the inference pipeline, 640x480 for
// the web monitor. Only NV12 frames are scalable; anything else is skipped
// silently because the encoder path already carries it.
func (p *Pipeline) scaleFanout(f *frame.Frame) {
	if f.Format != frame.FormatNV12 {
		return
	}
	if p.opts.YoloRing != nil {
		if err := frame.ScaleNV12(f, &p.yoloScratch, 640, 360); err != nil {
			p.logger.Warn("yolo downscale failed", "error", err)
		} else if _, err := p.opts.YoloRing.Write(&p.yoloScratch); err != nil {
			p.drop(channel.YoloInput, err)
		} else {
			metrics.IncFramesWritten(channel.YoloInput)
		}
	}
	if p.opts.MJPEGRing != nil {
		if err := frame.ScaleNV12(f, &p.mjpegScratch, 640, 480); err != nil {
			p.logger.Warn("monitor downscale failed", "error", err)
		} else if _, err := p.opts.MJPEGRing.Write(&p.mjpegScratch); err != nil {
			p.drop(channel.MJPEGFrame, err)
		} else {
			metrics.IncFramesWritten(channel.MJPEGFrame)
		}
	}
}

func (p *Pipeline) handoff(f *frame.Frame) {
	producer := p.producers[f.CameraID]
	if producer == nil {
		return
	}
	handles, err := p.opts.Exporter.Export(f)
	if err != nil {
		p.logger.Warn("buffer export failed", "error", err)
		return
	}
	name := zcChannelName(f.CameraID)
	if err := producer.Send(handles, handoffTimeout); err != nil {
		if errors.Is(err, shm.ErrTimeout) {
			metrics.IncHandoffTimeout(name)
			if p.opts.EventBus != nil {
				p.opts.EventBus.Publish(events.HandoffTimeoutEvent{
					Channel:   name,
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		} else {
			p.logger.Warn("zero-copy handoff failed", "error", err)
		}
	}
}

func zcChannelName(cam frame.Camera) string {
	if cam == frame.CameraNight {
		return channel.ZeroCopyNight
	}
	return channel.ZeroCopyDay
}

func (p *Pipeline) drop(name string, err error) {
	cause := "write_failed"
	switch {
	case errors.Is(err, frame.ErrTooLarge):
		cause = "too_large"
	case errors.Is(err, framequeue.ErrFull):
		cause = "queue_full"
	}
	metrics.IncFramesDropped(name, cause)
	p.logger.Warn("frame dropped", "channel", name, "cause", cause, "error", err)
	if p.opts.EventBus != nil {
		p.opts.EventBus.Publish(events.FrameDropEvent{
			Channel:   name,
			Cause:     cause,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// StartEncoder launches the encoder worker draining the queue into the
// stream ring. No-op when the pipeline has no encoder or queue.
func (p *Pipeline) StartEncoder(ctx context.Context) {
	if p.opts.Encoder == nil || p.opts.Queue == nil || p.opts.StreamRing == nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.encoderWG.Add(1)
	go p.encoderLoop(ctx)
}

// StopEncoder stops the worker and releases any pending zero-copy frame.
// Must run before the shared segments are unmapped.
func (p *Pipeline) StopEncoder() {
	if p.cancel != nil {
		p.cancel()
		p.encoderWG.Wait()
	}
	for _, producer := range p.producers {
		if producer != nil {
			producer.Shutdown(handoffTimeout)
		}
	}
}

func (p *Pipeline) encoderLoop(ctx context.Context) {
	defer p.encoderWG.Done()

	var in, out frame.Frame
	for ctx.Err() == nil {
		if !p.opts.Queue.Pop(&in) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}
		metrics.SetEncoderQueueDepth(p.opts.Queue.Len())

		if err := p.opts.Encoder.Encode(&in, &out); err != nil {
			p.logger.Warn("encode failed", "frame", in.FrameNumber, "error", err)
			continue
		}
		if _, err := p.opts.StreamRing.Write(&out); err != nil {
			p.drop(channel.Stream, err)
			continue
		}
		metrics.IncFramesWritten(channel.Stream)
	}
}
