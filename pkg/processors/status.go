package processors

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/univox/univox/pkg/frames"
	"github.com/univox/univox/pkg/pipeline"
)

// DefaultStatusDelay gives the client a moment to finish its handshake before
// the status message goes out.
const DefaultStatusDelay = 2 * time.Second

// StatusSink delivers out-of-band frames to the connected client. Transports
// satisfy this with their Send method.
type StatusSink interface {
	Send(f frames.Frame) error
}

// StatusAnnouncer tells the client which VAD backend the session runs on.
// Announce fires a detached, best-effort notification after a short delay; as
// a processor it also piggybacks the same status on the first final
// transcription, whichever happens first. Delivery failures never disturb the
// transcription path.
type StatusAnnouncer struct {
	sink      StatusSink
	backend   string
	streamID  string
	delay     time.Duration
	pts       *frames.PTSGen
	logger    *slog.Logger
	announced atomic.Bool
}

type StatusAnnouncerOptions struct {
	StreamID string
	// Delay before the detached announcement fires. DefaultStatusDelay when
	// zero.
	Delay time.Duration
}

func NewStatusAnnouncer(sink StatusSink, backend string, opts StatusAnnouncerOptions) *StatusAnnouncer {
	if opts.Delay <= 0 {
		opts.Delay = DefaultStatusDelay
	}
	return &StatusAnnouncer{
		sink:     sink,
		backend:  backend,
		streamID: opts.StreamID,
		delay:    opts.Delay,
		pts:      frames.NewPTSGen(),
		logger:   slog.Default().With(slog.String("component", "status_announcer")),
	}
}

func (a *StatusAnnouncer) Name() string { return "status_announcer" }

// Announce schedules the status notification. Returns immediately; the caller
// never learns about delivery failures.
func (a *StatusAnnouncer) Announce() {
	go func() {
		time.Sleep(a.delay)
		a.send()
	}()
}

func (a *StatusAnnouncer) Process(f frames.Frame) ([]frames.Frame, error) {
	out := []frames.Frame{f}
	if tf, ok := f.(frames.TranscriptionFrame); ok && tf.IsFinal() && !a.announced.Load() {
		out = append(out, a.serverFrame())
		a.announced.Store(true)
	}
	return out, nil
}

func (a *StatusAnnouncer) send() {
	if a.announced.Swap(true) {
		return
	}
	if a.sink == nil {
		return
	}
	err := a.sink.Send(a.serverFrame())
	if err == nil {
		return
	}
	a.logger.Warn("status_server_send_failed",
		slog.String("vad_backend", a.backend),
		slog.String("error", err.Error()))
	if err := a.sink.Send(a.transportFrame()); err != nil {
		a.logger.Warn("status_transport_send_failed",
			slog.String("vad_backend", a.backend),
			slog.String("error", err.Error()))
	}
}

func (a *StatusAnnouncer) serverFrame() frames.MessageFrame {
	return frames.NewMessageFrame(a.streamID, a.pts.Next(a.streamID),
		frames.MessageScopeServer, map[string]any{
			"univox":      "status",
			"vad_backend": a.backend,
		}, nil)
}

func (a *StatusAnnouncer) transportFrame() frames.MessageFrame {
	return frames.NewMessageFrame(a.streamID, a.pts.Next(a.streamID),
		frames.MessageScopeTransport, map[string]any{
			"type":        "univox-status",
			"vad_backend": a.backend,
		}, nil)
}

var _ pipeline.FrameProcessor = (*StatusAnnouncer)(nil)
