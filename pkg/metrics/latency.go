package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// LatencyObserver tracks, per stream, the gap between the last audio chunk
// and the final transcript. A crude end-to-end recognition latency signal.
type LatencyObserver struct {
	mu      sync.Mutex
	lastIn  map[string]time.Time
	log     *slog.Logger
	onFinal func(streamID string, latency time.Duration)
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		lastIn: make(map[string]time.Time),
		log:    log,
	}
}

// SetOnFinal installs an optional hook invoked with each measured latency.
func (o *LatencyObserver) SetOnFinal(fn func(streamID string, latency time.Duration)) {
	o.mu.Lock()
	o.onFinal = fn
	o.mu.Unlock()
}

func (o *LatencyObserver) RecordEvent(ev MetricsEvent) {
	streamID := ""
	if ev.Tags != nil {
		streamID = ev.Tags["stream_id"]
	}
	switch ev.Name {
	case EventSTTAudioIn:
		o.mu.Lock()
		o.lastIn[streamID] = ev.Time
		o.mu.Unlock()
	case EventSTTFinal:
		o.mu.Lock()
		in, ok := o.lastIn[streamID]
		hook := o.onFinal
		o.mu.Unlock()
		if !ok {
			return
		}
		latency := ev.Time.Sub(in)
		o.log.Debug("stt_latency",
			slog.String("stream_id", streamID),
			slog.Duration("latency", latency))
		if hook != nil {
			hook(streamID, latency)
		}
	}
}
