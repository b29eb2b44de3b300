package metrics

import "time"

// Event names recorded by the STT service.
const (
	EventSTTStart    = "stt_start"
	EventSTTAudioIn  = "stt_audio_in"
	EventSTTInterim  = "stt_interim"
	EventSTTFinal    = "stt_final"
	EventSTTError    = "stt_error"
	EventSTTFinalize = "stt_finalize"
	EventVADSelected = "vad_selected"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
