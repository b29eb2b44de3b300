package vad

// Analyzer is the capability a VAD backend exposes to the host pipeline's
// speech-segmentation logic. The host buffers audio into chunks of
// NumFramesRequired samples and asks for a per-chunk voice confidence.
type Analyzer interface {
	// Name returns the backend name for status reporting.
	Name() string
	// SetSampleRate configures the input rate. Backends that do not
	// resample reject unsupported rates.
	SetSampleRate(rate int) error
	// NumFramesRequired returns the fixed number of PCM samples expected
	// per VoiceConfidence call.
	NumFramesRequired() int
	// VoiceConfidence reports the probability of voice in a raw 16-bit
	// little-endian PCM buffer, clamped into [0, 1]. It must never fail the
	// audio pipeline; internal errors degrade to 0 (silence).
	VoiceConfidence(buf []byte) float32
	// Close releases backend resources. Backends holding native handles
	// require an explicit release; nothing collects them automatically.
	Close() error
}
