package stt

import "context"

// TranscriptEvent is one recognized utterance fragment from a provider.
// Immutable once constructed; consumed exactly once by the STT service.
type TranscriptEvent struct {
	Text     string
	IsFinal  bool
	Language string
	// Payload carries the raw vendor result for downstream tracing.
	Payload any
}

// Callbacks is the sink a provider routes its asynchronous events into.
type Callbacks interface {
	OnInterim(evt TranscriptEvent)
	OnFinal(evt TranscriptEvent)
	OnError(msg string)
	OnSpeechStarted()
	OnUtteranceEnd()
}

// Provider defines the contract for any streaming STT vendor implementation.
// A provider holds at most one live connection; a settings change tears down
// the old connection before establishing the new one.
type Provider interface {
	// Name returns the provider name for logging/metrics.
	Name() string
	// SetCallbacks registers the callback sink. Safe to call before Start.
	SetCallbacks(cb Callbacks)
	// Start opens a connection bound to the sample rate discovered at
	// pipeline-start time.
	Start(ctx context.Context, sampleRate int) error
	// Stop closes the connection. The provider may be started again.
	Stop(ctx context.Context) error
	// Cancel closes the connection. Idempotent; safe even if Start was
	// never called.
	Cancel(ctx context.Context) error
	// SendAudio streams raw audio while connected. A no-op before Start or
	// after Stop.
	SendAudio(ctx context.Context, audio []byte) error
	// FinalizeUtterance asks the vendor to flush the current speech segment
	// early. A no-op when not connected.
	FinalizeUtterance(ctx context.Context) error
	// SetLanguage updates settings and forces a disconnect/reconnect cycle.
	SetLanguage(ctx context.Context, language string) error
	// SetModel updates settings and forces a disconnect/reconnect cycle.
	SetModel(ctx context.Context, model string) error
}
