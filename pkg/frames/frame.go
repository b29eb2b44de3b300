package frames

import (
	"sync"
	"time"
)

type Kind string

const (
	KindAudio   Kind = "audio"
	KindText    Kind = "text"
	KindSystem  Kind = "system"
	KindError   Kind = "error"
	KindMessage Kind = "message"
)

// System frame names understood by the STT service. The host pipeline emits
// these on its own scheduling turn.
const (
	SystemPipelineStart       = "pipeline_start"
	SystemPipelineStop        = "pipeline_stop"
	SystemPipelineCancel      = "pipeline_cancel"
	SystemUserStartedSpeaking = "user_started_speaking"
	SystemUserStoppedSpeaking = "user_stopped_speaking"
	SystemSetLanguage         = "set_language"
	SystemSetModel            = "set_model"
)

// MessageScope selects the delivery channel for an out-of-band MessageFrame.
type MessageScope string

const (
	// MessageScopeServer targets the generic server-message channel.
	MessageScopeServer MessageScope = "server"
	// MessageScopeTransport targets the transport-level app-message fallback
	// for minimal clients.
	MessageScopeTransport MessageScope = "transport"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

type AudioFrame struct {
	pts    int64
	data   []byte
	rate   int
	ch     int
	meta   map[string]string
	pooled bool
}

func NewAudioFrame(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		data: data,
		rate: rate,
		ch:   ch,
		meta: mergeMeta(streamID, meta),
	}
}

func NewAudioFrameFromPool(streamID string, pts int64, data []byte, rate, ch int, meta map[string]string) AudioFrame {
	buf := AcquireAudioBuf(len(data))
	copy(buf, data)
	return AudioFrame{
		pts:    pts,
		data:   buf,
		rate:   rate,
		ch:     ch,
		meta:   mergeMeta(streamID, meta),
		pooled: true,
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Channels() int           { return a.ch }

func ReleaseAudioFrame(f Frame) bool {
	af, ok := f.(AudioFrame)
	if !ok {
		if ap, ok := f.(*AudioFrame); ok {
			af = *ap
		} else {
			return false
		}
	}
	if af.pooled {
		ReleaseAudioBuf(af.data)
		return true
	}
	return false
}

// TranscriptionFrame carries one recognized utterance fragment. Interim
// frames may be revised by later frames for the same utterance; final frames
// will not. The provider payload is kept opaque for downstream tracing.
type TranscriptionFrame struct {
	pts       int64
	text      string
	userID    string
	timestamp string
	language  string
	final     bool
	payload   any
	meta      map[string]string
}

func NewTranscriptionFrame(streamID string, pts int64, text, userID, timestamp, language string, final bool, payload any, meta map[string]string) TranscriptionFrame {
	return TranscriptionFrame{
		pts:       pts,
		text:      text,
		userID:    userID,
		timestamp: timestamp,
		language:  language,
		final:     final,
		payload:   payload,
		meta:      mergeMeta(streamID, meta),
	}
}

func (t TranscriptionFrame) Kind() Kind              { return KindText }
func (t TranscriptionFrame) PTS() int64              { return t.pts }
func (t TranscriptionFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TranscriptionFrame) Text() string            { return t.text }
func (t TranscriptionFrame) UserID() string          { return t.userID }
func (t TranscriptionFrame) Timestamp() string       { return t.timestamp }
func (t TranscriptionFrame) Language() string        { return t.language }
func (t TranscriptionFrame) IsFinal() bool           { return t.final }
func (t TranscriptionFrame) Payload() any            { return t.payload }

// ErrorFrame reports a recoverable failure to the pipeline without stopping it.
type ErrorFrame struct {
	pts  int64
	msg  string
	meta map[string]string
}

func NewErrorFrame(streamID string, pts int64, msg string, meta map[string]string) ErrorFrame {
	return ErrorFrame{
		pts:  pts,
		msg:  msg,
		meta: mergeMeta(streamID, meta),
	}
}

func (e ErrorFrame) Kind() Kind              { return KindError }
func (e ErrorFrame) PTS() int64              { return e.pts }
func (e ErrorFrame) Meta() map[string]string { return cloneMeta(e.meta) }
func (e ErrorFrame) Error() string           { return e.msg }

type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(streamID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{
		pts:  pts,
		name: name,
		meta: mergeMeta(streamID, meta),
	}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

// MessageFrame carries an out-of-band status payload to clients, outside the
// transcription-critical path.
type MessageFrame struct {
	pts     int64
	scope   MessageScope
	payload map[string]any
	meta    map[string]string
}

func NewMessageFrame(streamID string, pts int64, scope MessageScope, payload map[string]any, meta map[string]string) MessageFrame {
	return MessageFrame{
		pts:     pts,
		scope:   scope,
		payload: payload,
		meta:    mergeMeta(streamID, meta),
	}
}

func (m MessageFrame) Kind() Kind              { return KindMessage }
func (m MessageFrame) PTS() int64              { return m.pts }
func (m MessageFrame) Meta() map[string]string { return cloneMeta(m.meta) }
func (m MessageFrame) Scope() MessageScope     { return m.scope }

// Payload returns a shallow copy of the message payload.
func (m MessageFrame) Payload() map[string]any {
	out := make(map[string]any, len(m.payload))
	for k, v := range m.payload {
		out[k] = v
	}
	return out
}

type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{value: make(map[string]int64)}
}

func (g *PTSGen) Next(streamID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[streamID] + time.Millisecond.Nanoseconds()
	g.value[streamID] = v
	return v
}

var audioBufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func AcquireAudioBuf(size int) []byte {
	b := audioBufPool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

func ReleaseAudioBuf(b []byte) {
	audioBufPool.Put(b[:0])
}

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
