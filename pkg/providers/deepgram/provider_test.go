package deepgram

import (
	"context"
	"errors"
	"testing"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/univox/univox/pkg/adapters/stt"
)

type fakeConn struct {
	connectOK     bool
	connectCalls  int
	stopCalls     int
	finalizeCalls int
	finalizeErr   error
	writes        [][]byte
	writeErr      error
}

func (f *fakeConn) Connect() bool {
	f.connectCalls++
	return f.connectOK
}

func (f *fakeConn) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeConn) Finalize() error {
	f.finalizeCalls++
	return f.finalizeErr
}

func (f *fakeConn) Stop() { f.stopCalls++ }

type sink struct {
	interim []stt.TranscriptEvent
	finals  []stt.TranscriptEvent
	errs    []string
	starts  int
	ends    int
}

func (s *sink) OnInterim(evt stt.TranscriptEvent) { s.interim = append(s.interim, evt) }
func (s *sink) OnFinal(evt stt.TranscriptEvent)   { s.finals = append(s.finals, evt) }
func (s *sink) OnError(msg string)                { s.errs = append(s.errs, msg) }
func (s *sink) OnSpeechStarted()                  { s.starts++ }
func (s *sink) OnUtteranceEnd()                   { s.ends++ }

type dialRecorder struct {
	conn     *fakeConn
	dials    int
	err      error
	lastOpts interfaces.LiveTranscriptionOptions
}

func (d *dialRecorder) dial(_ context.Context, _ string, _ *interfaces.ClientOptions, tOptions *interfaces.LiveTranscriptionOptions, _ msginterfaces.LiveMessageCallback) (liveConn, error) {
	d.dials++
	d.lastOpts = *tOptions
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func newTestProvider(t *testing.T, cfg Config, d *dialRecorder) (*Provider, *sink) {
	t.Helper()
	if cfg.APIKey == "" {
		cfg.APIKey = "dg-test-key"
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	p.dial = d.dial
	cb := &sink{}
	p.SetCallbacks(cb)
	return p, cb
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected missing credential to fail construction")
	}
}

func TestSettingsMergeForcesVADOffAndInterimOn(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{
		Settings: map[string]any{
			"vad_events":      true,
			"interim_results": false,
			"model":           "nova-2",
		},
	}, d)

	if err := p.Start(context.Background(), 16000); err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.lastOpts.VadEvents {
		t.Fatalf("provider-side VAD must stay disabled after settings merge")
	}
	if !d.lastOpts.InterimResults {
		t.Fatalf("interim results must stay enabled after settings merge")
	}
	if d.lastOpts.Model != "nova-2" {
		t.Fatalf("caller model override lost: %q", d.lastOpts.Model)
	}
	if d.lastOpts.SampleRate != 16000 {
		t.Fatalf("sample rate not bound at start: %d", d.lastOpts.SampleRate)
	}
}

func TestSendAudioBeforeStartIsNoop(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{}, d)

	if err := p.SendAudio(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("send before start must not fail: %v", err)
	}
	if len(d.conn.writes) != 0 {
		t.Fatalf("no audio must reach the connection before start")
	}
}

func TestSendAudioAfterStopIsNoop(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{}, d)
	ctx := context.Background()

	if err := p.Start(ctx, 16000); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := p.SendAudio(ctx, []byte{1, 2}); err != nil {
		t.Fatalf("send after stop must not fail: %v", err)
	}
	if len(d.conn.writes) != 0 {
		t.Fatalf("no audio must reach the connection after stop")
	}
}

func TestConnectFailureReportsThroughSink(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: false}}
	p, cb := newTestProvider(t, Config{}, d)

	if err := p.Start(context.Background(), 16000); err != nil {
		t.Fatalf("open failure must not surface as a start error: %v", err)
	}
	if len(cb.errs) != 1 {
		t.Fatalf("expected one error callback, got %d", len(cb.errs))
	}
	if p.state != stateDisconnected {
		t.Fatalf("provider must stay disconnected after open failure")
	}
}

func TestDialErrorReportsThroughSink(t *testing.T) {
	d := &dialRecorder{err: errors.New("bad handshake")}
	p, cb := newTestProvider(t, Config{}, d)

	if err := p.Start(context.Background(), 16000); err != nil {
		t.Fatalf("dial failure must not surface as a start error: %v", err)
	}
	if len(cb.errs) != 1 {
		t.Fatalf("expected one error callback, got %d", len(cb.errs))
	}
	if p.state != stateDisconnected {
		t.Fatalf("provider must stay disconnected after dial failure")
	}
}

func TestMessageDispatch(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, cb := newTestProvider(t, Config{}, d)
	if err := p.Start(context.Background(), 16000); err != nil {
		t.Fatalf("start: %v", err)
	}
	h := &callback{parent: p}

	// Zero alternatives and empty transcripts never reach the sink.
	if err := h.Message(&msginterfaces.MessageResponse{}); err != nil {
		t.Fatalf("message: %v", err)
	}
	empty := &msginterfaces.MessageResponse{}
	empty.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: ""}}
	if err := h.Message(empty); err != nil {
		t.Fatalf("message: %v", err)
	}
	if len(cb.interim)+len(cb.finals) != 0 {
		t.Fatalf("empty payloads must be dropped, got %d events", len(cb.interim)+len(cb.finals))
	}

	interim := &msginterfaces.MessageResponse{}
	interim.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: "hello"}}
	if err := h.Message(interim); err != nil {
		t.Fatalf("message: %v", err)
	}
	if len(cb.interim) != 1 || cb.interim[0].Text != "hello" || cb.interim[0].IsFinal {
		t.Fatalf("expected one interim event for %q, got %+v", "hello", cb.interim)
	}

	final := &msginterfaces.MessageResponse{IsFinal: true}
	final.Channel.Alternatives = []msginterfaces.Alternative{{Transcript: "hello world"}}
	if err := h.Message(final); err != nil {
		t.Fatalf("message: %v", err)
	}
	if len(cb.finals) != 1 || cb.finals[0].Text != "hello world" || !cb.finals[0].IsFinal {
		t.Fatalf("expected one final event for %q, got %+v", "hello world", cb.finals)
	}
	if cb.finals[0].Payload == nil {
		t.Fatalf("final event must carry the opaque vendor payload")
	}
}

func TestErrorEventMapsToString(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, cb := newTestProvider(t, Config{}, d)
	h := &callback{parent: p}

	if err := h.Error(&msginterfaces.ErrorResponse{ErrCode: "NET-0001", ErrMsg: "socket closed"}); err != nil {
		t.Fatalf("error event: %v", err)
	}
	if len(cb.errs) != 1 || cb.errs[0] != "NET-0001: socket closed" {
		t.Fatalf("unexpected error mapping: %v", cb.errs)
	}
}

func TestSetLanguageReconnectsEvenWhenUnchanged(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{Language: "en"}, d)
	ctx := context.Background()

	if err := p.Start(ctx, 16000); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.SetLanguage(ctx, "en"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if d.conn.stopCalls != 1 {
		t.Fatalf("expected exactly one disconnect, got %d", d.conn.stopCalls)
	}
	if d.dials != 2 {
		t.Fatalf("expected exactly one reconnect after start, got %d dials", d.dials)
	}
	if d.lastOpts.Language != "en" {
		t.Fatalf("language not applied: %q", d.lastOpts.Language)
	}
}

func TestSetModelReconnects(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{}, d)
	ctx := context.Background()

	if err := p.Start(ctx, 16000); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.SetModel(ctx, "nova-2"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if d.conn.stopCalls != 1 || d.dials != 2 {
		t.Fatalf("expected one disconnect and one reconnect, got %d/%d", d.conn.stopCalls, d.dials)
	}
	if d.lastOpts.Model != "nova-2" {
		t.Fatalf("model not applied: %q", d.lastOpts.Model)
	}
}

func TestSetModelBeforeStartConnects(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{}, d)

	// Safe at any point after construction; before start there is nothing to
	// tear down, so this just dials with the new setting applied.
	if err := p.SetModel(context.Background(), "nova-2"); err != nil {
		t.Fatalf("set model before start: %v", err)
	}
	if d.conn.stopCalls != 0 {
		t.Fatalf("no disconnect expected before start, got %d", d.conn.stopCalls)
	}
	if d.dials != 1 || d.lastOpts.Model != "nova-2" {
		t.Fatalf("expected one dial with the new model, got %d/%q", d.dials, d.lastOpts.Model)
	}
}

func TestCancelIdempotentWithoutStart(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{}, d)
	ctx := context.Background()

	if err := p.Cancel(ctx); err != nil {
		t.Fatalf("cancel before start: %v", err)
	}
	if err := p.Cancel(ctx); err != nil {
		t.Fatalf("repeated cancel: %v", err)
	}
	if d.conn.stopCalls != 0 {
		t.Fatalf("cancel without a connection must not stop anything")
	}
}

func TestFinalizeUtterance(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{}, d)
	ctx := context.Background()

	if err := p.FinalizeUtterance(ctx); err != nil {
		t.Fatalf("finalize without connection must be a no-op: %v", err)
	}
	if err := p.Start(ctx, 16000); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.FinalizeUtterance(ctx); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if d.conn.finalizeCalls != 1 {
		t.Fatalf("expected one finalize call, got %d", d.conn.finalizeCalls)
	}

	d.conn.finalizeErr = errors.New("flush failed")
	if err := p.FinalizeUtterance(ctx); err == nil {
		t.Fatalf("finalize failure must surface to the caller")
	}
}

func TestSendAudioWhileConnected(t *testing.T) {
	d := &dialRecorder{conn: &fakeConn{connectOK: true}}
	p, _ := newTestProvider(t, Config{}, d)
	ctx := context.Background()

	if err := p.Start(ctx, 16000); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.SendAudio(ctx, []byte{9, 9}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(d.conn.writes) != 1 {
		t.Fatalf("expected one write, got %d", len(d.conn.writes))
	}
}
