package processors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/univox/univox/pkg/frames"
)

type fakeSink struct {
	mu         sync.Mutex
	sent       []frames.Frame
	failServer bool
	failAll    bool
}

func (s *fakeSink) Send(f frames.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("sink closed")
	}
	if mf, ok := f.(frames.MessageFrame); ok && s.failServer && mf.Scope() == frames.MessageScopeServer {
		return errors.New("server channel unavailable")
	}
	s.sent = append(s.sent, f)
	return nil
}

func (s *fakeSink) frames() []frames.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frames.Frame(nil), s.sent...)
}

func waitForFrames(t *testing.T, sink *fakeSink, n int) []frames.Frame {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got := sink.frames()
		if len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sink received %d frames, want %d", len(sink.frames()), n)
	return nil
}

func TestAnnounceSendsServerMessage(t *testing.T) {
	sink := &fakeSink{}
	a := NewStatusAnnouncer(sink, "cobra", StatusAnnouncerOptions{
		StreamID: "s1",
		Delay:    5 * time.Millisecond,
	})
	a.Announce()

	got := waitForFrames(t, sink, 1)
	mf, ok := got[0].(frames.MessageFrame)
	if !ok {
		t.Fatalf("sent frame type = %T", got[0])
	}
	if mf.Scope() != frames.MessageScopeServer {
		t.Fatalf("scope = %q, want server", mf.Scope())
	}
	payload := mf.Payload()
	if payload["univox"] != "status" || payload["vad_backend"] != "cobra" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestAnnounceFallsBackToTransportMessage(t *testing.T) {
	sink := &fakeSink{failServer: true}
	a := NewStatusAnnouncer(sink, "silero", StatusAnnouncerOptions{
		StreamID: "s1",
		Delay:    5 * time.Millisecond,
	})
	a.Announce()

	got := waitForFrames(t, sink, 1)
	mf := got[0].(frames.MessageFrame)
	if mf.Scope() != frames.MessageScopeTransport {
		t.Fatalf("scope = %q, want transport", mf.Scope())
	}
	payload := mf.Payload()
	if payload["type"] != "univox-status" || payload["vad_backend"] != "silero" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestAnnounceDeliveryFailureIsSwallowed(t *testing.T) {
	sink := &fakeSink{failAll: true}
	a := NewStatusAnnouncer(sink, "cobra", StatusAnnouncerOptions{
		Delay: time.Millisecond,
	})
	a.Announce()
	time.Sleep(50 * time.Millisecond)
	if got := sink.frames(); len(got) != 0 {
		t.Fatalf("sink frames = %d, want 0", len(got))
	}
}

func TestFirstFinalTranscriptEmitsStatusOnce(t *testing.T) {
	a := NewStatusAnnouncer(&fakeSink{}, "cobra", StatusAnnouncerOptions{StreamID: "s1"})

	final := frames.NewTranscriptionFrame("s1", 1, "hello", "u1", "", "en", true, nil, nil)
	out, err := a.Process(final)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("output frames = %d, want 2", len(out))
	}
	mf, ok := out[1].(frames.MessageFrame)
	if !ok || mf.Payload()["vad_backend"] != "cobra" {
		t.Fatalf("second frame = %T %v", out[1], out[1])
	}

	out, err = a.Process(final)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("second final produced %d frames, want 1", len(out))
	}
}

func TestInterimTranscriptDoesNotTriggerStatus(t *testing.T) {
	a := NewStatusAnnouncer(&fakeSink{}, "cobra", StatusAnnouncerOptions{StreamID: "s1"})
	interim := frames.NewTranscriptionFrame("s1", 1, "hel", "u1", "", "en", false, nil, nil)
	out, err := a.Process(interim)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("output frames = %d, want 1", len(out))
	}
}

func TestDetachedAnnounceSkippedAfterInlineStatus(t *testing.T) {
	sink := &fakeSink{}
	a := NewStatusAnnouncer(sink, "cobra", StatusAnnouncerOptions{
		StreamID: "s1",
		Delay:    5 * time.Millisecond,
	})

	final := frames.NewTranscriptionFrame("s1", 1, "hello", "u1", "", "en", true, nil, nil)
	if _, err := a.Process(final); err != nil {
		t.Fatalf("process: %v", err)
	}
	a.Announce()
	time.Sleep(50 * time.Millisecond)
	if got := sink.frames(); len(got) != 0 {
		t.Fatalf("detached announce still fired, sink frames = %d", len(got))
	}
}
