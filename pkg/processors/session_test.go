package processors

import (
	"context"
	"testing"
	"time"

	"github.com/univox/univox/pkg/adapters/stt"
	"github.com/univox/univox/pkg/frames"
	"github.com/univox/univox/pkg/pipeline"
	"github.com/univox/univox/pkg/providers/mock"
	mocktransport "github.com/univox/univox/pkg/transports/mock"
)

// Simulates a short session end to end: transport frames in, transcription
// frames back out through the transport.
func TestSessionThroughMockTransport(t *testing.T) {
	provider := mock.New()
	service := NewSTTService(provider, STTServiceOptions{StreamID: "s1", UserID: "u1"})
	transport := mocktransport.New()
	announcer := NewStatusAnnouncer(transport, "silero", StatusAnnouncerOptions{
		StreamID: "s1",
		Delay:    time.Hour,
	})
	chain := pipeline.NewChain(service, announcer)

	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("transport start: %v", err)
	}
	defer transport.Stop()

	transport.Push(frames.NewSystemFrame("s1", 1, frames.SystemPipelineStart, nil))
	provider.Script(stt.TranscriptEvent{Text: "set heat to twenty", IsFinal: true, Language: "en"})
	transport.Push(frames.NewAudioFrame("s1", 2, []byte{0x01, 0x02}, 16000, 1, nil))
	transport.Push(frames.NewSystemFrame("s1", 3, frames.SystemUserStoppedSpeaking, nil))

	for i := 0; i < 3; i++ {
		select {
		case f := <-transport.Recv():
			out, err := chain.Process(f)
			if err != nil {
				t.Fatalf("chain: %v", err)
			}
			for _, o := range out {
				if o.Kind() == frames.KindText || o.Kind() == frames.KindMessage {
					if err := transport.Send(o); err != nil {
						t.Fatalf("send: %v", err)
					}
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("transport frame %d missing", i)
		}
	}

	if provider.StartCalls != 1 || provider.FinalizeCalls != 1 {
		t.Fatalf("provider lifecycle = start %d finalize %d", provider.StartCalls, provider.FinalizeCalls)
	}

	sent := transport.Sent()
	var transcript *frames.TranscriptionFrame
	var status *frames.MessageFrame
	for _, f := range sent {
		switch fr := f.(type) {
		case frames.TranscriptionFrame:
			transcript = &fr
		case frames.MessageFrame:
			status = &fr
		}
	}
	if transcript == nil {
		t.Fatalf("no transcription sent, frames = %d", len(sent))
	}
	if transcript.Text() != "set heat to twenty" || !transcript.IsFinal() {
		t.Fatalf("transcript = %q final=%v", transcript.Text(), transcript.IsFinal())
	}
	if status == nil {
		t.Fatalf("no status message piggybacked on first final transcript")
	}
	if status.Payload()["vad_backend"] != "silero" {
		t.Fatalf("status payload = %v", status.Payload())
	}
}
