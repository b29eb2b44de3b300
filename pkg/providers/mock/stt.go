package mock

import (
	"context"

	"github.com/univox/univox/pkg/adapters/stt"
)

// Provider is a scripted stt.Provider for tests. Events queued with Script
// are dispatched into the callback sink on the next SendAudio call.
type Provider struct {
	cb stt.Callbacks

	StartCalls    int
	StopCalls     int
	CancelCalls   int
	FinalizeCalls int
	AudioSent     [][]byte
	Languages     []string
	Models        []string
	SampleRate    int
	Connected     bool

	StartErr    error
	FinalizeErr error

	script []stt.TranscriptEvent
	errs   []string
}

func New() *Provider { return &Provider{} }

// Script queues transcript events to emit on the next SendAudio.
func (p *Provider) Script(events ...stt.TranscriptEvent) {
	p.script = append(p.script, events...)
}

// ScriptError queues an error string to emit on the next SendAudio.
func (p *Provider) ScriptError(msg string) {
	p.errs = append(p.errs, msg)
}

func (p *Provider) Name() string { return "mock_stt" }

func (p *Provider) SetCallbacks(cb stt.Callbacks) { p.cb = cb }

func (p *Provider) Start(ctx context.Context, sampleRate int) error {
	p.StartCalls++
	if p.StartErr != nil {
		return p.StartErr
	}
	p.SampleRate = sampleRate
	p.Connected = true
	return nil
}

func (p *Provider) Stop(ctx context.Context) error {
	p.StopCalls++
	p.Connected = false
	return nil
}

func (p *Provider) Cancel(ctx context.Context) error {
	p.CancelCalls++
	p.Connected = false
	return nil
}

func (p *Provider) SendAudio(ctx context.Context, audio []byte) error {
	if !p.Connected {
		return nil
	}
	p.AudioSent = append(p.AudioSent, append([]byte(nil), audio...))
	p.flush()
	return nil
}

func (p *Provider) FinalizeUtterance(ctx context.Context) error {
	p.FinalizeCalls++
	if p.FinalizeErr != nil {
		return p.FinalizeErr
	}
	p.flush()
	return nil
}

func (p *Provider) SetLanguage(ctx context.Context, language string) error {
	p.Languages = append(p.Languages, language)
	return nil
}

func (p *Provider) SetModel(ctx context.Context, model string) error {
	p.Models = append(p.Models, model)
	return nil
}

func (p *Provider) flush() {
	if p.cb == nil {
		return
	}
	for _, evt := range p.script {
		if evt.IsFinal {
			p.cb.OnFinal(evt)
		} else {
			p.cb.OnInterim(evt)
		}
	}
	p.script = nil
	for _, msg := range p.errs {
		p.cb.OnError(msg)
	}
	p.errs = nil
}

var _ stt.Provider = (*Provider)(nil)
