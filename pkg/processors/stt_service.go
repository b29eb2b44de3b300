package processors

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/univox/univox/pkg/adapters/stt"
	"github.com/univox/univox/pkg/errorsx"
	"github.com/univox/univox/pkg/frames"
	"github.com/univox/univox/pkg/metrics"
	"github.com/univox/univox/pkg/pipeline"
	"github.com/univox/univox/pkg/redact"
)

// STTService bridges pipeline lifecycle and audio events to a streaming STT
// provider and converts the provider's asynchronous callbacks back into
// pipeline frames. It owns no thread of its own; callbacks land in a buffered
// channel that Process drains on the pipeline's scheduling turn, so interim
// and final events keep the order the vendor emitted them in.
type STTService struct {
	mu         sync.Mutex
	provider   stt.Provider
	out        chan frames.Frame
	ctx        context.Context
	obs        metrics.Observer
	logger     *slog.Logger
	pts        *frames.PTSGen
	streamID   string
	userID     string
	traceID    string
	language   string
	model      string
	sampleRate int

	interimLogged bool
}

type STTServiceOptions struct {
	StreamID string
	// UserID identifies the speaker on emitted transcription frames. A
	// random identifier is assigned when empty.
	UserID  string
	TraceID string
	// SampleRate is the fallback when a pipeline_start frame carries none.
	SampleRate int
	Observer   metrics.Observer
}

func NewSTTService(provider stt.Provider, opts STTServiceOptions) *STTService {
	if opts.UserID == "" {
		opts.UserID = uuid.NewString()
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	s := &STTService{
		provider:   provider,
		out:        make(chan frames.Frame, 256),
		ctx:        context.Background(),
		obs:        opts.Observer,
		logger:     slog.Default().With(slog.String("component", "stt_service")),
		pts:        frames.NewPTSGen(),
		streamID:   opts.StreamID,
		userID:     opts.UserID,
		traceID:    opts.TraceID,
		sampleRate: opts.SampleRate,
	}
	provider.SetCallbacks(&serviceCallbacks{s: s})
	return s
}

func (s *STTService) Name() string { return "stt_service" }

func (s *STTService) SetObserver(obs metrics.Observer) { s.obs = obs }

func (s *STTService) SetContext(ctx context.Context) {
	if ctx != nil {
		s.ctx = ctx
	}
}

func (s *STTService) Process(f frames.Frame) ([]frames.Frame, error) {
	switch f.Kind() {
	case frames.KindSystem:
		return s.processSystem(f.(frames.SystemFrame)), nil
	case frames.KindAudio:
		return s.processAudio(f.(frames.AudioFrame)), nil
	default:
		return append([]frames.Frame{f}, s.drain()...), nil
	}
}

func (s *STTService) processSystem(sf frames.SystemFrame) []frames.Frame {
	meta := sf.Meta()
	s.trackStream(meta[frames.MetaStreamID])
	out := []frames.Frame{sf}

	switch sf.Name() {
	case frames.SystemPipelineStart:
		rate := s.sampleRate
		if v := meta[frames.MetaSampleRate]; v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				rate = parsed
			}
		}
		s.mu.Lock()
		s.sampleRate = rate
		s.mu.Unlock()
		s.record(metrics.EventSTTStart)
		if err := s.provider.Start(s.ctx, rate); err != nil {
			out = append(out, s.errorFrame("stt start error: "+err.Error()))
		}

	case frames.SystemPipelineStop:
		if err := s.provider.Stop(s.ctx); err != nil {
			s.logger.Error("stt_stop_error", slog.String("error", err.Error()))
		}

	case frames.SystemPipelineCancel:
		if err := s.provider.Cancel(s.ctx); err != nil {
			s.logger.Error("stt_cancel_error", slog.String("error", err.Error()))
		}

	case frames.SystemUserStartedSpeaking:
		// Segmentation belongs to the pipeline; nothing to forward.

	case frames.SystemUserStoppedSpeaking:
		s.record(metrics.EventSTTFinalize)
		if err := s.provider.FinalizeUtterance(s.ctx); err != nil {
			err = errorsx.Wrap(err, errorsx.ReasonSTTFinalize)
			s.logger.Info("stt_finalize_error",
				slog.String("stream_id", s.getStreamID()),
				slog.String("reason_code", string(errorsx.Reason(err))),
				slog.String("error", err.Error()))
			out = append(out, s.errorFrame("finalize error: "+err.Error()))
		}

	case frames.SystemSetLanguage:
		lang := strings.TrimSpace(meta[frames.MetaLanguage])
		if lang != "" {
			s.mu.Lock()
			s.language = lang
			s.mu.Unlock()
			s.logger.Info("stt_language_switch", slog.String("language", lang))
			if err := s.provider.SetLanguage(s.ctx, lang); err != nil {
				out = append(out, s.errorFrame("set language error: "+err.Error()))
			}
		}

	case frames.SystemSetModel:
		model := strings.TrimSpace(meta[frames.MetaModel])
		if model != "" {
			s.mu.Lock()
			s.model = model
			s.mu.Unlock()
			s.logger.Info("stt_model_switch", slog.String("model", model))
			if err := s.provider.SetModel(s.ctx, model); err != nil {
				out = append(out, s.errorFrame("set model error: "+err.Error()))
			}
		}
	}

	return append(out, s.drain()...)
}

func (s *STTService) processAudio(af frames.AudioFrame) []frames.Frame {
	s.trackStream(af.Meta()[frames.MetaStreamID])
	s.record(metrics.EventSTTAudioIn)

	var out []frames.Frame
	if err := s.provider.SendAudio(s.ctx, af.RawPayload()); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonSTTSend)
		s.logger.Info("stt_send_error",
			slog.String("stream_id", s.getStreamID()),
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		out = append(out, s.errorFrame("stt send error: "+err.Error()))
	}
	frames.ReleaseAudioFrame(af)

	return append(out, s.drain()...)
}

// drain collects frames the provider callbacks queued since the last turn.
func (s *STTService) drain() []frames.Frame {
	var out []frames.Frame
	for {
		select {
		case f := <-s.out:
			out = append(out, f)
		default:
			return out
		}
	}
}

func (s *STTService) push(f frames.Frame) {
	select {
	case s.out <- f:
	default:
		s.logger.Warn("stt_out_channel_full",
			slog.String("stream_id", s.getStreamID()))
	}
}

func (s *STTService) errorFrame(msg string) frames.ErrorFrame {
	streamID := s.getStreamID()
	meta := map[string]string{frames.MetaSource: "stt"}
	if s.traceID != "" {
		meta[frames.MetaTraceID] = s.traceID
	}
	return frames.NewErrorFrame(streamID, s.pts.Next(streamID), msg, meta)
}

func (s *STTService) transcriptionFrame(evt stt.TranscriptEvent) frames.TranscriptionFrame {
	streamID := s.getStreamID()
	lang := evt.Language
	if lang == "" {
		s.mu.Lock()
		lang = s.language
		s.mu.Unlock()
	}
	meta := map[string]string{
		frames.MetaSource:  "stt",
		frames.MetaUserID:  s.userID,
		frames.MetaIsFinal: strconv.FormatBool(evt.IsFinal),
	}
	if s.traceID != "" {
		meta[frames.MetaTraceID] = s.traceID
	}
	return frames.NewTranscriptionFrame(streamID, s.pts.Next(streamID),
		evt.Text, s.userID, nowISO8601(), lang, evt.IsFinal, evt.Payload, meta)
}

func (s *STTService) trackStream(streamID string) {
	if streamID == "" {
		return
	}
	s.mu.Lock()
	s.streamID = streamID
	s.mu.Unlock()
}

func (s *STTService) getStreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

func (s *STTService) record(name string) {
	if s.obs == nil {
		return
	}
	tags := map[string]string{frames.MetaStreamID: s.getStreamID(), "component": "stt"}
	if s.traceID != "" {
		tags[frames.MetaTraceID] = s.traceID
	}
	tags["provider"] = s.provider.Name()
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: tags,
	})
}

func (s *STTService) logInterim(text string) {
	s.mu.Lock()
	if s.interimLogged {
		s.mu.Unlock()
		return
	}
	s.interimLogged = true
	s.mu.Unlock()
	s.logger.Info("stt_interim",
		slog.String("stream_id", s.getStreamID()),
		slog.String("text", clipText(redact.Text(text))))
}

func (s *STTService) logFinal(text string) {
	s.logger.Info("stt_final",
		slog.String("stream_id", s.getStreamID()),
		slog.String("text", clipText(redact.Text(text))))
}

func nowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func clipText(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= 120 {
		return text
	}
	return text[:120] + "..."
}

// serviceCallbacks routes provider events into the service's frame queue.
type serviceCallbacks struct {
	s *STTService
}

func (c *serviceCallbacks) OnInterim(evt stt.TranscriptEvent) {
	c.s.logInterim(evt.Text)
	c.s.record(metrics.EventSTTInterim)
	c.s.push(c.s.transcriptionFrame(evt))
}

func (c *serviceCallbacks) OnFinal(evt stt.TranscriptEvent) {
	c.s.logFinal(evt.Text)
	c.s.record(metrics.EventSTTFinal)
	c.s.push(c.s.transcriptionFrame(evt))
}

func (c *serviceCallbacks) OnError(msg string) {
	c.s.record(metrics.EventSTTError)
	c.s.push(c.s.errorFrame(msg))
}

func (c *serviceCallbacks) OnSpeechStarted() {}

func (c *serviceCallbacks) OnUtteranceEnd() {}

var _ pipeline.FrameProcessor = (*STTService)(nil)
var _ stt.Callbacks = (*serviceCallbacks)(nil)
