package deepgram

import (
	"context"
	"fmt"
	"log/slog"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/univox/univox/pkg/adapters/stt"
	"github.com/univox/univox/pkg/configutil"
	"github.com/univox/univox/pkg/errorsx"
	"github.com/univox/univox/pkg/logging"
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// liveConn is the slice of the SDK websocket client the provider drives.
type liveConn interface {
	Connect() bool
	Write(p []byte) (int, error)
	Finalize() error
	Stop()
}

var _ liveConn = (*client.WSCallback)(nil)

type dialFn func(ctx context.Context, apiKey string, cOptions *interfaces.ClientOptions, tOptions *interfaces.LiveTranscriptionOptions, cb msginterfaces.LiveMessageCallback) (liveConn, error)

func defaultDial(ctx context.Context, apiKey string, cOptions *interfaces.ClientOptions, tOptions *interfaces.LiveTranscriptionOptions, cb msginterfaces.LiveMessageCallback) (liveConn, error) {
	return client.NewWSUsingCallback(ctx, apiKey, cOptions, tOptions, cb)
}

type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Encoding string
	Channels int
	// KeepAlive defaults to on, matching the vendor's recommendation for
	// long-lived streams.
	KeepAlive *bool
	// Settings overrides individual live-transcription options and is merged
	// over the defaults at construction time.
	Settings map[string]any
}

// Provider streams audio to Deepgram over the vendor websocket SDK and routes
// transcript events into a callbacks sink. It holds at most one live
// connection; SetLanguage and SetModel tear the connection down and dial a
// new one, even when the value did not change.
//
// All state is mutated only by the provider's own methods; the host pipeline
// guarantees single-threaded access.
type Provider struct {
	cfg      Config
	settings interfaces.LiveTranscriptionOptions
	dial     dialFn
	conn     liveConn
	state    connState
	cb       stt.Callbacks
	logger   *slog.Logger

	metaLogged bool
}

func New(cfg Config) (*Provider, error) {
	if err := configutil.RequireString(cfg.APIKey, "deepgram.api_key"); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}

	settings := interfaces.LiveTranscriptionOptions{
		Encoding:        "linear16",
		Language:        "en",
		Model:           "nova-3-general",
		Channels:        1,
		InterimResults:  true,
		SmartFormat:     true,
		Punctuate:       true,
		ProfanityFilter: true,
		VadEvents:       false,
	}
	if cfg.Model != "" {
		settings.Model = cfg.Model
	}
	if cfg.Language != "" {
		settings.Language = cfg.Language
	}
	if cfg.Encoding != "" {
		settings.Encoding = cfg.Encoding
	}
	if cfg.Channels > 0 {
		settings.Channels = cfg.Channels
	}
	if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("decode deepgram settings: %w", err), errorsx.ReasonConfig)
	}
	// Provider-side VAD stays off and interim results stay on no matter what
	// the settings map says; segmentation belongs to the pipeline.
	settings.VadEvents = false
	settings.InterimResults = true
	if settings.Model == "" {
		settings.Model = "nova-3-general"
	}

	return &Provider{
		cfg:      cfg,
		settings: settings,
		dial:     defaultDial,
		state:    stateDisconnected,
		logger:   logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}, nil
}

func (p *Provider) Name() string { return "deepgram" }

func (p *Provider) SetCallbacks(cb stt.Callbacks) { p.cb = cb }

// Start opens the connection bound to the sample rate the pipeline discovered
// at start time.
func (p *Provider) Start(ctx context.Context, sampleRate int) error {
	p.settings.SampleRate = sampleRate
	return p.connect(ctx)
}

func (p *Provider) Stop(ctx context.Context) error {
	p.disconnect()
	return nil
}

// Cancel is idempotent and safe before Start or after teardown.
func (p *Provider) Cancel(ctx context.Context) error {
	p.disconnect()
	return nil
}

// SendAudio is a no-op with no active connection.
func (p *Provider) SendAudio(ctx context.Context, audio []byte) error {
	if p.state != stateConnected || p.conn == nil {
		return nil
	}
	if _, err := p.conn.Write(audio); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTSend)
	}
	return nil
}

// FinalizeUtterance asks the vendor to flush the current utterance. A no-op
// when not connected.
func (p *Provider) FinalizeUtterance(ctx context.Context) error {
	if p.state != stateConnected || p.conn == nil {
		return nil
	}
	if err := p.conn.Finalize(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTFinalize)
	}
	return nil
}

func (p *Provider) SetLanguage(ctx context.Context, language string) error {
	p.settings.Language = language
	return p.reconnect(ctx)
}

func (p *Provider) SetModel(ctx context.Context, model string) error {
	p.settings.Model = model
	return p.reconnect(ctx)
}

// connect reports open failures through the callback sink rather than
// returning them; the provider is left cleanly disconnected either way.
func (p *Provider) connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.state = stateConnecting

	keepAlive := true
	if p.cfg.KeepAlive != nil {
		keepAlive = *p.cfg.KeepAlive
	}
	cOptions := &interfaces.ClientOptions{EnableKeepAlive: keepAlive}
	if p.cfg.BaseURL != "" {
		cOptions.Host = p.cfg.BaseURL
	}
	tOptions := p.settings

	conn, err := p.dial(ctx, p.cfg.APIKey, cOptions, &tOptions, &callback{parent: p})
	if err != nil {
		p.state = stateDisconnected
		p.logger.Error("deepgram_client_create_error",
			slog.String("reason_code", string(errorsx.ReasonSTTConnect)),
			slog.String("error", err.Error()))
		p.dispatchError(fmt.Sprintf("deepgram client: %v", err))
		return nil
	}
	if !conn.Connect() {
		p.state = stateDisconnected
		p.logger.Error("deepgram_connect_failed",
			slog.String("reason_code", string(errorsx.ReasonSTTConnect)))
		p.dispatchError("Deepgram connection failed. Check API key and network.")
		return nil
	}

	p.conn = conn
	p.state = stateConnected
	p.logger.Info("deepgram_connected",
		slog.String("model", p.settings.Model),
		slog.String("language", p.settings.Language),
		slog.Int("sample_rate", p.settings.SampleRate))
	return nil
}

func (p *Provider) disconnect() {
	if p.conn != nil && p.state == stateConnected {
		p.logger.Debug("deepgram_disconnecting")
		p.conn.Stop()
	}
	p.conn = nil
	p.state = stateDisconnected
}

// reconnect always performs a full disconnect/connect cycle, even for no-op
// settings changes. Retained behavior; correctness over connection churn.
func (p *Provider) reconnect(ctx context.Context) error {
	p.disconnect()
	return p.connect(ctx)
}

func (p *Provider) dispatchError(msg string) {
	if p.cb == nil {
		return
	}
	p.cb.OnError(msg)
}

// --- vendor event dispatch ---

type callback struct {
	parent *Provider
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram_connection_opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}

	language := ""
	if len(alt.Languages) > 0 {
		language = alt.Languages[0]
	}

	c.parent.logger.Debug("transcript_received",
		slog.Bool("is_final", mr.IsFinal),
		slog.String("language", language))

	if c.parent.cb == nil {
		return nil
	}
	evt := stt.TranscriptEvent{
		Text:     alt.Transcript,
		IsFinal:  mr.IsFinal,
		Language: language,
		Payload:  mr,
	}
	if evt.IsFinal {
		c.parent.cb.OnFinal(evt)
	} else {
		c.parent.cb.OnInterim(evt)
	}
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("deepgram_metadata_received",
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	if c.parent.cb != nil {
		c.parent.cb.OnSpeechStarted()
	}
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	if c.parent.cb != nil {
		c.parent.cb.OnUtteranceEnd()
	}
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram_connection_closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram_error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.parent.dispatchError(fmt.Sprintf("%s: %s", er.ErrCode, er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event",
		slog.String("data", string(byData)))
	return nil
}

var _ stt.Provider = (*Provider)(nil)
