package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/univox/univox/pkg/errorsx"
	"github.com/univox/univox/pkg/frames"
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	SampleRate     int      `mapstructure:"sample_rate"`
	Channels       int      `mapstructure:"channels"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Transport serves streaming clients over a websocket endpoint. Binary
// messages carry raw PCM audio inbound; text messages carry JSON control
// events. Outbound transcripts, errors and status messages are JSON text
// frames.
type Transport struct {
	cfg      Config
	server   *http.Server
	upgrader websocket.Upgrader
	recvCh   chan frames.Frame

	mu       sync.Mutex
	sessions map[string]*session

	draining atomic.Bool
	handlers sync.WaitGroup
}

// clientEvent is the inbound JSON control message.
type clientEvent struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
}

func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		recvCh:   make(chan frames.Frame, 512),
		sessions: make(map[string]*session),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "ws" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	addr := t.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return map[string]any{
		"ws_url": "ws://" + addr + t.cfg.WebsocketPath,
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.Handle(t.cfg.WebsocketPath, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ws_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

// Stop is idempotent. recvCh is closed only after every connection handler
// has returned, so no handler can send its trailing stop frame into a closed
// channel.
func (t *Transport) Stop() error {
	if !t.draining.CompareAndSwap(false, true) {
		return nil
	}
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*session)
	t.mu.Unlock()
	for _, sess := range sessions {
		_ = sess.close()
	}
	t.handlers.Wait()
	close(t.recvCh)
	return nil
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.handlers.Add(1)
	defer t.handlers.Done()
	// Checked after registration so Stop either sees this handler or this
	// handler sees draining; never neither.
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	rate := t.cfg.SampleRate
	if v := r.URL.Query().Get("rate"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			rate = parsed
		}
	}

	streamID := uuid.NewString()
	t.attach(streamID, conn)
	defer t.detach(streamID)

	meta := map[string]string{
		frames.MetaStreamID:   streamID,
		frames.MetaSampleRate: strconv.Itoa(rate),
		frames.MetaSource:     "transport",
	}
	nonBlockingSend(t.recvCh, frames.NewSystemFrame(streamID, time.Now().UnixNano(), frames.SystemPipelineStart, meta))

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch msgType {
		case websocket.BinaryMessage:
			audioMeta := map[string]string{
				frames.MetaStreamID: streamID,
				frames.MetaSource:   "transport",
			}
			af := frames.NewAudioFrameFromPool(streamID, time.Now().UnixNano(), msg, rate, t.cfg.Channels, audioMeta)
			nonBlockingSend(t.recvCh, af)
		case websocket.TextMessage:
			t.handleControl(streamID, msg)
		}
	}

	stopMeta := map[string]string{
		frames.MetaStreamID: streamID,
		frames.MetaSource:   "transport",
		frames.MetaReason:   "transport_closed",
	}
	nonBlockingSend(t.recvCh, frames.NewSystemFrame(streamID, time.Now().UnixNano(), frames.SystemPipelineStop, stopMeta))
}

func (t *Transport) handleControl(streamID string, msg []byte) {
	var evt clientEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		return
	}
	meta := map[string]string{
		frames.MetaStreamID: streamID,
		frames.MetaSource:   "transport",
	}
	var name string
	switch evt.Type {
	case "user_started_speaking":
		name = frames.SystemUserStartedSpeaking
	case "user_stopped_speaking":
		name = frames.SystemUserStoppedSpeaking
	case "set_language":
		if strings.TrimSpace(evt.Language) == "" {
			return
		}
		meta[frames.MetaLanguage] = evt.Language
		name = frames.SystemSetLanguage
	case "set_model":
		if strings.TrimSpace(evt.Model) == "" {
			return
		}
		meta[frames.MetaModel] = evt.Model
		name = frames.SystemSetModel
	default:
		return
	}
	nonBlockingSend(t.recvCh, frames.NewSystemFrame(streamID, time.Now().UnixNano(), name, meta))
}

func (t *Transport) Send(f frames.Frame) error {
	msg, ok := EncodeFrame(f)
	if !ok {
		return nil
	}
	streamID := f.Meta()[frames.MetaStreamID]
	sess := t.sessionFor(streamID)
	if sess == nil {
		return errorsx.Wrap(errors.New("no active session for stream "+streamID), errorsx.ReasonTransportSend)
	}
	return sess.enqueue(msg)
}

// EncodeFrame maps an outbound frame to its wire message. The second return
// is false for frame kinds that never leave the server.
func EncodeFrame(f frames.Frame) (map[string]any, bool) {
	switch fr := f.(type) {
	case frames.TranscriptionFrame:
		return map[string]any{
			"type":      "transcript",
			"text":      fr.Text(),
			"final":     fr.IsFinal(),
			"language":  fr.Language(),
			"user_id":   fr.UserID(),
			"timestamp": fr.Timestamp(),
		}, true
	case frames.ErrorFrame:
		return map[string]any{
			"type":  "error",
			"error": fr.Error(),
		}, true
	case frames.MessageFrame:
		switch fr.Scope() {
		case frames.MessageScopeServer:
			return map[string]any{
				"type":    "server-message",
				"payload": fr.Payload(),
			}, true
		case frames.MessageScopeTransport:
			payload := fr.Payload()
			msg := make(map[string]any, len(payload))
			for k, v := range payload {
				msg[k] = v
			}
			if _, ok := msg["type"]; !ok {
				msg["type"] = "app-message"
			}
			return msg, true
		}
		return nil, false
	default:
		return nil, false
	}
}

func (t *Transport) attach(streamID string, conn *websocket.Conn) {
	sess := &session{
		conn:   conn,
		sendCh: make(chan []byte, 256),
	}
	t.mu.Lock()
	t.sessions[streamID] = sess
	t.mu.Unlock()
	go sess.loop()
}

func (t *Transport) detach(streamID string) {
	t.mu.Lock()
	sess := t.sessions[streamID]
	delete(t.sessions, streamID)
	t.mu.Unlock()
	if sess != nil {
		_ = sess.close()
	}
}

func (t *Transport) sessionFor(streamID string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if streamID == "" && len(t.sessions) == 1 {
		for _, sess := range t.sessions {
			return sess
		}
	}
	return t.sessions[streamID]
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimSpace(allowed)
		if a == "" {
			continue
		}
		a = strings.TrimRight(a, "/")
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

type session struct {
	conn   *websocket.Conn
	sendCh chan []byte
	closed atomic.Bool
}

func (s *session) enqueue(msg map[string]any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case s.sendCh <- b:
	default:
	}
	return nil
}

func (s *session) loop() {
	for msg := range s.sendCh {
		_ = s.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (s *session) close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.sendCh)
	}
	return s.conn.Close()
}

func nonBlockingSend(ch chan frames.Frame, f frames.Frame) {
	select {
	case ch <- f:
	default:
	}
}
