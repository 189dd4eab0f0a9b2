// Package relay owns relay connections end to end: admission, the
// per-unit dispatch loop and teardown.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxrelay/internal/conversation"
	"voxrelay/internal/session"
	"voxrelay/internal/stt"
)

const (
	DefaultGreeting     = "Hello! I'm Lisa, your personal assistant. How can I help you? You can ask me anything."
	defaultWriteTimeout = 10 * time.Second
)

// Conn is the subset of *websocket.Conn the handler uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
	Close() error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) stt.Result
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Responder interface {
	Respond(ctx context.Context, sessionID, userText string) string
}

type Config struct {
	Greeting string
	// ProviderTimeout bounds every transcription, reply and synthesis call.
	ProviderTimeout time.Duration
	WriteTimeout    time.Duration
	// PingInterval enables keepalive pings; a peer that stops answering for
	// two intervals is disconnected.
	PingInterval    time.Duration
	MaxMessageBytes int64
}

// Handler serves the relay WebSocket endpoint.
type Handler struct {
	Registry      *session.Registry
	Conversations *conversation.Store
	STT           Transcriber
	TTS           Synthesizer
	Responder     Responder
	Config        Config
	Logger        *slog.Logger

	// CheckOrigin is passed to the upgrader; nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
	// BaseContext is the parent of every connection context. Canceling it
	// closes all connections.
	BaseContext func() context.Context
	// NewID generates provisional session ids.
	NewID func() string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checkOrigin := h.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger().Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	ctx := context.Background()
	if h.BaseContext != nil {
		ctx = h.BaseContext()
	}
	h.Serve(ctx, conn)
}

// Serve drives conn until the peer disconnects, a write fails or ctx is
// canceled. The session's registry and conversation entries are released
// on every exit path.
func (h *Handler) Serve(ctx context.Context, conn Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &connSession{
		h:    h,
		conn: conn,
		id:   h.newID(),
	}
	s.log = h.logger().With("remote", conn.RemoteAddr().String())
	defer s.release()

	s.start(ctx, cancel)
	defer s.stop(cancel)

	if err := s.admit(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			s.log.Debug("Client left during admission", "session", s.id)
			return
		}
		s.log.Warn("Admission failed", "session", s.id, "err", err)
		return
	}
	s.run(ctx)
}

func (h *Handler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *Handler) greeting() string {
	if h.Config.Greeting == "" {
		return DefaultGreeting
	}
	return h.Config.Greeting
}

func (h *Handler) writeTimeout() time.Duration {
	if h.Config.WriteTimeout <= 0 {
		return defaultWriteTimeout
	}
	return h.Config.WriteTimeout
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
