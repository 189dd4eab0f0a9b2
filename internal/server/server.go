// Package server exposes the relay and its auxiliary endpoints over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Config struct {
	// AllowedOrigins lists browser origins; "*" allows any origin.
	AllowedOrigins  []string
	ProviderTimeout time.Duration
}

type Server struct {
	cfg    Config
	relay  http.Handler
	tts    Synthesizer
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(cfg Config, relay http.Handler, tts Synthesizer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		relay:  relay,
		tts:    tts,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /ws", s.relay)
	s.mux.HandleFunc("GET /tts", s.handleTTS)
	s.mux.HandleFunc("GET /health", handleHealth)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = CORS(s.cfg.AllowedOrigins, h)
	h = Recover(s.logger, h)
	h = AccessLog(s.logger, h)
	return h
}

// OriginChecker builds a WebSocket origin check from an allow-list.
// Requests without an Origin header are accepted.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	set, wildcard := originSet(allowed)
	return func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func originSet(allowed []string) (map[string]struct{}, bool) {
	set := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			set[o] = struct{}{}
		}
	}
	return set, wildcard
}
