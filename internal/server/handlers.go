package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type detail struct {
	Detail string `json:"detail"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleTTS synthesizes the text query parameter and returns it as an MP3
// attachment.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		writeJSON(w, http.StatusBadRequest, detail{Detail: "text query parameter is required"})
		return
	}

	ctx := r.Context()
	if s.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		defer cancel()
	}

	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		s.logger.Warn("TTS request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, detail{Detail: "TTS error: " + err.Error()})
		return
	}

	w.Header().Set("Content-Type", "audio/mp3")
	w.Header().Set("Content-Disposition", "attachment; filename=speech.mp3")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
