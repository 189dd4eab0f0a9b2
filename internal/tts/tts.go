// Package tts renders assistant replies as speech.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Format is the only audio format the relay emits.
const Format = "mp3"

var errEmptyAudio = errors.New("provider returned no audio")

// Provider is a text-to-speech backend producing MP3 bytes.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SynthesisError carries the provider's failure message.
type SynthesisError struct {
	Provider string
	Message  string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("failed to generate audio (%s): %s", e.Provider, e.Message)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Gateway wraps a Provider so that every failure surfaces as a
// *SynthesisError.
type Gateway struct {
	Provider Provider
	Logger   *slog.Logger
}

func (g *Gateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SynthesisError{Provider: g.Provider.Name(), Message: "empty text"}
	}

	audio, err := g.Provider.Synthesize(ctx, text)
	if err != nil {
		return nil, &SynthesisError{Provider: g.Provider.Name(), Message: err.Error(), Err: err}
	}
	if len(audio) == 0 {
		return nil, &SynthesisError{Provider: g.Provider.Name(), Message: errEmptyAudio.Error(), Err: errEmptyAudio}
	}

	g.logger().Debug("Synthesized", "provider", g.Provider.Name(), "bytes", len(audio))
	return audio, nil
}

func (g *Gateway) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
