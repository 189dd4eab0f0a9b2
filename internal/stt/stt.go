// Package stt turns recorded audio into text.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const DefaultMIMEType = "audio/webm"

var (
	ErrNoAudio       = errors.New("no audio provided")
	ErrAudioTooLarge = errors.New("audio exceeds size limit")
)

// Provider is a speech-to-text backend.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Outcome uint

const (
	Transcribed Outcome = iota
	Empty
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Transcribed:
		return "transcribed"
	case Empty:
		return "empty"
	default:
		return "failed"
	}
}

// Result is the outcome of one transcription. Text is set only when
// Outcome is Transcribed, Err only when it is Failed.
type Result struct {
	Outcome Outcome
	Text    string
	Err     error
}

// OK reports whether a usable transcript is available.
func (r Result) OK() bool {
	return r.Outcome == Transcribed
}

// Gateway wraps a Provider so that callers never see provider errors.
type Gateway struct {
	Provider Provider
	// MaxBytes rejects larger buffers before they reach the provider. Zero
	// disables the check.
	MaxBytes int
	Logger   *slog.Logger
}

func (g *Gateway) Transcribe(ctx context.Context, audio []byte, mimeType string) Result {
	if len(audio) == 0 {
		return g.failed(ErrNoAudio)
	}
	if g.MaxBytes > 0 && len(audio) > g.MaxBytes {
		return g.failed(fmt.Errorf("%w: %d > %d bytes", ErrAudioTooLarge, len(audio), g.MaxBytes))
	}
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}

	text, err := g.Provider.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return g.failed(fmt.Errorf("%s: %w", g.Provider.Name(), err))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		g.logger().Debug("Empty transcription", "provider", g.Provider.Name(), "bytes", len(audio))
		return Result{Outcome: Empty}
	}

	g.logger().Info("Transcription", "provider", g.Provider.Name(), "text", text)
	return Result{Outcome: Transcribed, Text: text}
}

func (g *Gateway) failed(err error) Result {
	g.logger().Error("Transcription failed", "err", err)
	return Result{Outcome: Failed, Err: err}
}

func (g *Gateway) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
