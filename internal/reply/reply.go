// Package reply produces assistant replies from a language model, keeping
// each session's conversation up to date.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voxrelay/internal/conversation"
)

// Apology is returned in place of a reply when the model fails.
const Apology = "I'm sorry, I encountered an error while processing your request."

const (
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.7
)

var errEmptyReply = errors.New("empty model reply")

// Request is the full model input for one turn.
type Request struct {
	System      string
	Turns       []conversation.Turn
	MaxTokens   int
	Temperature float64
}

// Model is a language model backend.
type Model interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Responder is the relay's response gateway.
type Responder struct {
	Model         Model
	Conversations *conversation.Store

	SystemPrompt string
	// Greeting is replayed ahead of the stored history when ReplayGreeting
	// is set.
	Greeting       string
	ReplayGreeting bool

	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

// Respond appends userText to the session's conversation, asks the model
// for a reply and appends it. On failure the apology is appended and
// returned instead; the user turn is kept either way.
func (r *Responder) Respond(ctx context.Context, sessionID, userText string) string {
	r.Conversations.Append(sessionID, conversation.Turn{Role: conversation.RoleUser, Text: userText})

	text, err := r.complete(ctx, sessionID)
	if err != nil {
		r.logger().Error("Model call failed", "model", r.Model.Name(), "session", sessionID, "err", err)
		text = Apology
	}

	r.Conversations.Append(sessionID, conversation.Turn{Role: conversation.RoleAssistant, Text: text})
	return text
}

func (r *Responder) complete(ctx context.Context, sessionID string) (string, error) {
	history := r.Conversations.History(sessionID)

	turns := make([]conversation.Turn, 0, len(history)+1)
	if r.ReplayGreeting && r.Greeting != "" {
		turns = append(turns, conversation.Turn{Role: conversation.RoleAssistant, Text: r.Greeting})
	}
	turns = append(turns, history...)

	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	text, err := r.Model.Complete(ctx, Request{
		System:      r.SystemPrompt,
		Turns:       turns,
		MaxTokens:   maxTokens,
		Temperature: r.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyReply
	}
	return text, nil
}

func (r *Responder) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
