package reply

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"voxrelay/internal/conversation"
)

type fakeModel struct {
	reply string
	err   error
	reqs  []Request
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Complete(_ context.Context, req Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

func newResponder(m Model, store *conversation.Store) *Responder {
	return &Responder{
		Model:         m,
		Conversations: store,
		SystemPrompt:  "be brief",
		Greeting:      "Hello!",
		Temperature:   DefaultTemperature,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRespond_AppendsUserAndAssistantTurns(t *testing.T) {
	store := conversation.NewStore()
	store.Seed("s1", "Hello!")
	m := &fakeModel{reply: " Sure thing. "}

	got := newResponder(m, store).Respond(context.Background(), "s1", "hi")
	if got != "Sure thing." {
		t.Fatalf("reply = %q", got)
	}

	h := store.History("s1")
	if len(h) != 3 {
		t.Fatalf("history len = %d, want 3", len(h))
	}
	if h[1] != (conversation.Turn{Role: conversation.RoleUser, Text: "hi"}) {
		t.Fatalf("turn[1] = %+v", h[1])
	}
	if h[2] != (conversation.Turn{Role: conversation.RoleAssistant, Text: "Sure thing."}) {
		t.Fatalf("turn[2] = %+v", h[2])
	}

	req := m.reqs[0]
	if req.System != "be brief" || req.MaxTokens != DefaultMaxTokens || req.Temperature != DefaultTemperature {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Turns) != 2 || req.Turns[1].Text != "hi" {
		t.Fatalf("model turns = %+v, want greeting then user turn", req.Turns)
	}
}

func TestRespond_FailureReturnsApologyAndKeepsTurns(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{name: "provider error", model: &fakeModel{err: errors.New("rate limited")}},
		{name: "empty reply", model: &fakeModel{reply: "   "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := conversation.NewStore()
			got := newResponder(tc.model, store).Respond(context.Background(), "s1", "hi")
			if got != Apology {
				t.Fatalf("reply = %q, want apology", got)
			}
			h := store.History("s1")
			if len(h) != 2 || h[0].Role != conversation.RoleUser || h[1].Text != Apology {
				t.Fatalf("history = %+v", h)
			}
		})
	}
}

func TestRespond_ReplayGreetingPrependsFixedTurn(t *testing.T) {
	store := conversation.NewStore()
	m := &fakeModel{reply: "ok"}
	r := newResponder(m, store)
	r.ReplayGreeting = true

	r.Respond(context.Background(), "s1", "hi")
	turns := m.reqs[0].Turns
	if len(turns) != 2 {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[0] != (conversation.Turn{Role: conversation.RoleAssistant, Text: "Hello!"}) {
		t.Fatalf("turn[0] = %+v", turns[0])
	}
}

func TestRespond_MissingConversationIsEmptyHistory(t *testing.T) {
	store := conversation.NewStore()
	m := &fakeModel{reply: "ok"}
	newResponder(m, store).Respond(context.Background(), "unknown", "hi")
	if len(m.reqs[0].Turns) != 1 {
		t.Fatalf("turns = %+v, want only the user turn", m.reqs[0].Turns)
	}
}

func TestOpenAIModel_Complete(t *testing.T) {
	var body struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hi there!"}}]}`)
	}))
	defer srv.Close()

	m := &OpenAIModel{
		Client: openai.NewClient(option.WithAPIKey("sk-test"), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0)),
		Model:  "gpt-4o-mini",
	}
	got, err := m.Complete(context.Background(), Request{
		System: "sys",
		Turns: []conversation.Turn{
			{Role: conversation.RoleAssistant, Text: "Hello!"},
			{Role: conversation.RoleUser, Text: "hi"},
		},
		MaxTokens:   150,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Hi there!" {
		t.Fatalf("reply = %q", got)
	}
	if body.Model != "gpt-4o-mini" || body.MaxTokens != 150 || body.Temperature != 0.7 {
		t.Fatalf("body = %+v", body)
	}
	wantRoles := []string{"system", "assistant", "user"}
	if len(body.Messages) != len(wantRoles) {
		t.Fatalf("messages = %+v", body.Messages)
	}
	for i, role := range wantRoles {
		if body.Messages[i].Role != role {
			t.Fatalf("messages[%d].role = %q, want %q", i, body.Messages[i].Role, role)
		}
	}
}

func TestOpenAIModel_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	m := &OpenAIModel{
		Client: openai.NewClient(option.WithAPIKey("sk-test"), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0)),
		Model:  "gpt-4o-mini",
	}
	if _, err := m.Complete(context.Background(), Request{Turns: []conversation.Turn{{Role: conversation.RoleUser, Text: "hi"}}}); err == nil {
		t.Fatal("expected error")
	}
}
