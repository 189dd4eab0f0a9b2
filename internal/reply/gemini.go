package reply

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"voxrelay/internal/conversation"
)

// GeminiModel answers through the Gemini GenerateContent API.
type GeminiModel struct {
	Client *genai.Client
	// Model should not start with "models/".
	Model string
}

// NewGeminiModel builds a Gemini API client. A nil httpClient uses the
// library default.
func NewGeminiModel(ctx context.Context, apiKey, model string, httpClient *http.Client) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GeminiModel{Client: client, Model: model}, nil
}

func (m *GeminiModel) Name() string {
	return "gemini/" + m.Model
}

func (m *GeminiModel) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		var role genai.Role = genai.RoleUser
		if t.Role == conversation.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("no contents")
	}

	resp, err := m.Client.Models.GenerateContent(ctx, m.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
