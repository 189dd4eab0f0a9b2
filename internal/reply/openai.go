package reply

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"

	"voxrelay/internal/conversation"
)

// OpenAIModel answers through chat completions.
type OpenAIModel struct {
	Client openai.Client
	Model  string
}

func (m *OpenAIModel) Name() string {
	return "openai/" + m.Model
}

func (m *OpenAIModel) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, t := range req.Turns {
		switch t.Role {
		case conversation.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Text))
		default:
			messages = append(messages, openai.UserMessage(t.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(m.Model),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := m.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
