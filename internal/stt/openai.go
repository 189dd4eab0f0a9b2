package stt

import (
	"bytes"
	"context"
	"fmt"
	"mime"

	openai "github.com/openai/openai-go/v3"
)

// OpenAIModels lists the transcription models the relay accepts.
var OpenAIModels = []string{"whisper-1", "gpt-4o-transcribe", "gpt-4o-mini-transcribe"}

// OpenAI transcribes through the audio transcriptions endpoint.
type OpenAI struct {
	Client   openai.Client
	Model    string
	Language string
}

func (o *OpenAI) Name() string {
	return "openai"
}

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "audio"+extension(mimeType), mimeType),
		Model: openai.AudioModel(o.Model),
	}
	if o.Language != "" {
		params.Language = openai.String(o.Language)
	}

	resp, err := o.Client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}

func extension(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = mimeType
	}
	switch base {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	default:
		return ".webm"
	}
}
