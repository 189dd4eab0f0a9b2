package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/openai/openai-go/v3"
)

// OpenAI synthesizes through the audio speech endpoint.
type OpenAI struct {
	Client openai.Client
	Model  string
	Voice  string
}

func (o *OpenAI) Name() string {
	return "openai"
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := o.Client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(o.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}
