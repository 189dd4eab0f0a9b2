package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const deepgramBaseURL = "https://api.deepgram.com"

// DeepgramModels lists the pre-recorded models the relay accepts.
var DeepgramModels = []string{"nova", "nova-2", "nova-3"}

// Deepgram transcribes through Deepgram's pre-recorded REST API.
type Deepgram struct {
	APIKey   string
	Model    string
	Language string
	BaseURL  string

	httpClient *http.Client
}

func NewDeepgram(apiKey, model, language string, client *http.Client) *Deepgram {
	if client == nil {
		client = &http.Client{}
	}
	return &Deepgram{
		APIKey:     apiKey,
		Model:      model,
		Language:   language,
		BaseURL:    deepgramBaseURL,
		httpClient: client,
	}
}

func (d *Deepgram) Name() string {
	return "deepgram"
}

type deepgramListenResponse struct {
	Results *struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe returns "" without error when Deepgram recognised nothing.
func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	u, err := url.Parse(d.BaseURL + "/v1/listen")
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	if d.Model != "" {
		q.Set("model", d.Model)
	}
	if d.Language != "" {
		q.Set("language", d.Language)
	}
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.APIKey)
	req.Header.Set("Content-Type", mimeType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("deepgram error %d: %s", resp.StatusCode, string(body))
	}

	var out deepgramListenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if out.Results == nil || len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return out.Results.Channels[0].Alternatives[0].Transcript, nil
}
