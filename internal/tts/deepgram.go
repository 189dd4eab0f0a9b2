package tts

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

// Deepgram synthesizes through Deepgram's speak endpoint, whose default
// encoding is MP3.
type Deepgram struct {
	APIKey  string
	Model   string
	BaseURL string

	httpClient *http.Client
}

func NewDeepgram(apiKey, model string, client *http.Client) *Deepgram {
	if client == nil {
		client = &http.Client{}
	}
	return &Deepgram{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    deepgramBaseURL,
		httpClient: client,
	}
}

func (d *Deepgram) Name() string {
	return "deepgram"
}

func (d *Deepgram) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	u, err := url.Parse(d.BaseURL + "/v1/speak")
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if d.Model != "" {
		q := u.Query()
		q.Set("model", d.Model)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS API error: %s", string(body))
	}
	return body, nil
}
