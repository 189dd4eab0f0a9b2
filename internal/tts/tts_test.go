package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeProvider struct {
	audio []byte
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, f.err
}

func TestGateway_WrapsFailures(t *testing.T) {
	cause := errors.New("quota exceeded")
	tests := []struct {
		name     string
		provider *fakeProvider
		text     string
		wantMsg  string
	}{
		{name: "provider error", provider: &fakeProvider{err: cause}, text: "hi", wantMsg: "quota exceeded"},
		{name: "empty audio", provider: &fakeProvider{}, text: "hi", wantMsg: "provider returned no audio"},
		{name: "empty text", provider: &fakeProvider{audio: []byte{1}}, text: "  ", wantMsg: "empty text"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := &Gateway{Provider: tc.provider}
			_, err := g.Synthesize(context.Background(), tc.text)
			var se *SynthesisError
			if !errors.As(err, &se) {
				t.Fatalf("err = %T %v, want *SynthesisError", err, err)
			}
			if se.Message != tc.wantMsg || se.Provider != "fake" {
				t.Fatalf("synthesis error = %+v", se)
			}
		})
	}

	g := &Gateway{Provider: &fakeProvider{err: cause}}
	if _, err := g.Synthesize(context.Background(), "hi"); !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false for %v", err)
	}
}

func TestGateway_ReturnsAudio(t *testing.T) {
	g := &Gateway{Provider: &fakeProvider{audio: []byte("ID3mp3")}}
	audio, err := g.Synthesize(context.Background(), "hello")
	if err != nil || string(audio) != "ID3mp3" {
		t.Fatalf("audio=%q err=%v", audio, err)
	}
}

func TestDeepgram_Synthesize(t *testing.T) {
	var gotText, gotModel, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speak" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText = body["text"]
		gotModel = r.URL.Query().Get("model")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3fake")
	}))
	defer srv.Close()

	d := NewDeepgram("dg", "aura-asteria-en", srv.Client())
	d.BaseURL = srv.URL
	audio, err := d.Synthesize(context.Background(), "Hello!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3fake" {
		t.Fatalf("audio = %q", audio)
	}
	if gotText != "Hello!" || gotModel != "aura-asteria-en" || gotAuth != "Token dg" {
		t.Fatalf("text=%q model=%q auth=%q", gotText, gotModel, gotAuth)
	}
}

func TestDeepgram_ErrorCarriesProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"err_msg":"text too long"}`)
	}))
	defer srv.Close()

	d := NewDeepgram("dg", "aura-asteria-en", srv.Client())
	d.BaseURL = srv.URL
	g := &Gateway{Provider: d}
	_, err := g.Synthesize(context.Background(), "Hello!")
	var se *SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(se.Message, "text too long") {
		t.Fatalf("message = %q", se.Message)
	}
}
