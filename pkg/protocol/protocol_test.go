package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	ws "github.com/gorilla/websocket"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		msgType   int
		data      string
		wantKind  Kind
		wantID    string
		wantText  string
		wantError bool
	}{
		{name: "init", msgType: ws.TextMessage, data: `{"type":"init","session_id":"abc123"}`, wantKind: KindInit, wantID: "abc123"},
		{name: "init without id", msgType: ws.TextMessage, data: `{"type":"init"}`, wantKind: KindIgnored},
		{name: "message", msgType: ws.TextMessage, data: `{"type":"message","text":"hello"}`, wantKind: KindMessage, wantText: "hello"},
		{name: "empty message", msgType: ws.TextMessage, data: `{"type":"message","text":""}`, wantKind: KindIgnored},
		{name: "unknown type", msgType: ws.TextMessage, data: `{"type":"ping"}`, wantKind: KindIgnored},
		{name: "malformed", msgType: ws.TextMessage, data: `{bad`, wantError: true},
		{name: "not an object", msgType: ws.TextMessage, data: `"hello"`, wantError: true},
		{name: "binary", msgType: ws.BinaryMessage, data: "\x1a\x45\xdf\xa3", wantKind: KindAudio},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in, err := Classify(tc.msgType, []byte(tc.data))
			if tc.wantError {
				if !errors.Is(err, ErrInvalidFormat) {
					t.Fatalf("err = %v, want ErrInvalidFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if in.Kind != tc.wantKind {
				t.Fatalf("kind = %s, want %s", in.Kind, tc.wantKind)
			}
			if in.SessionID != tc.wantID {
				t.Fatalf("session id = %q, want %q", in.SessionID, tc.wantID)
			}
			if in.Text != tc.wantText {
				t.Fatalf("text = %q, want %q", in.Text, tc.wantText)
			}
			if tc.wantKind == KindAudio && string(in.Audio) != tc.data {
				t.Fatal("audio payload not passed through")
			}
		})
	}
}

func TestOutboundFieldNames(t *testing.T) {
	tests := []struct {
		event any
		want  string
	}{
		{NewAgentMessage("hi"), `{"type":"agent_message","text":"hi"}`},
		{NewAudioResponse("AAE=", FormatMP3), `{"type":"audio_response","audio":"AAE=","format":"mp3"}`},
		{NewTranscription(""), `{"type":"transcription","text":""}`},
		{NewError(ErrTextInvalidFormat), `{"type":"error","message":"Invalid JSON format"}`},
	}
	for _, tc := range tests {
		b, err := json.Marshal(tc.event)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tc.want {
			t.Fatalf("json = %s, want %s", b, tc.want)
		}
	}
}
