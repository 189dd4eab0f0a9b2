// Package protocol defines the JSON events exchanged over the relay
// WebSocket.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	ws "github.com/gorilla/websocket"
)

const (
	TypeInit          = "init"
	TypeMessage       = "message"
	TypeAgentMessage  = "agent_message"
	TypeAudioResponse = "audio_response"
	TypeTranscription = "transcription"
	TypeError         = "error"

	FormatMP3 = "mp3"
)

const (
	ErrTextInvalidFormat      = "Invalid JSON format"
	ErrTextCouldNotTranscribe = "Could not transcribe audio"
)

var ErrInvalidFormat = errors.New("invalid format")

type AgentMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type AudioResponse struct {
	Type   string `json:"type"`
	Audio  string `json:"audio"`
	Format string `json:"format"`
}

type Transcription struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewAgentMessage(text string) AgentMessage {
	return AgentMessage{Type: TypeAgentMessage, Text: text}
}

// NewAudioResponse carries base64 encoded audio.
func NewAudioResponse(b64, format string) AudioResponse {
	return AudioResponse{Type: TypeAudioResponse, Audio: b64, Format: format}
}

func NewTranscription(text string) Transcription {
	return Transcription{Type: TypeTranscription, Text: text}
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// Kind classifies an inbound unit.
type Kind uint

const (
	KindIgnored Kind = iota
	KindInit
	KindMessage
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindMessage:
		return "message"
	case KindAudio:
		return "audio"
	default:
		return "ignored"
	}
}

type Inbound struct {
	Kind      Kind
	SessionID string
	Text      string
	Audio     []byte
	// Type is the raw "type" field of an ignored structured unit.
	Type string
}

type clientFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// Classify turns one WebSocket frame into an Inbound unit. Structured frames
// that are not valid JSON objects yield ErrInvalidFormat. Well formed frames
// of unknown type, init frames without an id and message frames with empty
// text are KindIgnored.
func Classify(messageType int, data []byte) (Inbound, error) {
	if messageType == ws.BinaryMessage {
		return Inbound{Kind: KindAudio, Audio: data}, nil
	}

	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Inbound{}, ErrInvalidFormat
	}

	switch f.Type {
	case TypeInit:
		id := strings.TrimSpace(f.SessionID)
		if id == "" {
			return Inbound{Kind: KindIgnored, Type: f.Type}, nil
		}
		return Inbound{Kind: KindInit, SessionID: id}, nil
	case TypeMessage:
		if f.Text == "" {
			return Inbound{Kind: KindIgnored, Type: f.Type}, nil
		}
		return Inbound{Kind: KindMessage, Text: f.Text}, nil
	default:
		return Inbound{Kind: KindIgnored, Type: f.Type}, nil
	}
}

// Event is the client-side union of every outbound event.
type Event struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Audio   string `json:"audio,omitempty"`
	Format  string `json:"format,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e Event) String() string {
	switch e.Type {
	case TypeAgentMessage, TypeTranscription:
		return e.Type + ": " + e.Text
	case TypeAudioResponse:
		return e.Type + ": " + e.Format
	case TypeError:
		return e.Type + ": " + e.Message
	default:
		return e.Type
	}
}
