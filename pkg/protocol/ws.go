package protocol

import (
	"encoding/json"
	"fmt"
	log "log/slog"
	"time"

	ws "github.com/gorilla/websocket"
)

// Client is a relay WebSocket client.
type Client struct {
	conn *ws.Conn
	url  string
}

func Dial(url string, timeout time.Duration) (*Client, error) {
	log.Debug("Dial relay", "url", url)

	dialer := *ws.DefaultDialer
	if timeout > 0 {
		dialer.HandshakeTimeout = timeout
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn, url: url}, nil
}

func (c *Client) SendInit(sessionID string) error {
	return c.sendJSON(clientFrame{Type: TypeInit, SessionID: sessionID})
}

func (c *Client) SendText(text string) error {
	return c.sendJSON(clientFrame{Type: TypeMessage, Text: text})
}

// SendRaw writes payload as a text frame without validation.
func (c *Client) SendRaw(payload []byte) error {
	log.Debug("Write ws", "msg", string(payload))
	return c.conn.WriteMessage(ws.TextMessage, payload)
}

func (c *Client) SendAudio(audio []byte) error {
	log.Debug("Write ws audio", "bytes", len(audio))
	return c.conn.WriteMessage(ws.BinaryMessage, audio)
}

func (c *Client) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendRaw(payload)
}

// ReadEvent waits up to timeout for the next event. A zero timeout waits
// forever.
func (c *Client) ReadEvent(timeout time.Duration) (Event, error) {
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}

	log.Debug("Read ws", "msg", string(msg))
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Close sends a normal closure frame and closes the connection.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// WsIsClosed reports whether err is a peer close.
func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure,
		ws.CloseNoStatusReceived)
}
