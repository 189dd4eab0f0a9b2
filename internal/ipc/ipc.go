package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const DefaultSocketPath = "/tmp/voxrelay.sock"

const ioTimeout = 5 * time.Second

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

type SessionInfo struct {
	ID          string  `json:"id"`
	IdleSeconds float64 `json:"idle_seconds"`
	Remote      string  `json:"remote,omitempty"`
}

type Reply struct {
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Sessions []SessionInfo `json:"sessions,omitempty"`
	Reaped   []string      `json:"reaped,omitempty"`
}

type Handler func(ctx context.Context, msg ControlMessage) Reply

type Server struct {
	ln     net.Listener
	path   string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartServer listens on path, replacing a stale socket file, and serves
// one request per connection until Close.
func StartServer(path string, handler Handler) (*Server, error) {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{ln: ln, path: path, cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Warn("Control accept failed", "err", err)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				handleConn(ctx, conn, handler)
			}()
		}
	}()

	return s, nil
}

func (s *Server) Addr() string {
	return s.path
}

func (s *Server) Close() error {
	s.cancel()
	err := s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	var msg ControlMessage
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		_ = json.NewEncoder(conn).Encode(Reply{Error: "bad request"})
		return
	}

	log.Debug("Control command", "cmd", msg.Cmd)
	reply := handler(ctx, msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Warn("Failed to write control reply", "err", err)
	}
}

func SendCommand(path, cmd string) (Reply, error) {
	conn, err := net.DialTimeout("unix", path, ioTimeout)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd}); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK && reply.Error != "" {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
