package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxrelay/pkg/audioprobe"
	"voxrelay/pkg/protocol"
)

// maxQueuedFrames bounds how far the read pump may run ahead of the
// handler. A client that exceeds it is disconnected.
const maxQueuedFrames = 32

var errTooManyFrames = errors.New("too many queued frames")

type frame struct {
	messageType int
	data        []byte
}

// inbox hands frames from the read pump to the handler. push never blocks,
// so the pump keeps reading and notices a disconnect while a frame is
// being handled.
type inbox struct {
	mu     sync.Mutex
	frames []frame
	err    error
	ready  chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

func (q *inbox) push(f frame) bool {
	q.mu.Lock()
	if len(q.frames) >= maxQueuedFrames {
		q.mu.Unlock()
		return false
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()
	q.notify()
	return true
}

func (q *inbox) pop() (frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return frame{}, false
	}
	f := q.frames[0]
	q.frames[0] = frame{}
	q.frames = q.frames[1:]
	return f, true
}

// fail records the first read error.
func (q *inbox) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.notify()
}

func (q *inbox) readErr() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *inbox) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// connSession is the per-connection state. Only the goroutine running
// Serve writes data frames or changes id.
type connSession struct {
	h     *Handler
	conn  Conn
	id    string
	state atomic.Uint32
	log   *slog.Logger

	in *inbox
	wg sync.WaitGroup
}

func (s *connSession) setState(next State) {
	prev := State(s.state.Swap(uint32(next)))
	if prev != next {
		s.log.Debug("State changed", "session", s.id, "from", prev, "to", next)
	}
}

// start launches the read pump and keepalive pings. Either one cancels ctx
// when the connection fails.
func (s *connSession) start(ctx context.Context, cancel context.CancelFunc) {
	if limit := s.h.Config.MaxMessageBytes; limit > 0 {
		s.conn.SetReadLimit(limit)
	}
	s.in = newInbox()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.readPump()
	}()

	if interval := s.h.Config.PingInterval; interval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pingLoop(ctx, cancel, interval)
		}()
	}
}

func (s *connSession) stop(cancel context.CancelFunc) {
	cancel()
	_ = s.conn.Close()
	s.wg.Wait()
}

func (s *connSession) admit(ctx context.Context) error {
	s.setState(StateConnecting)
	s.h.Registry.Put(s.id, s.conn)
	s.setState(StateAdmitted)
	s.log.Info("Client connected", "session", s.id)

	greeting := s.h.greeting()
	if err := s.send(ctx, protocol.NewAgentMessage(greeting)); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}
	if err := s.speak(ctx, greeting); err != nil {
		return err
	}
	s.h.Conversations.Seed(s.id, greeting)
	return nil
}

func (s *connSession) run(ctx context.Context) {
	s.setState(StateActive)
	err := s.loop(ctx)

	switch {
	case err == nil, errors.Is(err, context.Canceled), protocol.WsIsClosed(err):
		s.log.Debug("Connection loop ended", "session", s.id, "err", err)
	default:
		s.log.Warn("Connection loop failed", "session", s.id, "err", err)
	}
}

func (s *connSession) readPump() {
	interval := s.h.Config.PingInterval
	extend := func() {
		if interval > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(2 * interval))
		}
	}
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.in.fail(err)
			return
		}
		extend()
		if !s.in.push(frame{messageType: messageType, data: data}) {
			s.in.fail(errTooManyFrames)
			return
		}
	}
}

func (s *connSession) pingLoop(ctx context.Context, cancel context.CancelFunc, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.h.writeTimeout())
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Debug("Ping failed", "err", err)
				cancel()
				return
			}
		}
	}
}

// loop handles queued frames in order. Frames still queued once ctx is
// done are dropped.
func (s *connSession) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			if err := s.in.readErr(); err != nil {
				return err
			}
			return ctx.Err()
		}
		if f, ok := s.in.pop(); ok {
			if err := s.handle(ctx, f); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
		case <-s.in.ready:
		}
	}
}

// handle processes one inbound unit. A returned error closes the
// connection; protocol level problems are reported to the client instead.
func (s *connSession) handle(ctx context.Context, f frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling frame: %v", r)
		}
	}()

	s.h.Registry.Touch(s.id)

	in, err := protocol.Classify(f.messageType, f.data)
	if err != nil {
		s.log.Warn("Failed to parse JSON message", "session", s.id, "err", err)
		return s.send(ctx, protocol.NewError(protocol.ErrTextInvalidFormat))
	}

	switch in.Kind {
	case protocol.KindInit:
		s.rekey(in.SessionID)
		return nil
	case protocol.KindMessage:
		return s.converse(ctx, in.Text)
	case protocol.KindAudio:
		return s.transcribe(ctx, in.Audio)
	default:
		s.log.Debug("Ignored unit", "session", s.id, "type", in.Type)
		return nil
	}
}

func (s *connSession) rekey(newID string) {
	if newID == s.id {
		return
	}
	oldID := s.id
	if !s.h.Registry.Rekey(oldID, newID) {
		s.h.Registry.Put(newID, s.conn)
	}
	s.h.Conversations.Move(oldID, newID)
	s.id = newID
	s.log.Info("Session rekeyed", "old", oldID, "session", newID)
}

func (s *connSession) converse(ctx context.Context, text string) error {
	pctx, cancel := s.providerContext(ctx)
	reply := s.h.Responder.Respond(pctx, s.id, text)
	cancel()

	if err := s.send(ctx, protocol.NewAgentMessage(reply)); err != nil {
		return err
	}
	return s.speak(ctx, reply)
}

func (s *connSession) transcribe(ctx context.Context, audio []byte) error {
	format := audioprobe.Sniff(audio)
	s.log.Debug("Received audio", "session", s.id, "bytes", len(audio), "format", format)

	pctx, cancel := s.providerContext(ctx)
	res := s.h.STT.Transcribe(pctx, audio, format.MIMEType())
	cancel()

	if !res.OK() {
		return s.send(ctx, protocol.NewError(protocol.ErrTextCouldNotTranscribe))
	}
	if err := s.send(ctx, protocol.NewTranscription(res.Text)); err != nil {
		return err
	}
	return s.converse(ctx, res.Text)
}

// speak synthesizes text and sends it as an audio_response. Synthesis
// failures are logged and swallowed; only a failed write or a closed
// connection is returned.
func (s *connSession) speak(ctx context.Context, text string) error {
	pctx, cancel := s.providerContext(ctx)
	audio, err := s.h.TTS.Synthesize(pctx, text)
	cancel()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.log.Warn("Failed to generate audio", "session", s.id, "err", err)
		return nil
	}

	if info, err := audioprobe.Probe(audio); err == nil {
		s.log.Debug("Synthesized audio", "session", s.id, "bytes", len(audio), "duration", info.Duration)
	}

	b64 := base64.StdEncoding.EncodeToString(audio)
	return s.send(ctx, protocol.NewAudioResponse(b64, protocol.FormatMP3))
}

func (s *connSession) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := s.h.Config.ProviderTimeout; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (s *connSession) send(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.writeTimeout()))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (s *connSession) release() {
	s.setState(StateClosing)
	if s.h.Registry.Release(s.id, s.conn) {
		s.h.Conversations.Delete(s.id)
	} else {
		s.log.Warn("Session id held by another connection", "session", s.id)
	}
	_ = s.conn.Close()
	s.setState(StateClosed)
	s.log.Info("Client disconnected", "session", s.id)
}
