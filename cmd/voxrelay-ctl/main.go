package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"voxrelay/internal/ipc"
	"voxrelay/pkg/audioprobe"
	"voxrelay/pkg/protocol"
)

const usage = `usage: voxrelay-ctl [flags] <command>

commands:
  sessions           list live sessions
  reap               run one eviction pass now
  say <text>         send a text message and print the replies
  send <audio-file>  send recorded audio and print the replies
`

func main() {
	ctlPath := cli.StringP("control", "c", ipc.DefaultSocketPath, "Daemon control socket")
	url := cli.StringP("url", "u", "ws://localhost:8000/ws", "Relay WebSocket url")
	sessionID := cli.StringP("session", "s", "", "Session id to resume with an init message")
	wait := cli.DurationP("wait", "w", 30*time.Second, "How long to wait for each reply event")
	save := cli.StringP("save", "o", "", "Write the last audio reply to this file")
	logLevel := cli.StringP("log", "l", "warn", "Log level")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	level := log.LevelWarn
	_ = level.UnmarshalText([]byte(*logLevel))
	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level})))

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	var err error
	switch cmd := args[0]; cmd {
	case ipc.CmdSessions, ipc.CmdReap:
		err = control(*ctlPath, cmd)
	case "say", "send":
		if len(args) < 2 {
			cli.Usage()
			os.Exit(2)
		}
		s := &chat{url: *url, sessionID: *sessionID, wait: *wait, save: *save}
		if cmd == "say" {
			err = s.say(args[1])
		} else {
			err = s.send(args[1])
		}
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "voxrelay-ctl:", err)
		os.Exit(1)
	}
}

func control(path, cmd string) error {
	reply, err := ipc.SendCommand(path, cmd)
	if err != nil {
		return fmt.Errorf("voxrelay not reachable at %s: %w", path, err)
	}

	switch cmd {
	case ipc.CmdSessions:
		if len(reply.Sessions) == 0 {
			fmt.Println("no sessions")
		}
		for _, s := range reply.Sessions {
			fmt.Printf("%-36s  idle %6.0fs  %s\n", s.ID, s.IdleSeconds, s.Remote)
		}
	case ipc.CmdReap:
		fmt.Printf("reaped %d session(s)\n", len(reply.Reaped))
		for _, id := range reply.Reaped {
			fmt.Println(" ", id)
		}
	}
	return nil
}

type chat struct {
	url       string
	sessionID string
	wait      time.Duration
	save      string
}

func (c *chat) say(text string) error {
	return c.exchange(func(client *protocol.Client) error {
		return client.SendText(text)
	})
}

func (c *chat) send(path string) error {
	audio, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if info, err := audioprobe.Probe(audio); err == nil {
		log.Info("Sending audio", "format", info.Format, "duration", info.Duration, "bytes", len(audio))
	} else {
		log.Warn("Unrecognised audio container", "file", path, "err", err)
	}
	return c.exchange(func(client *protocol.Client) error {
		return client.SendAudio(audio)
	})
}

// exchange connects, optionally resumes a session, performs send and
// prints events until the reply audio arrives, an error event arrives or
// the wait expires after the reply text.
func (c *chat) exchange(send func(*protocol.Client) error) error {
	client, err := protocol.Dial(c.url, 10*time.Second)
	if err != nil {
		return err
	}
	defer client.Close()

	greeting, err := client.ReadEvent(c.wait)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	fmt.Println(greeting)

	if c.sessionID != "" {
		if err := client.SendInit(c.sessionID); err != nil {
			return err
		}
	}
	if err := send(client); err != nil {
		return err
	}

	sawReply := false
	for {
		ev, err := client.ReadEvent(c.wait)
		if err != nil {
			if sawReply && !protocol.WsIsClosed(err) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		fmt.Println(ev)

		switch ev.Type {
		case protocol.TypeError:
			return errors.New(ev.Message)
		case protocol.TypeAgentMessage:
			sawReply = true
		case protocol.TypeAudioResponse:
			if err := c.saveAudio(ev.Audio); err != nil {
				return err
			}
			if sawReply {
				return nil
			}
		}
	}
}

func (c *chat) saveAudio(b64 string) error {
	if c.save == "" {
		return nil
	}
	audio, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}
	if err := os.WriteFile(c.save, audio, 0o644); err != nil {
		return err
	}
	if info, err := audioprobe.Probe(audio); err == nil {
		log.Info("Saved audio", "file", c.save, "duration", info.Duration)
	}
	return nil
}
