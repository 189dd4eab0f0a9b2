package ipc

import (
	"context"
	"sort"

	"voxrelay/internal/session"
)

const (
	CmdSessions = "sessions"
	CmdReap     = "reap"
)

// NewControl answers the daemon's control commands from the live registry.
func NewControl(reg *session.Registry, reaper *session.Reaper) Handler {
	return func(ctx context.Context, msg ControlMessage) Reply {
		switch msg.Cmd {
		case CmdSessions:
			return Reply{OK: true, Sessions: sessions(reg)}
		case CmdReap:
			ids, err := reaper.Cycle(ctx)
			if err != nil {
				return Reply{Reaped: ids, Error: err.Error()}
			}
			return Reply{OK: true, Reaped: ids}
		default:
			return Reply{Error: "unknown command: " + msg.Cmd}
		}
	}
}

func sessions(reg *session.Registry) []SessionInfo {
	now := reg.Now()
	entries := reg.Snapshot()
	out := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		info := SessionInfo{
			ID:          e.ID,
			IdleSeconds: now.Sub(e.LastActivity).Seconds(),
		}
		if e.Conn != nil && e.Conn.RemoteAddr() != nil {
			info.Remote = e.Conn.RemoteAddr().String()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
