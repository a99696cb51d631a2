package core

import (
	"context"

	"github.com/vovakirdan/relaychat/internal/conn"
	"github.com/vovakirdan/relaychat/internal/proto"
)

// serverDispatcher handles one decoded message from a validated connection.
type serverDispatcher struct {
	s *Server
}

func (d serverDispatcher) Dispatch(ctx context.Context, ev proto.Event) {
	s := d.s
	s.log.Debug().
		Str("alias", ev.Source.Alias()).
		Str("cmd", ev.Command).
		Msg("received")

	switch ev.Command {
	case proto.CmdExit, proto.CmdExitLower:
		s.leave(ev.Source)
	case proto.CmdList:
		s.reply(ev.Source, proto.List(s.reg.Aliases()))
	case proto.CmdMsg:
		s.relay(ctx, ev.Source, ev.Argument)
	case proto.CmdJoin:
		// Invitations are not implemented; the server only asks for the invitee.
		s.reply(ev.Source, proto.JoinPrompt)
	default:
		s.reply(ev.Source, proto.Echo(ev.Command, ev.Argument))
	}
}

func (s *Server) leave(ch *conn.Channel) {
	if s.reg.Remove(ch) {
		s.log.Info().Str("conn_id", ch.ID()).Str("alias", ch.Alias()).Msg("user left")
	}
	s.reply(ch, proto.CmdEnd)
	closeQuietly(ch, s.log)
}

func (s *Server) relay(ctx context.Context, from *conn.Channel, text string) {
	alias := from.Alias()
	s.record(ctx, alias, text)
	delivered := s.reg.Broadcast(from, proto.Broadcast(alias, text), func(ch *conn.Channel, err error) {
		s.log.Warn().Err(err).Str("conn_id", ch.ID()).Str("alias", ch.Alias()).Msg("broadcast delivery failed")
	})
	s.log.Debug().Str("alias", alias).Int("delivered", delivered).Msg("message relayed")
}
