package core

import (
	"context"

	"github.com/vovakirdan/relaychat/internal/proto"
	"github.com/vovakirdan/relaychat/internal/store"
)

func (s *Server) historyEnabled() bool {
	return s.store != nil && s.cfg.HistoryLimit > 0
}

// record appends a relayed message to the backlog and trims it to
// cfg.HistoryLimit entries.
func (s *Server) record(ctx context.Context, alias, body string) {
	if !s.historyEnabled() {
		return
	}
	if err := s.store.SaveMessage(ctx, &store.Message{Alias: alias, Body: body}); err != nil {
		s.log.Warn().Err(err).Msg("save message")
		return
	}
	if err := s.store.PruneMessages(ctx, s.cfg.HistoryLimit); err != nil {
		s.log.Warn().Err(err).Msg("prune messages")
	}
}

// backlog returns the recent messages formatted as broadcast lines,
// oldest first.
func (s *Server) backlog(ctx context.Context) []string {
	if !s.historyEnabled() {
		return nil
	}
	msgs, err := s.store.ListMessages(ctx, s.cfg.HistoryLimit)
	if err != nil {
		s.log.Warn().Err(err).Msg("list messages")
		return nil
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, proto.Broadcast(m.Alias, m.Body))
	}
	return lines
}
