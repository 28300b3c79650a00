package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"cdpvault/services/cdpd/indexer"
	"cdpvault/services/cdpd/stream"
)

const wsWriteTimeout = 10 * time.Second

// handleStream pushes engine events over a websocket. The optional types
// query restricts the feed; after replays indexed history first.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "unavailable", "event stream disabled", false)
		return
	}
	var types []string
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	var after *uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, badRequest("after", err))
			return
		}
		after = &seq
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are not expected; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, types, after); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, types []string, after *uint64) error {
	records, cancel := s.hub.Subscribe(s.buffer, types...)
	defer cancel()

	var last uint64
	if after != nil && s.history != nil {
		last = *after
		backlog, err := s.replay(ctx, types, last)
		if err != nil {
			return err
		}
		for _, rec := range backlog {
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
			last = rec.Seq
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if rec.Seq <= last {
				continue
			}
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
		}
	}
}

func (s *Server) replay(ctx context.Context, types []string, after uint64) ([]stream.Record, error) {
	if len(types) <= 1 {
		filter := indexer.Filter{AfterSeq: after, Limit: indexer.MaxLimit}
		if len(types) == 1 {
			filter.Type = types[0]
		}
		return s.history.Query(ctx, filter)
	}
	wanted := make(map[string]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}
	all, err := s.history.Query(ctx, indexer.Filter{AfterSeq: after, Limit: indexer.MaxLimit})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if _, ok := wanted[rec.Type]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec stream.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
