package market

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const pingInterval = 30 * time.Second

// StreamSource subscribes to a rates publisher over websocket and keeps
// the most recent batch in memory. Fetch never blocks on the network; it
// hands out whatever the stream delivered last.
type StreamSource struct {
	url            string
	reconnectDelay time.Duration
	log            *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	latest []Snapshot
	seen   bool
}

var ErrNoBatch = errors.New("no rates batch received yet")

func NewStreamSource(url string, reconnectDelay time.Duration, log *zap.Logger) *StreamSource {
	return &StreamSource{url: url, reconnectDelay: reconnectDelay, log: log}
}

func (s *StreamSource) Fetch(ctx context.Context) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seen {
		return nil, ErrNoBatch
	}
	out := make([]Snapshot, len(s.latest))
	copy(out, s.latest)
	return out, nil
}

// Run drives the subscription until ctx is cancelled, reconnecting with a
// fixed delay after read failures.
func (s *StreamSource) Run(ctx context.Context) error {
	for {
		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("rates stream connect failed", zap.Error(err))
		} else {
			err := s.readLoop(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("rates stream interrupted", zap.Error(err))
		}
		s.resetConn()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *StreamSource) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	sub := map[string]string{"method": "subscribe", "channel": "rates"}
	payload, err := json.Marshal(sub)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe encode failed")
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe write failed")
		return err
	}
	s.conn = conn
	return nil
}

func (s *StreamSource) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("rates stream not connected")
	}
	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(pingCtx, conn)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.handleMessage(data)
	}
}

func (s *StreamSource) handleMessage(data []byte) {
	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		s.log.Debug("rates stream message ignored", zap.Error(err))
		return
	}
	if len(batch.Markets) == 0 {
		return
	}
	observedAt := batch.GeneratedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	snaps := Select(batch.Markets, observedAt)
	s.mu.Lock()
	s.latest = snaps
	s.seen = true
	s.mu.Unlock()
}

func (s *StreamSource) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func (s *StreamSource) resetConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "reconnecting")
	}
}
