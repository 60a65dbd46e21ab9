package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"academic-risk/internal/dashboard"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// AlertStream follows the dashboard WebSocket and reconnects with
// exponential backoff until its context ends.
type AlertStream struct {
	url        string
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewAlertStream watches the dashboard stream at url (ws:// or wss://).
func NewAlertStream(url string) *AlertStream {
	return &AlertStream{url: url, backoff: time.Second, maxBackoff: 30 * time.Second}
}

// Run delivers alerts and snapshots until ctx is done. Either channel may be
// nil; messages for a nil channel are discarded. Connection errors are
// reported on errs without blocking.
func (s *AlertStream) Run(ctx context.Context, alerts chan<- dashboard.Alert, snapshots chan<- dashboard.Summary, errs chan<- error) error {
	backoff := s.backoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		connected, err := s.streamOnce(ctx, alerts, snapshots)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			// Reset backoff after a successful connection
			backoff = s.backoff
		}

		log.Warn().Err(err).Dur("backoff", backoff).Msg("Alert stream disconnected, reconnecting")
		select {
		case errs <- fmt.Errorf("alert stream reconnect: %w", err):
		default:
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// streamOnce reads one connection until it fails. connected reports whether
// the dial succeeded.
func (s *AlertStream) streamOnce(ctx context.Context, alerts chan<- dashboard.Alert, snapshots chan<- dashboard.Summary) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()
	conn.SetReadLimit(1 << 20)
	log.Info().Str("url", s.url).Msg("Alert stream connected")

	// unblock the read when ctx ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errors.New("connection closed by server")
			}
			return true, fmt.Errorf("read message failed: %w", err)
		}

		var msg dashboard.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("Failed to parse dashboard message")
			continue
		}

		switch {
		case msg.Type == dashboard.TypeAlert && msg.Alert != nil && alerts != nil:
			select {
			case alerts <- *msg.Alert:
			case <-ctx.Done():
				return true, ctx.Err()
			}
		case msg.Type == dashboard.TypeSnapshot && msg.Summary != nil && snapshots != nil:
			select {
			case snapshots <- *msg.Summary:
			case <-ctx.Done():
				return true, ctx.Err()
			}
		}
	}
}
