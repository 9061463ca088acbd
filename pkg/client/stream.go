package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/organica-ai/nishub/pkg/types"
)

// EventStream is a live subscription to the hub's event feed. Events
// arrives in published order; when the channel closes, Err explains why.
type EventStream struct {
	events     chan *types.Event
	conn       *websocket.Conn
	readerDone chan struct{}

	mutex sync.Mutex
	err   error
}

// Events returns the delivery channel. It closes when the subscription
// ends.
func (s *EventStream) Events() <-chan *types.Event {
	return s.events
}

// Err returns the terminal error after Events closes. A lag disconnect
// surfaces as SUBSCRIBER_LAGGING: the client missed events and must
// resync the roster via ListNodes before resubscribing.
func (s *EventStream) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// Close tears the subscription down.
func (s *EventStream) Close() error {
	return s.conn.Close()
}

func (s *EventStream) setErr(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// wsURL converts the client base URL to the WebSocket endpoint
func (c *Client) wsURL() string {
	base := c.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// SubscribeEvents opens the event stream. Delivery starts at the next
// event published after the connection; there is no history replay.
func (c *Client) SubscribeEvents(ctx context.Context) (*EventStream, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	stream := &EventStream{
		events:     make(chan *types.Event, 64),
		conn:       conn,
		readerDone: make(chan struct{}),
	}

	// The watchdog must also exit when the stream ends on its own,
	// otherwise a Close under a non-cancellable context leaks it.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stream.readerDone:
		}
	}()

	go func() {
		defer close(stream.readerDone)
		defer close(stream.events)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				stream.setErr(translateCloseError(ctx, err))
				return
			}

			var event types.Event
			if err := json.Unmarshal(data, &event); err != nil {
				stream.setErr(types.ErrDeserialization("json", err))
				return
			}

			select {
			case stream.events <- &event:
			case <-ctx.Done():
				stream.setErr(ctx.Err())
				return
			}
		}
	}()

	return stream, nil
}

func translateCloseError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text == "lagging" || closeErr.Code == websocket.ClosePolicyViolation {
			return types.NewHubError(types.ErrCodeSubscriberLagging,
				"event stream dropped for lagging; resync via ListNodes and resubscribe")
		}
	}
	return err
}
