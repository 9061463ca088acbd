package api

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/organica-ai/nishub/pkg/hub"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// handleWebSocket streams hub events to one connection. Each connection
// is exactly one hub subscriber: connecting starts the stream at the
// next published event, there is no history replay.
func (s *Server) handleWebSocket(conn *websocket.Conn) {
	sub := s.hub.Subscribe()

	defer func() {
		s.hub.Unsubscribe(sub)
		conn.Close()
	}()

	go s.writeLoop(conn, sub)

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// Inbound traffic is keepalive only; a frame that is not valid JSON
	// terminates the connection.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]interface{}
		if err := s.json.Unmarshal(data, &frame); err != nil {
			closeMsg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "malformed frame")
			conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(wsWriteWait))
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-sub.C():
			data, err := s.json.Marshal(event)
			if err != nil {
				log.Printf("[api] websocket encode failed: %v", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}

		case <-sub.Done():
			// The close reason tells lagging clients to resync via the
			// node list before reconnecting.
			code := websocket.CloseGoingAway
			if sub.Reason() == hub.ReasonLagging {
				code = websocket.ClosePolicyViolation
			}
			closeMsg := websocket.FormatCloseMessage(code, sub.Reason())
			conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(wsWriteWait))
			conn.Close()
			return
		}
	}
}
