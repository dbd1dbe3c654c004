// Package ws exposes a consumer's delivery stream over a WebSocket.
package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/pulse/stream"
	"github.com/yaoapp/pulse/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler returns an http handler that upgrades the request, connects a
// consumer for the query's topic selection and pushes matching deliveries
// as JSON text messages until the client closes the socket.
//
// Query parameters match the sse package: topics, muted, id.
func Handler(hub *stream.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			return
		}
		defer conn.Close()

		q := r.URL.Query()
		consumer, err := stream.NewConsumer(hub,
			stream.WithID(q.Get("id")),
			stream.WithTopics(transport.Patterns(q.Get("topics"), stream.AllTopics)...),
			stream.WithMuted(transport.Patterns(q.Get("muted"))...),
		)
		if err != nil {
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Read pump. Clients never send data frames; reading surfaces the
		// close handshake and network errors.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		_ = consumer.Scope(func(consumer *stream.Consumer) error {
			for {
				d, ok := consumer.Next(ctx)
				if !ok {
					return nil
				}
				data, err := transport.Encode(d)
				if err != nil {
					log.Error("ws encode failed: topic=%s err=%v", d.Topic, err)
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return nil
				}
			}
		})
	}
}
