// Package sse exposes a consumer's delivery stream as server-sent events.
package sse

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/pulse/stream"
	"github.com/yaoapp/pulse/transport"
)

// Handler returns a gin handler that connects a consumer for the request's
// topic selection and streams matching deliveries as SSE "message" events
// until the client goes away.
//
// Query parameters:
//
//	topics - comma-separated topic patterns, default "*"
//	muted  - comma-separated mute patterns
//	id     - consumer identity, generated when absent
func Handler(hub *stream.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		consumer, err := stream.NewConsumer(hub,
			stream.WithID(c.Query("id")),
			stream.WithTopics(transport.Patterns(c.Query("topics"), stream.AllTopics)...),
			stream.WithMuted(transport.Patterns(c.Query("muted"))...),
		)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		_ = consumer.Scope(func(consumer *stream.Consumer) error {
			c.Stream(func(w io.Writer) bool {
				d, ok := consumer.Next(c.Request.Context())
				if !ok {
					return false
				}
				data, err := transport.Encode(d)
				if err != nil {
					log.Error("sse encode failed: topic=%s err=%v", d.Topic, err)
					return true
				}
				c.SSEvent("message", string(data))
				return true
			})
			return nil
		})
	}
}
