// Package transport contains thin wire adapters that expose a consumer's
// delivery stream over a push transport. Adapters consume only the public
// stream surface; the core never depends on them.
package transport

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/yaoapp/pulse/stream"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame is the wire form of one delivery.
type Frame struct {
	Topic   string `json:"topic"`
	Sender  string `json:"sender"`
	Payload any    `json:"payload"`
}

// Encode marshals one delivery as a JSON frame.
func Encode(d stream.Delivery) ([]byte, error) {
	return json.Marshal(Frame{Topic: d.Topic, Sender: d.Sender, Payload: d.Payload})
}

// Decode unmarshals a JSON frame. Used by clients and tests.
func Decode(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// Patterns splits a comma-separated pattern list from a query parameter,
// dropping empty entries. def is used when the list is empty.
func Patterns(raw string, def ...string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
