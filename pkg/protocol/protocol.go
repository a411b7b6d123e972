// Package protocol defines the websocket event envelope and framing limits.
package protocol

import (
	"fmt"

	"github.com/gorilla/websocket"
)

const (
	// MaxEventSize is the maximum inbound event size in bytes.
	MaxEventSize = 65536
)

// WriteEvent writes a single JSON event to the websocket connection.
func WriteEvent(conn *websocket.Conn, ev *Event) error {
	if err := conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("protocol: write event: %w", err)
	}
	return nil
}

// ReadEvent reads a single JSON event from the websocket connection.
func ReadEvent(conn *websocket.Conn) (*Event, error) {
	ev := &Event{}
	if err := conn.ReadJSON(ev); err != nil {
		return nil, fmt.Errorf("protocol: read event: %w", err)
	}
	return ev, nil
}
