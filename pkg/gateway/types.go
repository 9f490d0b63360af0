package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types sent to websocket clients.
const (
	frameEvent  = "event"
	frameResult = "result"
	frameError  = "error"
)

// Event names carried by event frames.
const (
	eventRoute = "route"
	eventStep  = "step"
	eventFinal = "final"
)

// StreamMessage is one websocket frame sent to clients.
type StreamMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Seq       int64       `json:"seq,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// QueryRequest is the body of POST /v1/query and the inbound websocket
// query frame.
type QueryRequest struct {
	Type       string `json:"type,omitempty"`
	SessionKey string `json:"session_key,omitempty"`
	Query      string `json:"query"`
}

// Client is one connected websocket consumer. Writes are serialized
// through WriteJSON; gorilla connections allow a single writer only.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string

	writeMu sync.Mutex
}

// WriteJSON sends one frame to the client.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}
