// Package hub fans status and log messages out to websocket clients
// with one writer goroutine per connection.
package hub

// MessageType indicates the websocket frame type
type MessageType int

const (
	// JSONMessage is sent as a text frame
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame
	BinaryMessage
)

// Message is one frame queued for every client
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
