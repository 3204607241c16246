package ws

import "encoding/json"

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgLoadProgress    MessageType = "load_progress"
	MsgLoadFinished    MessageType = "load_finished"
	MsgValidationCheck MessageType = "validation_check"
	MsgError           MessageType = "error"
	MsgSync            MessageType = "sync"
	MsgStatus          MessageType = "status"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes a message with the given type and payload.
func NewMessage(typ MessageType, payload any) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: typ, Payload: p})
}
