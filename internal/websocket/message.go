package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	// Server to Client
	MessageTypeConnected   MessageType = "CONNECTED"
	MessageTypePostCreated MessageType = "POST_CREATED"
	MessageTypePostDeleted MessageType = "POST_DELETED"
	MessageTypeError       MessageType = "ERROR"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	EventID   string          `json:"eventId,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

type ConnectedPayload struct {
	UserID string `json:"userId"`
}

const ErrorCodeReadOnly = "READ_ONLY"

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
