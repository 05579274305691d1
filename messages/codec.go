package messages

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Encode serializes a message for the wire
func Encode(v interface{}) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// DecodeClient parses a client envelope
func DecodeClient(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("invalid message: missing type")
	}
	return &msg, nil
}

// DecodePayload parses an envelope payload into v. An empty payload leaves v
// untouched.
func DecodePayload(msg *ClientMessage, v interface{}) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	return nil
}

// DecodeExtension parses a message from the browser extension
func DecodeExtension(data []byte) (*ExtensionResult, error) {
	var msg ExtensionResult
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid extension message: %w", err)
	}
	return &msg, nil
}
