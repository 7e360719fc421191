package commsutil

import (
	"context"
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// RequestJSON sends req as JSON on subject and decodes the reply into resp.
// The context bounds the wait for the reply.
func RequestJSON(ctx context.Context, nc *comms.Conn, subject string, req, resp interface{}) error {
	data, err := EncodePayload(req)
	if err != nil {
		return fmt.Errorf("%s - encode request for %s: %w", codecLogPrefix, subject, err)
	}
	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("%s - request %s: %w", codecLogPrefix, subject, err)
	}
	if err := DecodePayload(msg.Data, resp); err != nil {
		return fmt.Errorf("%s - decode reply from %s: %w", codecLogPrefix, subject, err)
	}
	return nil
}

// RespondJSON encodes v and responds to msg.
func RespondJSON(msg *comms.Msg, v interface{}) error {
	data, err := EncodePayload(v)
	if err != nil {
		return fmt.Errorf("%s - encode reply: %w", codecLogPrefix, err)
	}
	return msg.Respond(data)
}
