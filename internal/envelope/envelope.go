// Package envelope encodes and decodes the JSON envelopes exchanged with the
// transport worker and, inside them, with the chat server.
//
// Two layers exist:
//
//	transport: {"type":"initWS|message|open|close|error","value":...}
//	server:    {"type":<EventKind>,"data":...}
//
// The transport layer frames every line passed between the engine and the
// transport goroutine. The server layer is carried as a string inside a
// transport "message" line.
package envelope

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/chatlink/client/internal/errors"
)

// Transport envelope types.
const (
	TypeInitWS  = "initWS"  // engine -> transport: open a channel, value is token or null
	TypeMessage = "message" // both directions: application payload
	TypeOpen    = "open"    // transport -> engine: channel ready
	TypeClose   = "close"   // transport -> engine: channel closed
	TypeError   = "error"   // transport -> engine: channel failed
)

// Control is one transport-level envelope.
type Control struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

var nullValue = json.RawMessage("null")

// EncodeInit builds the initWS envelope. An absent token is sent as null.
func EncodeInit(token string, ok bool) string {
	value := nullValue
	if ok {
		b, _ := json.Marshal(token)
		value = b
	}
	return encodeControl(Control{Type: TypeInitWS, Value: value})
}

// EncodeMessage wraps an application value for transmission.
// Values that are already raw JSON are embedded verbatim.
func EncodeMessage(v any) (string, error) {
	var value json.RawMessage
	switch m := v.(type) {
	case json.RawMessage:
		if !json.Valid(m) {
			return "", apperrors.New(apperrors.CodeChannelEncodeFail, "outbound message is not valid JSON")
		}
		value = m
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", apperrors.Wrap(apperrors.CodeChannelEncodeFail, "encode outbound message", err)
		}
		value = b
	}
	return encodeControl(Control{Type: TypeMessage, Value: value}), nil
}

// EncodeSignal builds a value-less lifecycle envelope (open, close, error).
func EncodeSignal(kind string) string {
	return encodeControl(Control{Type: kind})
}

// EncodeData builds the transport -> engine envelope carrying one raw frame.
func EncodeData(raw string) string {
	b, _ := json.Marshal(raw)
	return encodeControl(Control{Type: TypeMessage, Value: b})
}

func encodeControl(c Control) string {
	// Control holds only a string and pre-validated raw JSON.
	b, _ := json.Marshal(c)
	return string(b)
}

// DecodeControl parses one transport-level line.
func DecodeControl(line string) (Control, error) {
	var c Control
	if err := json.Unmarshal([]byte(line), &c); err != nil {
		return Control{}, apperrors.InvalidEnvelope(err)
	}
	if c.Type == "" {
		return Control{}, apperrors.InvalidEnvelope(fmt.Errorf("missing type"))
	}
	return c, nil
}

// Token interprets an initWS value. A null or missing value means no token.
func (c Control) Token() (string, bool, error) {
	if len(c.Value) == 0 || string(c.Value) == "null" {
		return "", false, nil
	}
	var token string
	if err := json.Unmarshal(c.Value, &token); err != nil {
		return "", false, apperrors.InvalidEnvelope(fmt.Errorf("initWS value: %w", err))
	}
	return token, token != "", nil
}

// Text interprets a transport -> engine message value, which is a JSON string
// holding the raw server frame.
func (c Control) Text() (string, error) {
	var s string
	if err := json.Unmarshal(c.Value, &s); err != nil {
		return "", apperrors.InvalidEnvelope(fmt.Errorf("message value: %w", err))
	}
	return s, nil
}
