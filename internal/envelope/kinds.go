package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "github.com/chatlink/client/internal/errors"
)

// EventKind classifies a server -> client message.
type EventKind int

// Server message kinds. The numeric values are the wire codes.
const (
	KindLoginQrCode      EventKind = 1
	KindWaitingAuthorize EventKind = 2
	KindLoginSuccess     EventKind = 3
	KindReceiveMessage   EventKind = 4
	KindOnOffLine        EventKind = 5
	KindTokenExpired     EventKind = 6
	KindInValidUser      EventKind = 7
	KindWSMsgMarkItem    EventKind = 8
	KindWSMsgRecall      EventKind = 9
	KindRequestNewFriend EventKind = 10
	KindNewFriendSession EventKind = 11
	KindLoginError       EventKind = 1000
)

var kindNames = map[EventKind]string{
	KindLoginQrCode:      "LoginQrCode",
	KindWaitingAuthorize: "WaitingAuthorize",
	KindLoginSuccess:     "LoginSuccess",
	KindReceiveMessage:   "ReceiveMessage",
	KindOnOffLine:        "OnOffLine",
	KindTokenExpired:     "TokenExpired",
	KindInValidUser:      "InValidUser",
	KindWSMsgMarkItem:    "WSMsgMarkItem",
	KindWSMsgRecall:      "WSMsgRecall",
	KindRequestNewFriend: "RequestNewFriend",
	KindNewFriendSession: "NewFriendSession",
	KindLoginError:       "LoginError",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "EventKind(" + strconv.Itoa(int(k)) + ")"
}

// Known reports whether k is one of the enumerated kinds.
func (k EventKind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// Kinds returns every enumerated kind in wire-code order.
func Kinds() []EventKind {
	return []EventKind{
		KindLoginQrCode, KindWaitingAuthorize, KindLoginSuccess, KindReceiveMessage,
		KindOnOffLine, KindTokenExpired, KindInValidUser, KindWSMsgMarkItem,
		KindWSMsgRecall, KindRequestNewFriend, KindNewFriendSession, KindLoginError,
	}
}

// Inbound is a decoded server envelope. Data is left raw for the dispatcher.
type Inbound struct {
	Type EventKind
	Data json.RawMessage
	Msg  string // only set by the server's bare error form
}

type inboundWire struct {
	Type *EventKind      `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Code *int            `json:"code,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

// DecodeInbound parses a raw server frame.
//
// Password-login failures arrive as {"code":1000,"msg":"..."} with no type;
// those decode as KindLoginError with Msg set.
func DecodeInbound(raw string) (Inbound, error) {
	var w inboundWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Inbound{}, apperrors.InvalidEnvelope(err)
	}
	if w.Type == nil {
		if w.Code != nil && EventKind(*w.Code) == KindLoginError {
			return Inbound{Type: KindLoginError, Data: w.Data, Msg: w.Msg}, nil
		}
		return Inbound{}, apperrors.InvalidEnvelope(fmt.Errorf("missing type"))
	}
	return Inbound{Type: *w.Type, Data: w.Data, Msg: w.Msg}, nil
}

// EncodeInbound builds a server frame. Used by the development server and tests.
func EncodeInbound(kind EventKind, data any) (string, error) {
	w := inboundWire{Type: &kind}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return "", err
		}
		w.Data = b
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RequestKind classifies a client -> server request.
type RequestKind int

const (
	RequestLoginQrCode   RequestKind = 1
	RequestHeartbeat     RequestKind = 2
	RequestAuthorize     RequestKind = 3
	RequestPasswordLogin RequestKind = 4
)

// Request is the application-level outbound message.
type Request struct {
	Type RequestKind `json:"type"`
	Data any         `json:"data,omitempty"`
}

// PasswordLoginData is the payload of RequestPasswordLogin.
type PasswordLoginData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChatMessageRequest is the outbound chat frame. Body is the type-specific
// content, e.g. {"content":"..."} for text.
type ChatMessageRequest struct {
	RoomID  int64           `json:"roomId"`
	MsgType int             `json:"msgType"`
	Body    json.RawMessage `json:"body"`
}

// HeartbeatFrame is the raw heartbeat frame written by the transport.
const HeartbeatFrame = `{"type":2}`
