// Package dispatch classifies inbound server frames into typed events and
// applies each event's effect to the client's collaborators.
//
// The event set is closed. Every kind has a concrete type and a method on
// Handler, so a new kind cannot be added without a handler for it.
package dispatch

import (
	"encoding/json"

	"github.com/chatlink/client/internal/envelope"
	apperrors "github.com/chatlink/client/internal/errors"
	"github.com/chatlink/client/internal/state"
)

// Event is one decoded server message.
type Event interface {
	Kind() envelope.EventKind
	apply(h Handler) error
}

// Handler receives exactly one call per applied event.
type Handler interface {
	OnLoginQrCode(LoginQrCode) error
	OnWaitingAuthorize(WaitingAuthorize) error
	OnLoginSuccess(LoginSuccess) error
	OnLoginError(LoginError) error
	OnReceiveMessage(ReceiveMessage) error
	OnOnOffLine(OnOffLine) error
	OnTokenExpired(TokenExpired) error
	OnInValidUser(InValidUser) error
	OnMarkItem(MarkItem) error
	OnRecall(Recall) error
	OnRequestNewFriend(RequestNewFriend) error
	OnNewFriendSession(NewFriendSession) error
	OnUnknown(Unknown) error
}

// Apply routes ev to the matching Handler method.
func Apply(ev Event, h Handler) error {
	return ev.apply(h)
}

// LoginQrCode carries a fresh login challenge.
type LoginQrCode struct {
	LoginURL string `json:"loginUrl"`
}

// WaitingAuthorize reports the challenge was scanned and awaits confirmation.
type WaitingAuthorize struct{}

// LoginSuccess carries the new credential and the user's profile.
type LoginSuccess struct {
	Token  string `json:"token"`
	UID    int64  `json:"uid"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Power  int    `json:"power"`
}

// Profile returns the identity fields of the event.
func (e LoginSuccess) Profile() state.Profile {
	return state.Profile{UID: e.UID, Name: e.Name, Avatar: e.Avatar, Power: e.Power}
}

// LoginError reports a rejected login attempt.
type LoginError struct {
	Msg string `json:"msg"`
}

// ReceiveMessage is a new chat message.
type ReceiveMessage struct {
	state.ChatMessage
}

// OnOffLine reports presence changes.
type OnOffLine struct {
	OnlineNum  int            `json:"onlineNum"`
	ChangeList []state.Member `json:"changeList"`
}

// TokenExpired reports the credential is no longer valid.
type TokenExpired struct{}

// InValidUser reports a user was banned.
type InValidUser struct {
	UID int64 `json:"uid"`
}

// MarkItem reports reaction counter changes.
type MarkItem struct {
	MarkList []state.MarkItem `json:"markList"`
}

// Recall reports a withdrawn message.
type Recall struct {
	state.Recall
}

// RequestNewFriend reports incoming friend requests.
type RequestNewFriend struct {
	UID         int64 `json:"uid"`
	UnreadCount int   `json:"unreadCount"`
}

// NewFriendSession reports a group membership change.
type NewFriendSession struct {
	RoomID       int64              `json:"roomId"`
	UID          int64              `json:"uid"`
	ChangeType   state.ChangeType   `json:"changeType"`
	ActiveStatus state.ActiveStatus `json:"activeStatus"`
	LastOptTime  int64              `json:"lastOptTime"`
}

// Unknown is a well-formed frame with an unrecognized kind.
type Unknown struct {
	Type envelope.EventKind
	Data json.RawMessage
}

func (LoginQrCode) Kind() envelope.EventKind      { return envelope.KindLoginQrCode }
func (WaitingAuthorize) Kind() envelope.EventKind { return envelope.KindWaitingAuthorize }
func (LoginSuccess) Kind() envelope.EventKind     { return envelope.KindLoginSuccess }
func (LoginError) Kind() envelope.EventKind       { return envelope.KindLoginError }
func (ReceiveMessage) Kind() envelope.EventKind   { return envelope.KindReceiveMessage }
func (OnOffLine) Kind() envelope.EventKind        { return envelope.KindOnOffLine }
func (TokenExpired) Kind() envelope.EventKind     { return envelope.KindTokenExpired }
func (InValidUser) Kind() envelope.EventKind      { return envelope.KindInValidUser }
func (MarkItem) Kind() envelope.EventKind         { return envelope.KindWSMsgMarkItem }
func (Recall) Kind() envelope.EventKind           { return envelope.KindWSMsgRecall }
func (RequestNewFriend) Kind() envelope.EventKind { return envelope.KindRequestNewFriend }
func (NewFriendSession) Kind() envelope.EventKind { return envelope.KindNewFriendSession }
func (e Unknown) Kind() envelope.EventKind        { return e.Type }

func (e LoginQrCode) apply(h Handler) error      { return h.OnLoginQrCode(e) }
func (e WaitingAuthorize) apply(h Handler) error { return h.OnWaitingAuthorize(e) }
func (e LoginSuccess) apply(h Handler) error     { return h.OnLoginSuccess(e) }
func (e LoginError) apply(h Handler) error       { return h.OnLoginError(e) }
func (e ReceiveMessage) apply(h Handler) error   { return h.OnReceiveMessage(e) }
func (e OnOffLine) apply(h Handler) error        { return h.OnOnOffLine(e) }
func (e TokenExpired) apply(h Handler) error     { return h.OnTokenExpired(e) }
func (e InValidUser) apply(h Handler) error      { return h.OnInValidUser(e) }
func (e MarkItem) apply(h Handler) error         { return h.OnMarkItem(e) }
func (e Recall) apply(h Handler) error           { return h.OnRecall(e) }
func (e RequestNewFriend) apply(h Handler) error { return h.OnRequestNewFriend(e) }
func (e NewFriendSession) apply(h Handler) error { return h.OnNewFriendSession(e) }
func (e Unknown) apply(h Handler) error          { return h.OnUnknown(e) }

// Decode parses a raw server frame into a typed event.
// Malformed frames return a decode.* coded error. Frames of an unrecognized
// kind decode to Unknown without error.
func Decode(raw string) (Event, error) {
	in, err := envelope.DecodeInbound(raw)
	if err != nil {
		return nil, err
	}

	switch in.Type {
	case envelope.KindLoginQrCode:
		return decodeAs[LoginQrCode](in)
	case envelope.KindWaitingAuthorize:
		return WaitingAuthorize{}, nil
	case envelope.KindLoginSuccess:
		return decodeAs[LoginSuccess](in)
	case envelope.KindLoginError:
		var e LoginError
		if err := decodeData(in, &e); err != nil {
			return nil, err
		}
		if e.Msg == "" {
			e.Msg = in.Msg
		}
		return e, nil
	case envelope.KindReceiveMessage:
		return decodeAs[ReceiveMessage](in)
	case envelope.KindOnOffLine:
		return decodeAs[OnOffLine](in)
	case envelope.KindTokenExpired:
		return TokenExpired{}, nil
	case envelope.KindInValidUser:
		return decodeAs[InValidUser](in)
	case envelope.KindWSMsgMarkItem:
		return decodeAs[MarkItem](in)
	case envelope.KindWSMsgRecall:
		return decodeAs[Recall](in)
	case envelope.KindRequestNewFriend:
		return decodeAs[RequestNewFriend](in)
	case envelope.KindNewFriendSession:
		return decodeAs[NewFriendSession](in)
	default:
		return Unknown{Type: in.Type, Data: in.Data}, nil
	}
}

func decodeAs[T Event](in envelope.Inbound) (Event, error) {
	var e T
	if err := decodeData(in, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// decodeData unmarshals the payload into v. An absent payload leaves v zero.
func decodeData(in envelope.Inbound, v any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return apperrors.InvalidPayload(in.Type.String(), err)
	}
	return nil
}

// Encode builds the server frame for ev. Kinds without a payload carry no
// data.
func Encode(ev Event) (string, error) {
	switch e := ev.(type) {
	case WaitingAuthorize, TokenExpired:
		return envelope.EncodeInbound(ev.Kind(), nil)
	case Unknown:
		if len(e.Data) == 0 {
			return envelope.EncodeInbound(e.Type, nil)
		}
		return envelope.EncodeInbound(e.Type, e.Data)
	}
	return envelope.EncodeInbound(ev.Kind(), ev)
}
