// Package state holds the client-side application state that inbound events
// mutate: login progress, chat history, the group roster, global counters and
// the current route.
//
// Every store is safe for concurrent use. The engine's consumer loop is the
// only writer; the CLI reads from its own goroutine.
package state

import (
	"encoding/json"
)

// LoginStatus tracks the login flow.
type LoginStatus int

const (
	LoginInit LoginStatus = iota
	LoginWaiting
	LoginSuccess
)

func (s LoginStatus) String() string {
	switch s {
	case LoginWaiting:
		return "waiting"
	case LoginSuccess:
		return "success"
	default:
		return "init"
	}
}

// Profile is the signed-in user's identity. Every field is optional; a
// partial profile is merged field-wise into the existing one.
type Profile struct {
	UID    int64  `json:"uid,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Power  int    `json:"power,omitempty"`
}

// Merge returns p overlaid with the non-zero fields of other.
func (p Profile) Merge(other Profile) Profile {
	if other.UID != 0 {
		p.UID = other.UID
	}
	if other.Name != "" {
		p.Name = other.Name
	}
	if other.Avatar != "" {
		p.Avatar = other.Avatar
	}
	if other.Power != 0 {
		p.Power = other.Power
	}
	return p
}

// IsZero reports whether no field is set.
func (p Profile) IsZero() bool {
	return p == Profile{}
}

// RoomType distinguishes group rooms from one-to-one rooms.
type RoomType int

const (
	RoomGroup  RoomType = 1
	RoomFriend RoomType = 2
)

// Room identifies the conversation the user is looking at.
type Room struct {
	ID   int64    `json:"roomId"`
	Type RoomType `json:"type"`
}

// ActiveStatus is a member's presence.
type ActiveStatus int

const (
	Online  ActiveStatus = 1
	Offline ActiveStatus = 2
)

func (s ActiveStatus) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// ChangeType is a group membership change.
type ChangeType int

const (
	MemberAdded   ChangeType = 1
	MemberRemoved ChangeType = 2
)

// Member is one roster entry.
type Member struct {
	UID          int64        `json:"uid"`
	Name         string       `json:"name,omitempty"`
	Avatar       string       `json:"avatar,omitempty"`
	ActiveStatus ActiveStatus `json:"activeStatus"`
	LastOptTime  int64        `json:"lastOptTime,omitempty"`
}

// Message types carried in MessageBody.Type.
const (
	MsgText   = 1
	MsgRecall = 2
)

// MessageMark holds reaction counters.
type MessageMark struct {
	LikeCount    int `json:"likeCount"`
	DislikeCount int `json:"dislikeCount"`
}

// MessageBody is the message proper.
type MessageBody struct {
	ID          int64           `json:"id"`
	RoomID      int64           `json:"roomId"`
	SendTime    int64           `json:"sendTime,omitempty"`
	Type        int             `json:"type"`
	Body        json.RawMessage `json:"body,omitempty"`
	MessageMark MessageMark     `json:"messageMark"`
}

// Sender identifies a message author.
type Sender struct {
	UID int64 `json:"uid"`
}

// ChatMessage is one entry in the message history.
type ChatMessage struct {
	FromUser Sender      `json:"fromUser"`
	Message  MessageBody `json:"message"`
}

// Text returns the textual content of a text message, or "" for other types.
func (m ChatMessage) Text() string {
	if m.Message.Type != MsgText || len(m.Message.Body) == 0 {
		return ""
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(m.Message.Body, &body); err != nil {
		return ""
	}
	return body.Content
}

// Mark types and actions carried in MarkItem.
const (
	MarkLike    = 1
	MarkDislike = 2
)

// MarkItem reports a reaction counter change.
type MarkItem struct {
	UID       int64 `json:"uid"`
	MsgID     int64 `json:"msgId"`
	MarkType  int   `json:"markType"`
	MarkCount int   `json:"markCount"`
	ActType   int   `json:"actType,omitempty"`
}

// Recall reports a message withdrawn by its author or an admin.
type Recall struct {
	MsgID     int64 `json:"msgId"`
	RoomID    int64 `json:"roomId"`
	RecallUID int64 `json:"recallUid"`
}

// Route paths.
const (
	RouteLogin   = "/login"
	RouteHome    = "/"
	RouteContact = "/contact"
)
