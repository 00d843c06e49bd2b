// Package protocol defines the JSON frames exchanged over an observer
// websocket and the decoder that turns raw client bytes into typed values.
// Every frame carries a "type" tag; everything else is tag-specific.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/votewatch/realtime/internal/models"
)

type FrameKind string

// Frames accepted from clients.
const (
	KindRegister      FrameKind = "register"
	KindHeartbeat     FrameKind = "heartbeat"
	KindMessage       FrameKind = "message"
	KindMarkRead      FrameKind = "mark-read"
	KindCallOffer     FrameKind = "call-offer"
	KindCallAnswer    FrameKind = "call-answer"
	KindCallCandidate FrameKind = "call-candidate"
	KindCallEnd       FrameKind = "call-end"
)

// Frames pushed to clients. KindMessage and the four call kinds travel in
// both directions.
const (
	KindMessageRead        FrameKind = "message-read"
	KindUsers              FrameKind = "users"
	KindConnectionReplaced FrameKind = "connection-replaced"
)

// UserID decodes from either a JSON number or a numeric string; deployed
// observer clients are not consistent about which one they send.
type UserID int64

func (u *UserID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*u = UserID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("user id must be a number or numeric string, got %s", data)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q is not numeric", s)
	}
	*u = UserID(n)
	return nil
}

// Frame is one decoded client frame. Switch on the concrete type to
// dispatch; the set of implementations is closed.
type Frame interface {
	Kind() FrameKind
}

type Register struct {
	UserID int64
}

func (*Register) Kind() FrameKind { return KindRegister }

type Heartbeat struct {
	UserID int64
}

func (*Heartbeat) Kind() FrameKind { return KindHeartbeat }

// MessageSend is a request to persist and relay one direct message.
// MessageKind is the raw "type" value from the body; empty means the
// sender left it out.
type MessageSend struct {
	SenderID    int64
	ReceiverID  int64
	Content     string
	MessageKind string
}

func (*MessageSend) Kind() FrameKind { return KindMessage }

type MarkRead struct {
	MessageIDs []int64
}

func (*MarkRead) Kind() FrameKind { return KindMarkRead }

// Signal is one of the four call-* frames. The relay only routes on the
// party ids; Raw keeps the original bytes so the counterpart receives the
// envelope untouched.
type Signal struct {
	SignalKind FrameKind
	CallerID   int64
	ReceiverID int64
	Raw        []byte
}

func (s *Signal) Kind() FrameKind { return s.SignalKind }

// MessageEcho carries a persisted message to its receiver and back to its
// sender.
type MessageEcho struct {
	Type    FrameKind           `json:"type"`
	Message *models.ChatMessage `json:"message"`
}

func NewMessageEcho(msg *models.ChatMessage) MessageEcho {
	return MessageEcho{Type: KindMessage, Message: msg}
}

// ReadNotice tells a sender that the receiver has read one of their
// messages.
type ReadNotice struct {
	Type      FrameKind `json:"type"`
	MessageID int64     `json:"messageId"`
	ReadBy    int64     `json:"readBy"`
}

func NewReadNotice(messageID, readBy int64) ReadNotice {
	return ReadNotice{Type: KindMessageRead, MessageID: messageID, ReadBy: readBy}
}

// Roster is the full presence state broadcast to every connected client.
type Roster struct {
	Type  FrameKind              `json:"type"`
	Users []models.PresenceEntry `json:"users"`
}

func NewRoster(users []models.PresenceEntry) Roster {
	return Roster{Type: KindUsers, Users: users}
}

// Replaced is sent to a connection just before a newer registration for
// the same user supersedes it.
type Replaced struct {
	Type    FrameKind `json:"type"`
	Message string    `json:"message"`
}

func NewReplaced() Replaced {
	return Replaced{Type: KindConnectionReplaced, Message: "signed in from another device"}
}
