package models

import "time"

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageFile   MessageKind = "file"
	MessageImage  MessageKind = "image"
	MessageSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageFile, MessageImage, MessageSystem:
		return true
	}
	return false
}

type ChatMessage struct {
	ID         int64       `json:"id"`
	SenderID   int64       `json:"senderId"`
	ReceiverID int64       `json:"receiverId"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"type"`
	Read       bool        `json:"read"`
	SentAt     time.Time   `json:"sentAt"`
}
