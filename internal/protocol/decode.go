package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind reports a frame whose "type" tag is missing or not
	// one of the client kinds.
	ErrUnknownKind = errors.New("unknown frame type")

	// ErrBadIdentity reports a register frame whose user id is missing,
	// non-numeric or out of range. Connections producing it are closed
	// rather than kept.
	ErrBadIdentity = errors.New("invalid user identity")
)

type envelope struct {
	Type FrameKind `json:"type"`
}

// Decode parses one client frame. It validates shape only; business rules
// such as self-send live with the consumers of the returned value.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case KindRegister:
		var p struct {
			UserID *UserID `json:"userId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadIdentity, err)
		}
		if p.UserID == nil {
			return nil, fmt.Errorf("%w: missing userId", ErrBadIdentity)
		}
		if *p.UserID <= 0 {
			return nil, fmt.Errorf("%w: userId %d out of range", ErrBadIdentity, *p.UserID)
		}
		return &Register{UserID: int64(*p.UserID)}, nil

	case KindHeartbeat:
		var p struct {
			UserID *UserID `json:"userId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("heartbeat frame: %w", err)
		}
		if p.UserID == nil {
			return nil, errors.New("heartbeat frame: missing userId")
		}
		return &Heartbeat{UserID: int64(*p.UserID)}, nil

	case KindMessage:
		var p struct {
			Message *struct {
				SenderID   *UserID `json:"senderId"`
				ReceiverID *UserID `json:"receiverId"`
				Content    string  `json:"content"`
				Kind       string  `json:"type"`
			} `json:"message"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("message frame: %w", err)
		}
		if p.Message == nil {
			return nil, errors.New("message frame: missing message body")
		}
		if p.Message.SenderID == nil || p.Message.ReceiverID == nil {
			return nil, errors.New("message frame: missing senderId or receiverId")
		}
		return &MessageSend{
			SenderID:    int64(*p.Message.SenderID),
			ReceiverID:  int64(*p.Message.ReceiverID),
			Content:     p.Message.Content,
			MessageKind: p.Message.Kind,
		}, nil

	case KindMarkRead:
		var p struct {
			MessageIDs []int64 `json:"messageIds"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("mark-read frame: %w", err)
		}
		return &MarkRead{MessageIDs: p.MessageIDs}, nil

	case KindCallOffer, KindCallAnswer, KindCallCandidate, KindCallEnd:
		var p struct {
			CallerID   *UserID `json:"callerId"`
			ReceiverID *UserID `json:"receiverId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%s frame: %w", env.Type, err)
		}
		if p.CallerID == nil || p.ReceiverID == nil {
			return nil, fmt.Errorf("%s frame: missing callerId or receiverId", env.Type)
		}
		return &Signal{
			SignalKind: env.Type,
			CallerID:   int64(*p.CallerID),
			ReceiverID: int64(*p.ReceiverID),
			Raw:        data,
		}, nil
	}

	return nil, fmt.Errorf("%w %q", ErrUnknownKind, string(env.Type))
}
