package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/votewatch/realtime/internal/models"
	"github.com/votewatch/realtime/internal/observability"
	"github.com/votewatch/realtime/internal/protocol"
	"github.com/votewatch/realtime/internal/repositories"
)

// Rejections surfaced to the frame handler. The offending frame is
// dropped and logged; the connection stays up.
var (
	ErrSelfMessage    = errors.New("sender and receiver are the same user")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrBadMessageKind = errors.New("unsupported message type")
)

// MessageRelay persists direct messages and pushes them to both parties.
// Persistence strictly precedes relay, so any message a client has seen
// is recoverable from the store.
type MessageRelay struct {
	store    repositories.MessageRepository
	registry *Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewMessageRelay(store repositories.MessageRepository, registry *Registry, logger *slog.Logger, metrics *observability.Metrics) *MessageRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageRelay{
		store:    store,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Send validates, persists and relays one message. The returned message
// carries the store-assigned id and timestamp. A persistence failure
// means nothing is relayed; the sender finds out through history, not
// through an error frame.
func (mr *MessageRelay) Send(ctx context.Context, senderID, receiverID int64, content string, kind models.MessageKind) (*models.ChatMessage, error) {
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if kind == "" {
		kind = models.MessageText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w %q", ErrBadMessageKind, kind)
	}

	msg := &models.ChatMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Kind:       kind,
	}
	if err := mr.store.Create(ctx, msg); err != nil {
		mr.metrics.MessageStoreError()
		return nil, fmt.Errorf("persist message: %w", err)
	}

	data, err := json.Marshal(protocol.NewMessageEcho(msg))
	if err != nil {
		return nil, fmt.Errorf("encode message frame: %w", err)
	}

	// Receiver first, then the sender's echo; both best effort
	if !mr.registry.Push(receiverID, data) {
		mr.logger.Debug("receiver offline, message stored only", "messageId", msg.ID, "receiverId", receiverID)
	}
	mr.registry.Push(senderID, data)
	mr.metrics.MessageRelayed()

	return msg, nil
}

// MarkRead flips messages to read on behalf of readerID and notifies each
// affected sender. Only the receiver of a message can mark it; entries
// that are missing or belong to someone else are skipped. An
// already-read message still counts in the result but produces no second
// notification.
func (mr *MessageRelay) MarkRead(ctx context.Context, readerID int64, messageIDs []int64) []*models.ChatMessage {
	var marked []*models.ChatMessage
	for _, id := range messageIDs {
		msg, err := mr.store.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, repositories.ErrNotFound) {
				mr.logger.Warn("mark-read lookup failed", "messageId", id, "error", err)
			}
			continue
		}
		if msg.ReceiverID != readerID {
			mr.logger.Warn("mark-read for someone else's message", "messageId", id, "userId", readerID)
			continue
		}
		if msg.Read {
			marked = append(marked, msg)
			continue
		}
		if err := mr.store.MarkRead(ctx, id); err != nil {
			mr.logger.Warn("mark-read update failed", "messageId", id, "error", err)
			continue
		}
		msg.Read = true
		marked = append(marked, msg)

		notice, _ := json.Marshal(protocol.NewReadNotice(id, readerID))
		mr.registry.Push(msg.SenderID, notice)
	}
	return marked
}
