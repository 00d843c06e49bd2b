// Package hub implements the realtime core of the relay: the connection
// registry, presence bookkeeping, the liveness sweep, message relay, call
// signaling and roster broadcasts.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/votewatch/realtime/internal/models"
	"github.com/votewatch/realtime/internal/observability"
	"github.com/votewatch/realtime/internal/protocol"
	"github.com/votewatch/realtime/internal/repositories"
)

// Frame drop reasons recorded in metrics.
const (
	dropMalformed    = "malformed"
	dropUnregistered = "unregistered"
	dropRejected     = "rejected"
)

type Options struct {
	Messages       repositories.MessageRepository
	Users          repositories.UserRepository
	PingInterval   time.Duration
	AwayWindow     time.Duration
	RosterInterval time.Duration
	Logger         *slog.Logger
	Metrics        *observability.Metrics
}

// Hub wires the registry, relays and broadcasters together and fronts
// them with the narrow API the rest of the process uses.
type Hub struct {
	registry *Registry
	relay    *MessageRelay
	signals  *SignalRelay
	roster   *Roster
	monitor  *Monitor
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func New(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	registry := NewRegistry(opts.AwayWindow, logger, metrics)
	roster := NewRoster(registry, opts.Users, opts.RosterInterval, logger, metrics)
	registry.SetOnChange(roster.Kick)

	return &Hub{
		registry: registry,
		relay:    NewMessageRelay(opts.Messages, registry, logger, metrics),
		signals:  NewSignalRelay(registry, logger, metrics),
		roster:   roster,
		monitor:  NewMonitor(registry, opts.PingInterval, roster.Kick, logger),
		logger:   logger,
		metrics:  metrics,
	}
}

// Run drives the background loops until ctx is done, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		h.roster.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	h.registry.CloseAll()
}

// NewConn wraps an upgraded websocket in a connection bound to this hub.
// The caller runs it with Run.
func (h *Hub) NewConn(ws *websocket.Conn) *Conn {
	return newConn(h, ws)
}

// HandleFrame processes one frame off a connection's read loop. Decode
// and business failures cost the frame; only identity failures cost the
// connection.
func (h *Hub) HandleFrame(link Link, raw []byte) {
	frame, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrBadIdentity) {
			h.logger.Warn("closing connection over bad identity", "connId", link.ID(), "error", err)
			link.Close()
			return
		}
		h.metrics.FrameDropped(dropMalformed)
		h.logger.Warn("dropping malformed frame", "connId", link.ID(), "error", err)
		return
	}

	h.metrics.FrameReceived(string(frame.Kind()))

	if reg, ok := frame.(*protocol.Register); ok {
		link.BindUser(reg.UserID)
		h.registry.Register(reg.UserID, link)
		return
	}

	userID := link.UserID()
	if userID == 0 {
		h.metrics.FrameDropped(dropUnregistered)
		h.logger.Warn("dropping frame from unregistered connection", "connId", link.ID(), "kind", frame.Kind())
		return
	}

	// Any frame from a registered user is activity, recorded before the
	// frame itself is acted on
	h.registry.Touch(userID)

	switch f := frame.(type) {
	case *protocol.Heartbeat:
		h.registry.MarkAlive(link)

	case *protocol.MessageSend:
		// Store calls outlive the connection; a disconnect mid-flight
		// must not cancel them
		if _, err := h.relay.Send(context.Background(), f.SenderID, f.ReceiverID, f.Content, models.MessageKind(f.MessageKind)); err != nil {
			h.metrics.FrameDropped(dropRejected)
			h.logger.Warn("message rejected", "connId", link.ID(), "senderId", f.SenderID, "error", err)
		}

	case *protocol.MarkRead:
		h.relay.MarkRead(context.Background(), userID, f.MessageIDs)

	case *protocol.Signal:
		h.signals.Forward(userID, f)
	}
}

// HandlePong is wired into each connection's pong handler.
func (h *Hub) HandlePong(link Link) {
	h.registry.MarkAlive(link)
}

// Detach is called by a connection whose read loop has ended.
func (h *Hub) Detach(link Link) {
	h.registry.Unregister(link)
}

// SendToUser pushes an arbitrary payload to one user's connection,
// reporting whether anyone was there to take it.
func (h *Hub) SendToUser(userID int64, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encode payload for user", "userId", userID, "error", err)
		return false
	}
	return h.registry.Push(userID, data)
}

// ActiveUsers lists user ids with a live connection, ascending.
func (h *Hub) ActiveUsers() []int64 {
	return h.registry.ActiveUsers()
}

// UserStatus reports online, away or offline for one user.
func (h *Hub) UserStatus(userID int64) models.PresenceStatus {
	return h.registry.Status(userID)
}

// PresenceSnapshot returns presence for every user the relay knows about.
func (h *Hub) PresenceSnapshot() []PresenceState {
	return h.registry.PresenceSnapshot()
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}
