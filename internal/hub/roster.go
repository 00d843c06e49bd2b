package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/votewatch/realtime/internal/models"
	"github.com/votewatch/realtime/internal/observability"
	"github.com/votewatch/realtime/internal/protocol"
	"github.com/votewatch/realtime/internal/repositories"
)

// Roster pushes the full presence list to every connected client on a
// fixed schedule, and immediately when membership changes. Wake-ups that
// arrive while one broadcast is pending coalesce into a single run.
type Roster struct {
	registry *Registry
	users    repositories.UserRepository
	interval time.Duration
	wake     chan struct{}
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewRoster(registry *Registry, users repositories.UserRepository, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Roster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Roster{
		registry: registry,
		users:    users,
		interval: interval,
		wake:     make(chan struct{}, 1),
		logger:   logger,
		metrics:  metrics,
	}
}

// Kick requests a broadcast outside the regular schedule. Never blocks.
func (b *Roster) Kick() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Roster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-b.wake:
		}
		b.Broadcast(ctx)
	}
}

// Broadcast assembles the profile-enriched presence list and sends it to
// everyone connected. A user whose profile cannot be loaded is left out
// of this round; one bad lookup never fails the whole broadcast.
func (b *Roster) Broadcast(ctx context.Context) {
	start := time.Now()

	states := b.registry.PresenceSnapshot()
	entries := make([]models.PresenceEntry, 0, len(states))
	for _, st := range states {
		profile, err := b.users.GetProfile(ctx, st.UserID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				b.logger.Debug("roster omitting unknown user", "userId", st.UserID)
			} else {
				b.logger.Warn("roster omitting user, profile lookup failed", "userId", st.UserID, "error", err)
			}
			continue
		}

		entry := models.PresenceEntry{Profile: *profile, Status: st.Status}
		if !st.LastSeen.IsZero() {
			entry.LastSeen = st.LastSeen.UnixMilli()
		}
		entries = append(entries, entry)
	}

	data, err := json.Marshal(protocol.NewRoster(entries))
	if err != nil {
		b.logger.Error("encode roster frame", "error", err)
		return
	}

	sent := b.registry.Broadcast(data)
	b.metrics.RosterBroadcast(time.Since(start))
	b.logger.Debug("roster broadcast", "users", len(entries), "recipients", sent)
}
