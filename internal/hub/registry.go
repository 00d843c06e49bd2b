package hub

import (
	"cmp"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/votewatch/realtime/internal/models"
	"github.com/votewatch/realtime/internal/observability"
	"github.com/votewatch/realtime/internal/protocol"
)

type entry struct {
	link  Link
	alive bool
}

// PresenceState is one user's derived presence at a point in time.
type PresenceState struct {
	UserID   int64
	Status   models.PresenceStatus
	LastSeen time.Time
}

// Registry is the authoritative map from user id to live connection, plus
// the activity records presence is derived from. Every transition happens
// under one mutex; nothing called while holding it can block, since Send,
// Ping and Close on a Link are all non-blocking.
type Registry struct {
	mu       sync.Mutex
	byUser   map[int64]*entry
	byLink   map[Link]int64
	activity map[int64]time.Time

	awayWindow time.Duration
	now        func() time.Time
	onChange   func()
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func NewRegistry(awayWindow time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byUser:     make(map[int64]*entry),
		byLink:     make(map[Link]int64),
		activity:   make(map[int64]time.Time),
		awayWindow: awayWindow,
		now:        time.Now,
		onChange:   func() {},
		logger:     logger,
		metrics:    metrics,
	}
}

// SetOnChange installs the hook fired after membership changes; the
// roster broadcaster hangs off it. Set it before the first connection
// arrives.
func (r *Registry) SetOnChange(fn func()) {
	r.onChange = fn
}

// Register makes link the authoritative connection for userID. An
// existing connection for the same user is told it has been replaced,
// then closed; its eventual unregister is ignored as stale. Registration
// counts as activity.
func (r *Registry) Register(userID int64, link Link) {
	notice, _ := json.Marshal(protocol.NewReplaced())

	r.mu.Lock()
	// A link re-registering under a new id gives up its old one
	rebound := false
	if prev, ok := r.byLink[link]; ok && prev != userID {
		delete(r.byUser, prev)
		rebound = true
	}

	old, replaced := r.byUser[userID]
	if replaced {
		if old.link == link {
			old.alive = true
			r.activity[userID] = r.now()
			r.mu.Unlock()
			return
		}
		old.link.Send(notice)
		old.link.Close()
		delete(r.byLink, old.link)
	}

	r.byUser[userID] = &entry{link: link, alive: true}
	r.byLink[link] = userID
	r.activity[userID] = r.now()
	active := len(r.byUser)
	r.mu.Unlock()

	if rebound {
		r.metrics.ConnectionGone()
	}
	r.metrics.ConnectionRegistered(replaced)
	r.logger.Info("user registered", "userId", userID, "connId", link.ID(), "replaced", replaced, "active", active)
	r.onChange()
}

// Unregister removes link's entry if it is still the authoritative one.
// A superseded connection finds its entry gone and changes nothing, which
// is what protects the newer registration.
func (r *Registry) Unregister(link Link) {
	r.mu.Lock()
	userID, ok := r.byLink[link]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byLink, link)
	delete(r.byUser, userID)
	active := len(r.byUser)
	r.mu.Unlock()

	r.metrics.ConnectionGone()
	r.logger.Info("user disconnected", "userId", userID, "connId", link.ID(), "active", active)
	r.onChange()
}

// Touch records activity for the away calculation. It runs before the
// frame that caused it is dispatched, so presence never lags traffic.
func (r *Registry) Touch(userID int64) {
	r.mu.Lock()
	r.activity[userID] = r.now()
	r.mu.Unlock()
}

// MarkAlive clears the link's pending-ping debt for the current sweep
// window and records activity. Pongs and heartbeats land here; both
// count as activity, so a client that idled while connected is still
// inside the away window when its socket finally drops.
func (r *Registry) MarkAlive(link Link) {
	r.mu.Lock()
	if userID, ok := r.byLink[link]; ok {
		r.byUser[userID].alive = true
		r.activity[userID] = r.now()
	}
	r.mu.Unlock()
}

// Push delivers data to userID's live connection. False means nobody was
// there to take it, or the connection could not accept it.
func (r *Registry) Push(userID int64, data []byte) bool {
	r.mu.Lock()
	e, ok := r.byUser[userID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if err := e.link.Send(data); err != nil {
		r.logger.Warn("dropping frame for user", "userId", userID, "connId", e.link.ID(), "error", err)
		return false
	}
	return true
}

// Broadcast sends data to every registered connection, returning how many
// accepted it.
func (r *Registry) Broadcast(data []byte) int {
	r.mu.Lock()
	links := make([]Link, 0, len(r.byUser))
	for _, e := range r.byUser {
		links = append(links, e.link)
	}
	r.mu.Unlock()

	sent := 0
	for _, link := range links {
		if err := link.Send(data); err == nil {
			sent++
		}
	}
	return sent
}

// Status derives one user's presence: online while connected, away until
// awayWindow has passed since their last activity, offline after that.
func (r *Registry) Status(userID int64) models.PresenceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked(userID)
}

func (r *Registry) statusLocked(userID int64) models.PresenceStatus {
	if _, ok := r.byUser[userID]; ok {
		return models.StatusOnline
	}
	if last, ok := r.activity[userID]; ok && r.now().Sub(last) < r.awayWindow {
		return models.StatusAway
	}
	return models.StatusOffline
}

// ActiveUsers lists user ids with a live connection, ascending.
func (r *Registry) ActiveUsers() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// PresenceSnapshot captures presence for every user the relay knows
// about: everyone connected now plus everyone with recorded activity,
// sorted by user id.
func (r *Registry) PresenceSnapshot() []PresenceState {
	r.mu.Lock()
	out := make([]PresenceState, 0, len(r.byUser)+len(r.activity))
	for id := range r.byUser {
		out = append(out, PresenceState{UserID: id, Status: models.StatusOnline, LastSeen: r.activity[id]})
	}
	for id, last := range r.activity {
		if _, connected := r.byUser[id]; connected {
			continue
		}
		out = append(out, PresenceState{UserID: id, Status: r.statusLocked(id), LastSeen: last})
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b PresenceState) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out
}

// Sweep runs one liveness pass. Connections that never answered the
// previous ping are evicted; the rest get a fresh ping and owe a pong
// before the next pass.
func (r *Registry) Sweep() (pinged, evicted int) {
	r.mu.Lock()
	var deadLinks []Link
	var deadUsers []int64
	for userID, e := range r.byUser {
		if !e.alive {
			deadLinks = append(deadLinks, e.link)
			deadUsers = append(deadUsers, userID)
			delete(r.byUser, userID)
			delete(r.byLink, e.link)
			continue
		}
		e.alive = false
	}
	live := make([]Link, 0, len(r.byUser))
	for _, e := range r.byUser {
		live = append(live, e.link)
	}
	r.mu.Unlock()

	for i, link := range deadLinks {
		r.logger.Info("evicting unresponsive connection", "userId", deadUsers[i], "connId", link.ID())
		r.metrics.ConnectionEvicted()
		link.Close()
	}

	for _, link := range live {
		if err := link.Ping(); err != nil {
			// Wedged write side; the cleared alive flag evicts it on
			// the next pass
			continue
		}
		pinged++
	}
	return pinged, len(deadLinks)
}

// CloseAll closes every connection. Used on shutdown once the listener
// has stopped accepting new ones.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	links := make([]Link, 0, len(r.byLink))
	for link := range r.byLink {
		links = append(links, link)
	}
	r.mu.Unlock()

	for _, link := range links {
		link.Close()
	}
}
