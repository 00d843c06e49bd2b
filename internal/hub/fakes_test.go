package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/votewatch/realtime/internal/models"
	"github.com/votewatch/realtime/internal/observability"
	"github.com/votewatch/realtime/internal/repositories"
)

// fakeLink is an in-memory Link that captures every frame pushed through
// it. When full is set, Send reports a congested buffer.
type fakeLink struct {
	id string

	mu     sync.Mutex
	userID int64
	frames [][]byte
	closed bool
	pings  int
	full   bool
}

var _ Link = (*fakeLink)(nil)

func newFakeLink(id string) *fakeLink {
	return &fakeLink{id: id}
}

func (f *fakeLink) ID() string { return f.id }

func (f *fakeLink) UserID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeLink) BindUser(id int64) {
	f.mu.Lock()
	f.userID = id
	f.mu.Unlock()
}

func (f *fakeLink) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrLinkClosed
	}
	if f.full {
		return ErrSendBufferFull
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeLink) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrLinkClosed
	}
	f.pings++
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeLink) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeLink) takeFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.frames
	f.frames = nil
	return out
}

func (f *fakeLink) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// frameKind extracts the "type" tag of an encoded frame.
func frameKind(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Type
}

// kindsOf maps captured frames to their type tags in order.
func kindsOf(t *testing.T, frames [][]byte) []string {
	t.Helper()
	kinds := make([]string, len(frames))
	for i, f := range frames {
		kinds[i] = frameKind(t, f)
	}
	return kinds
}

// fakeClock lets tests move presence time by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeMessageStore is an in-memory MessageRepository.
type fakeMessageStore struct {
	mu      sync.Mutex
	nextID  int64
	msgs    map[int64]*models.ChatMessage
	failing bool
}

var _ repositories.MessageRepository = (*fakeMessageStore)(nil)

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{msgs: make(map[int64]*models.ChatMessage)}
}

func (s *fakeMessageStore) Create(ctx context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errDown
	}
	s.nextID++
	msg.ID = s.nextID
	msg.Read = false
	msg.SentAt = time.Now()
	cp := *msg
	s.msgs[msg.ID] = &cp
	return nil
}

func (s *fakeMessageStore) GetByID(ctx context.Context, id int64) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (s *fakeMessageStore) MarkRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[id]
	if !ok {
		return repositories.ErrNotFound
	}
	msg.Read = true
	return nil
}

func (s *fakeMessageStore) ListBetween(ctx context.Context, userA, userB int64, limit int) ([]*models.ChatMessage, error) {
	return nil, nil
}

func (s *fakeMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *fakeMessageStore) get(id int64) *models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.msgs[id]; ok {
		cp := *msg
		return &cp
	}
	return nil
}

func (s *fakeMessageStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

// fakeUserStore is an in-memory UserRepository.
type fakeUserStore struct {
	mu       sync.Mutex
	profiles map[int64]*models.Profile
	errs     map[int64]error
}

var _ repositories.UserRepository = (*fakeUserStore)(nil)

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		profiles: make(map[int64]*models.Profile),
		errs:     make(map[int64]error),
	}
}

func (s *fakeUserStore) addProfile(id int64, firstName, role string) {
	s.mu.Lock()
	s.profiles[id] = &models.Profile{UserID: id, FirstName: firstName, LastName: "Test", Role: role}
	s.mu.Unlock()
}

func (s *fakeUserStore) failWith(id int64, err error) {
	s.mu.Lock()
	s.errs[id] = err
	s.mu.Unlock()
}

func (s *fakeUserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &models.User{ID: p.UserID, FirstName: p.FirstName, LastName: p.LastName, Role: p.Role}, nil
}

func (s *fakeUserStore) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[id]; ok {
		return nil, err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

var errDown = errors.New("backing store down")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func newTestRegistry(awayWindow time.Duration) (*Registry, *fakeClock) {
	clock := newFakeClock()
	r := NewRegistry(awayWindow, testLogger(), testMetrics())
	r.now = clock.Now
	return r, clock
}

func newTestHub() (*Hub, *fakeMessageStore, *fakeUserStore, *fakeClock) {
	msgs := newFakeMessageStore()
	users := newFakeUserStore()
	clock := newFakeClock()

	h := New(Options{
		Messages:       msgs,
		Users:          users,
		PingInterval:   25 * time.Second,
		AwayWindow:     5 * time.Minute,
		RosterInterval: 30 * time.Second,
		Logger:         testLogger(),
		Metrics:        testMetrics(),
	})
	h.registry.now = clock.Now
	return h, msgs, users, clock
}
