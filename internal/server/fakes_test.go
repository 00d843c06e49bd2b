package server

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/votewatch/realtime/internal/hub"
	"github.com/votewatch/realtime/internal/models"
	"github.com/votewatch/realtime/internal/observability"
	"github.com/votewatch/realtime/internal/repositories"
)

const testSecret = "service-secret-for-tests"

// testEnv bundles a server with in-memory stores for handler tests.
type testEnv struct {
	srv      *Server
	hub      *hub.Hub
	messages *stubMessageStore
	users    *stubUserStore
}

func newTestEnv(t *testing.T, checks ...Check) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messages := newStubMessageStore()
	users := newStubUserStore()

	h := hub.New(hub.Options{
		Messages:       messages,
		Users:          users,
		PingInterval:   time.Minute,
		AwayWindow:     5 * time.Minute,
		RosterInterval: time.Minute,
		Logger:         logger,
		Metrics:        observability.NewMetrics(prometheus.NewRegistry()),
	})

	srv := New(Options{
		Hub:         h,
		Messages:    messages,
		Users:       users,
		TokenSecret: testSecret,
		Checks:      checks,
		Logger:      logger,
	})

	return &testEnv{srv: srv, hub: h, messages: messages, users: users}
}

func signToken(t *testing.T, secret, sub string, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

// authed stamps a request with a service token the test server accepts.
func authed(t *testing.T, req *http.Request) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "election-api", time.Hour))
	return req
}

func doRequest(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	return rec
}

type stubMessageStore struct {
	mu     sync.Mutex
	nextID int64
	msgs   map[int64]*models.ChatMessage
}

func newStubMessageStore() *stubMessageStore {
	return &stubMessageStore{msgs: make(map[int64]*models.ChatMessage)}
}

func (s *stubMessageStore) Create(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg.ID = s.nextID
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	cp := *msg
	s.msgs[msg.ID] = &cp
	return nil
}

func (s *stubMessageStore) GetByID(_ context.Context, id int64) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (s *stubMessageStore) MarkRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgs[id]
	if !ok {
		return repositories.ErrNotFound
	}
	msg.Read = true
	return nil
}

func (s *stubMessageStore) count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

func (s *stubMessageStore) ListBetween(_ context.Context, userA, userB int64, limit int) ([]*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.ChatMessage, 0)
	for _, msg := range s.msgs {
		between := (msg.SenderID == userA && msg.ReceiverID == userB) ||
			(msg.SenderID == userB && msg.ReceiverID == userA)
		if between {
			cp := *msg
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.ChatMessage) int { return cmp.Compare(b.ID, a.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubUserStore struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: make(map[int64]*models.User)}
}

func (s *stubUserStore) add(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *stubUserStore) GetByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubUserStore) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

var (
	_ repositories.MessageRepository = (*stubMessageStore)(nil)
	_ repositories.UserRepository    = (*stubUserStore)(nil)
)
