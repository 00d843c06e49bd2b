package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/votewatch/realtime/internal/models"
)

func TestMessageRepository_Create(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)
	ctx := context.Background()

	msg := &models.ChatMessage{
		SenderID:   101,
		ReceiverID: 102,
		Content:    "turnout update for station 7",
		Kind:       models.MessageText,
	}

	err := repo.Create(ctx, msg)
	require.NoError(t, err)

	assert.NotZero(t, msg.ID, "Create should fill in the generated id")
	assert.False(t, msg.SentAt.IsZero(), "Create should fill in sent_at")
	assert.False(t, msg.Read, "new messages start unread")

	retrieved, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.SenderID, retrieved.SenderID)
	assert.Equal(t, msg.ReceiverID, retrieved.ReceiverID)
	assert.Equal(t, msg.Content, retrieved.Content)
	assert.Equal(t, models.MessageText, retrieved.Kind)
}

func TestMessageRepository_GetByID_NotFound(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)

	_, err := repo.GetByID(context.Background(), 99999999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_MarkRead(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)
	ctx := context.Background()

	msg := &models.ChatMessage{SenderID: 103, ReceiverID: 104, Content: "seal numbers logged", Kind: models.MessageText}
	require.NoError(t, repo.Create(ctx, msg))

	err := repo.MarkRead(ctx, msg.ID)
	require.NoError(t, err)

	retrieved, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.Read)

	// Marking again is harmless
	assert.NoError(t, repo.MarkRead(ctx, msg.ID))

	assert.ErrorIs(t, repo.MarkRead(ctx, 99999999), ErrNotFound)
}

func TestMessageRepository_ListBetween(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMessageRepository(pool)
	ctx := context.Background()

	// Conversation between 201 and 202, plus one stray message that must
	// not show up
	for _, m := range []*models.ChatMessage{
		{SenderID: 201, ReceiverID: 202, Content: "first", Kind: models.MessageText},
		{SenderID: 202, ReceiverID: 201, Content: "second", Kind: models.MessageText},
		{SenderID: 201, ReceiverID: 202, Content: "third", Kind: models.MessageText},
		{SenderID: 201, ReceiverID: 999, Content: "other thread", Kind: models.MessageText},
	} {
		require.NoError(t, repo.Create(ctx, m))
	}

	msgs, err := repo.ListBetween(ctx, 201, 202, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	// Newest first, both directions included
	assert.Equal(t, "third", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "first", msgs[2].Content)

	limited, err := repo.ListBetween(ctx, 202, 201, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// Helper functions for test setup

const testSchema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'observer',
    station_code TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    sender_id BIGINT NOT NULL,
    receiver_id BIGINT NOT NULL,
    content TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'text',
    read BOOLEAN NOT NULL DEFAULT FALSE,
    sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// getTestPool connects to the database named by TEST_DATABASE_URL and
// makes sure the schema exists. Tests are skipped when the variable is
// unset so the suite can run without local infrastructure.
func getTestPool(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err, "Failed to apply test schema")

	_, err = pool.Exec(ctx, `TRUNCATE messages`)
	require.NoError(t, err)

	return pool
}
