package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/votewatch/realtime/internal/models"
)

var ErrNotFound = errors.New("not found")

type PostgresMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepository(pool *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	query := `INSERT INTO messages (sender_id, receiver_id, content, kind)
              VALUES ($1, $2, $3, $4)
              RETURNING id, read, sent_at`

	err := r.pool.QueryRow(ctx, query, msg.SenderID, msg.ReceiverID, msg.Content, msg.Kind).
		Scan(&msg.ID, &msg.Read, &msg.SentAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id int64) (*models.ChatMessage, error) {
	query := `SELECT id, sender_id, receiver_id, content, kind, read, sent_at FROM messages WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)

	var msg models.ChatMessage
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Kind, &msg.Read, &msg.SentAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

func (r *PostgresMessageRepository) MarkRead(ctx context.Context, id int64) error {
	query := `UPDATE messages SET read = TRUE WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListBetween returns the most recent messages exchanged between two
// users, newest first.
func (r *PostgresMessageRepository) ListBetween(ctx context.Context, userA, userB int64, limit int) ([]*models.ChatMessage, error) {
	query := `SELECT id, sender_id, receiver_id, content, kind, read, sent_at
              FROM messages
              WHERE (sender_id = $1 AND receiver_id = $2)
                 OR (sender_id = $2 AND receiver_id = $1)
              ORDER BY sent_at DESC, id DESC
              LIMIT $3`

	rows, err := r.pool.Query(ctx, query, userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Kind, &msg.Read, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return msgs, nil
}
