package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/votewatch/realtime/internal/models"
)

type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT id, email, first_name, last_name, role, COALESCE(station_code, ''), created_at
              FROM users WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)

	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.Role, &user.StationCode, &user.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	query := `SELECT id, first_name, last_name, role, COALESCE(station_code, '')
              FROM users WHERE id = $1`

	row := r.pool.QueryRow(ctx, query, id)

	var profile models.Profile
	err := row.Scan(&profile.UserID, &profile.FirstName, &profile.LastName, &profile.Role, &profile.StationCode)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}
