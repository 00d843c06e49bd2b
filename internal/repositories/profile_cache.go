package repositories

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/votewatch/realtime/internal/models"
)

const profileKeyPrefix = "profile:"

// CachedUserRepository layers a Redis TTL cache over another
// UserRepository. Roster broadcasts call GetProfile for every known user
// several times a minute; the cache keeps that load off Postgres.
type CachedUserRepository struct {
	inner  UserRepository
	client *redis.Client
	ttl    time.Duration
}

func NewCachedUserRepository(inner UserRepository, client *redis.Client, ttl time.Duration) *CachedUserRepository {
	return &CachedUserRepository{inner: inner, client: client, ttl: ttl}
}

func (r *CachedUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.inner.GetByID(ctx, id)
}

// GetProfile serves from Redis when it can. Cache problems of any sort
// fall through to the source; a Redis outage must not empty the roster.
func (r *CachedUserRepository) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	key := profileKey(id)

	if data, err := r.client.Get(ctx, key).Result(); err == nil {
		var profile models.Profile
		if err := json.Unmarshal([]byte(data), &profile); err == nil {
			return &profile, nil
		}
	}

	profile, err := r.inner.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(profile); err == nil {
		r.client.Set(ctx, key, data, r.ttl)
	}

	return profile, nil
}

func profileKey(id int64) string {
	return profileKeyPrefix + strconv.FormatInt(id, 10)
}
