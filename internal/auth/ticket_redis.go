package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ticketKeyPrefix = "custodia:ticket:"
	stepKeyPrefix   = "custodia:otp-step:"
)

// RedisTicketStore keeps pending-MFA tickets in Redis so every node shares
// one authoritative view. Failure counting uses HINCRBY and step claims use
// SET NX, both atomic on the server.
type RedisTicketStore struct {
	client *redis.Client
}

func NewRedisTicketStore(client *redis.Client) (*RedisTicketStore, error) {
	if client == nil {
		return nil, errors.New("auth: redis client is required")
	}
	return &RedisTicketStore{client: client}, nil
}

func (s *RedisTicketStore) Create(ctx context.Context, t Ticket) error {
	key := ticketKeyPrefix + t.ID
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: ticket already expired", ErrInvalidInput)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"principal_id", t.PrincipalID,
		"created_at", t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at", t.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"failures", 0,
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return nil
}

func (s *RedisTicketStore) Find(ctx context.Context, id string) (Ticket, error) {
	fields, err := s.client.HGetAll(ctx, ticketKeyPrefix+id).Result()
	if err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if len(fields) == 0 {
		return Ticket{}, ErrNotFound
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	expiresAt, _ := time.Parse(time.RFC3339Nano, fields["expires_at"])
	return Ticket{
		ID:          id,
		PrincipalID: fields["principal_id"],
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *RedisTicketStore) Fail(ctx context.Context, id string) (int, error) {
	key := ticketKeyPrefix + id
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if exists == 0 {
		return 0, ErrNotFound
	}
	failures, err := s.client.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return int(failures), nil
}

func (s *RedisTicketStore) ClaimStep(ctx context.Context, principalID string, step int64) (bool, error) {
	key := stepKeyPrefix + principalID + ":" + strconv.FormatInt(step, 10)
	fresh, err := s.client.SetNX(ctx, key, 1, stepClaimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return fresh, nil
}

func (s *RedisTicketStore) Consume(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, ticketKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return nil
}

var _ TicketStore = (*RedisTicketStore)(nil)
