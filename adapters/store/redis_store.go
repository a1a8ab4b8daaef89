package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
	"github.com/redis/go-redis/v9"
)

// createScript inserts a pending challenge unless the key is already taken
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'kind', ARGV[1], 'created_at', ARGV[2], 'verified', '0', 'pubkey', '')
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// markVerifiedScript is the compare-and-set on the verified flag:
// 0 not found, -1 already verified, 1 transitioned.
var markVerifiedScript = redis.NewScript(`
local verified = redis.call('HGET', KEYS[1], 'verified')
if not verified then
	return 0
end
if verified == '1' then
	return -1
end
redis.call('HSET', KEYS[1], 'verified', '1', 'pubkey', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisStore is a Redis implementation of the ChallengeStore interface.
// It lets several gateway instances share challenge state.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	cfg    Config
}

var _ ports.ChallengeStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient, cfg Config) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "nostrgate:challenge:",
		cfg:    cfg.withDefaults(),
	}
}

// Create stores a new pending challenge with the challenge TTL
func (s *RedisStore) Create(ctx context.Context, kind core.ChallengeKind) (*core.Challenge, error) {
	now := time.Now()

	for {
		id, err := newChallengeID()
		if err != nil {
			return nil, err
		}

		created, err := createScript.Run(ctx, s.client,
			[]string{s.prefix + id},
			string(kind), now.UnixMilli(), s.cfg.ChallengeTTL.Milliseconds(),
		).Int()
		if err != nil {
			return nil, fmt.Errorf("failed to create challenge: %w: %v", core.ErrStoreOperationFailed, err)
		}
		if created == 0 {
			continue
		}

		return &core.Challenge{
			ID:        id,
			Kind:      kind,
			CreatedAt: time.UnixMilli(now.UnixMilli()),
			ExpiresAt: now.Add(s.cfg.ChallengeTTL),
		}, nil
	}
}

// Get loads a challenge from its hash
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Challenge, error) {
	key := s.prefix + id

	var fields *redis.MapStringStringCmd
	var ttl *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w: %v", core.ErrStoreOperationFailed, err)
	}

	values := fields.Val()
	if len(values) == 0 {
		return nil, core.ErrChallengeNotFound
	}

	createdMs, err := strconv.ParseInt(values["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt challenge %s: %w", id, core.ErrStoreOperationFailed)
	}

	challenge := &core.Challenge{
		ID:        id,
		Kind:      core.ChallengeKind(values["kind"]),
		CreatedAt: time.UnixMilli(createdMs),
		Verified:  values["verified"] == "1",
		Pubkey:    values["pubkey"],
	}
	if d := ttl.Val(); d > 0 {
		challenge.ExpiresAt = time.Now().Add(d)
	}

	return challenge, nil
}

// MarkVerified runs the compare-and-set script and resets the TTL
func (s *RedisStore) MarkVerified(ctx context.Context, id, pubkey string) error {
	result, err := markVerifiedScript.Run(ctx, s.client,
		[]string{s.prefix + id},
		pubkey, s.cfg.VerifiedTTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to mark challenge verified: %w: %v", core.ErrStoreOperationFailed, err)
	}

	switch result {
	case 1:
		return nil
	case -1:
		return core.ErrAlreadyVerified
	default:
		return core.ErrChallengeNotFound
	}
}

// Status reads only the verified flag
func (s *RedisStore) Status(ctx context.Context, id string) (core.ChallengeStatus, error) {
	verified, err := s.client.HGet(ctx, s.prefix+id, "verified").Result()
	if errors.Is(err, redis.Nil) {
		return core.StatusNotFound, nil
	}
	if err != nil {
		return core.StatusNotFound, fmt.Errorf("failed to read challenge status: %w: %v", core.ErrStoreOperationFailed, err)
	}

	if verified == "1" {
		return core.StatusVerified, nil
	}
	return core.StatusPending, nil
}
