package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Compile-time check that RedisRepository implements Repository.
var _ Repository = (*RedisRepository)(nil)

// DefaultKeyPrefix namespaces every key written by RedisRepository.
const DefaultKeyPrefix = "vidgen:"

// RedisRepository stores records as JSON strings, with a sorted set per
// owner indexing record IDs by creation time.
//
// Keys:
//
//	<prefix>generation:<id>  record JSON
//	<prefix>owner:<owner>    ZSET of ids scored by created_at (unix ms)
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisRepository.
type RedisOption func(*RedisRepository)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(p string) RedisOption {
	return func(r *RedisRepository) {
		r.prefix = p
	}
}

// WithTTL expires records ttl after their last save. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRepository) {
		r.ttl = ttl
	}
}

// NewRedisRepository creates a repository on client.
func NewRedisRepository(client redis.UniversalClient, opts ...RedisOption) *RedisRepository {
	r := &RedisRepository{
		client: client,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepository) recordKey(id string) string {
	return r.prefix + "generation:" + id
}

func (r *RedisRepository) ownerKey(ownerID string) string {
	return r.prefix + "owner:" + ownerID
}

// Save writes the record and its owner index entry atomically.
func (r *RedisRepository) Save(ctx context.Context, g *Generation) error {
	c := g.Clone()
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal generation %s: %w", c.ID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.recordKey(c.ID), data, r.ttl)
		pipe.ZAdd(ctx, r.ownerKey(c.OwnerID), &redis.Z{
			Score:  float64(c.CreatedAt.UnixMilli()),
			Member: c.ID,
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, r.ownerKey(c.OwnerID), r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save generation %s: %w", c.ID, err)
	}
	return nil
}

// FindByID loads a record.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (*Generation, error) {
	data, err := r.client.Get(ctx, r.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation %s: %w", id, err)
	}
	return decodeGeneration(data)
}

// ListByOwner loads ownerID's records, newest first. Index entries whose
// record has expired are skipped.
func (r *RedisRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Generation, error) {
	ids, err := r.client.ZRevRange(ctx, r.ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list generations of %s: %w", ownerID, err)
	}
	result := make([]*Generation, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load generations of %s: %w", ownerID, err)
	}

	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		g, err := decodeGeneration([]byte(s))
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, nil
}

// Delete removes a record and its owner index entry.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	g, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.recordKey(id))
		pipe.ZRem(ctx, r.ownerKey(g.OwnerID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete generation %s: %w", id, err)
	}
	return nil
}

func decodeGeneration(data []byte) (*Generation, error) {
	var g Generation
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode generation: %w", err)
	}
	return &g, nil
}
