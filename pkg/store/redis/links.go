package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rmax-ai/linkgate/pkg/links"
)

// maxScriptIndex keeps indices within the range Lua numbers represent exactly.
const maxScriptIndex = 1 << 53

// eachBatch is the number of doublets fetched per HMGET during enumeration.
const eachBatch = 512

// KEYS: pairs hash, sequence, doublets hash. ARGV: pair, capacity, max index.
var getOrCreateScript = redis.NewScript(`
	local id = redis.call("HGET", KEYS[1], ARGV[1])
	if id then
		return {tonumber(id), 0}
	end
	local n = tonumber(redis.call("GET", KEYS[2]) or "0")
	local capacity = tonumber(ARGV[2])
	if capacity > 0 and n >= capacity then
		return {-1, 0}
	end
	if n >= tonumber(ARGV[3]) then
		return {-2, 0}
	end
	n = redis.call("INCR", KEYS[2])
	redis.call("HSET", KEYS[1], ARGV[1], n)
	redis.call("HSET", KEYS[3], n, ARGV[1])
	return {n, 1}
`)

// KEYS: pairs hash, sequence, doublets hash. ARGV: sequence value to restore.
var rollbackScript = redis.NewScript(`
	local mark = tonumber(ARGV[1])
	local n = tonumber(redis.call("GET", KEYS[2]) or "0")
	for id = mark + 1, n do
		local pair = redis.call("HGET", KEYS[3], tostring(id))
		if pair then
			redis.call("HDEL", KEYS[1], pair)
		end
		redis.call("HDEL", KEYS[3], tostring(id))
	end
	redis.call("SET", KEYS[2], mark)
	return n - mark
`)

// RedisLinkStore keeps doublets in two hashes, pair to index and index to pair,
// plus a sequence holding the number of doublets. It assumes a single owner
// per prefix, claimed through Owner.
type RedisLinkStore[T links.ID] struct {
	client   *redis.Client
	prefix   string
	capacity uint64
}

// NewRedisLinkStore returns an engine storing its keys under prefix.
// capacity 0 means the engine is bounded only by the identifier type.
func NewRedisLinkStore[T links.ID](client *redis.Client, prefix string, capacity uint64) *RedisLinkStore[T] {
	if prefix == "" {
		prefix = "linkgate"
	}
	return &RedisLinkStore[T]{client: client, prefix: prefix, capacity: capacity}
}

func (s *RedisLinkStore[T]) keys() []string {
	return []string{
		s.prefix + ":links:pairs",
		s.prefix + ":links:seq",
		s.prefix + ":links:doublets",
	}
}

func (s *RedisLinkStore[T]) maxIndex() uint64 {
	if m := uint64(links.Max[T]()); m < maxScriptIndex {
		return m
	}
	return maxScriptIndex
}

func pairField[T links.ID](source, target T) string {
	return strconv.FormatUint(uint64(source), 10) + ":" + strconv.FormatUint(uint64(target), 10)
}

func parsePair[T links.ID](field string) (T, T, error) {
	src, tgt, ok := strings.Cut(field, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed pair %q", field)
	}
	source, err := links.ParseID[T](src)
	if err != nil {
		return 0, 0, err
	}
	target, err := links.ParseID[T](tgt)
	if err != nil {
		return 0, 0, err
	}
	return source, target, nil
}

// Count returns the number of stored doublets.
func (s *RedisLinkStore[T]) Count(ctx context.Context) (T, error) {
	n, err := s.client.HLen(ctx, s.keys()[2]).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return T(n), nil
}

// Each visits doublets in index order until visit returns links.Break.
func (s *RedisLinkStore[T]) Each(ctx context.Context, visit func(links.Doublet[T]) links.Signal) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	total := uint64(count)

	for start := uint64(1); start <= total; start += eachBatch {
		end := min(start+eachBatch-1, total)
		fields := make([]string, 0, end-start+1)
		for id := start; id <= end; id++ {
			fields = append(fields, strconv.FormatUint(id, 10))
		}

		values, err := s.client.HMGet(ctx, s.keys()[2], fields...).Result()
		if err != nil {
			return fmt.Errorf("failed to HMGET links: %w", err)
		}

		for i, val := range values {
			str, ok := val.(string)
			if !ok {
				return fmt.Errorf("link %s missing from %s", fields[i], s.keys()[2])
			}
			source, target, err := parsePair[T](str)
			if err != nil {
				return fmt.Errorf("failed to parse link %s: %w", fields[i], err)
			}
			d := links.Doublet[T]{Index: T(start + uint64(i)), Source: source, Target: target}
			if visit(d) == links.Break {
				return nil
			}
		}
	}
	return nil
}

// GetOrCreate resolves (source, target) atomically on the server.
func (s *RedisLinkStore[T]) GetOrCreate(ctx context.Context, source, target T) (T, error) {
	res, err := getOrCreateScript.Run(ctx, s.client, s.keys(), pairField(source, target), s.capacity, s.maxIndex()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to execute get-or-create script: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return 0, fmt.Errorf("unexpected return from get-or-create script: %v", res)
	}
	id, ok := reply[0].(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected index type from get-or-create script: %T", reply[0])
	}

	switch id {
	case -1:
		return 0, links.ErrCapacityExceeded
	case -2:
		return 0, links.ErrIDOverflow
	}
	return T(id), nil
}

// Atomically runs fn and removes every doublet created past the starting
// sequence when fn fails.
func (s *RedisLinkStore[T]) Atomically(ctx context.Context, fn func(links.Engine[T]) error) error {
	mark, err := s.client.Get(ctx, s.keys()[1]).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read link sequence: %w", err)
	}

	if err := fn(s); err != nil {
		// The batch context may be what failed; rollback must still run.
		if rbErr := rollbackScript.Run(context.WithoutCancel(ctx), s.client, s.keys(), mark).Err(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return nil
}

var (
	_ links.Engine[uint64]     = (*RedisLinkStore[uint64])(nil)
	_ links.Transactor[uint64] = (*RedisLinkStore[uint64])(nil)
)
