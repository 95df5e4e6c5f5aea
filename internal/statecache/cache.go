// Package statecache implements the State Cache (spec §4.5): a split-key
// Redis representation of a domain.LoanState with read-through reload via
// the State Loader.
package statecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nickflorez-ai/arla-engine/internal/domain"
)

// TTL is the expiry applied uniformly to all four split keys (spec §4.5:
// "All four expire together with a TTL of one hour").
const TTL = time.Hour

// stateLoader is the subset of *loanstate.Loader the cache needs, kept as
// an interface so tests can substitute a fake instead of a real
// system-of-record connection.
type stateLoader interface {
	Load(ctx context.Context, proposalPid string) (*domain.LoanState, error)
}

// Cache is the split-key remote State Cache with read-through reload.
type Cache struct {
	rdb    *redis.Client
	loader stateLoader
	logger *slog.Logger
}

// NewCache builds a Cache over an existing go-redis client and the State
// Loader used to reload on a miss.
func NewCache(rdb *redis.Client, loader stateLoader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, loader: loader, logger: logger}
}

func fieldsKey(pid string) string   { return fmt.Sprintf("loan:%s:fields", pid) }
func entitiesKey(pid string) string { return fmt.Sprintf("loan:%s:entities", pid) }
func answeredKey(pid string) string { return fmt.Sprintf("loan:%s:answered", pid) }
func metaKey(pid string) string     { return fmt.Sprintf("loan:%s:meta", pid) }

// cachedMeta is the binary-coded meta value; loadedAt is transported as an
// ISO-8601 string per spec §4.5.
type cachedMeta struct {
	Version  int64  `msgpack:"version"`
	LoadedAt string `msgpack:"loadedAt"`
}

// Get returns the LoanState for pid, reloading through the State Loader on
// a cache miss (spec §4.5: "get(pid) -> LoanState (read-through via §4.4 on
// miss)").
func (c *Cache) Get(ctx context.Context, pid string) (*domain.LoanState, error) {
	state, err := c.readCached(ctx, pid)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return nil, err
	}

	c.logger.Debug("statecache: cache miss, reloading via state loader", "proposalPid", pid)
	loaded, err := c.loader.Load(ctx, pid)
	if err != nil {
		return nil, err
	}
	if err := c.store(ctx, loaded); err != nil {
		c.logger.Warn("statecache: failed to populate cache after reload", "proposalPid", pid, "error", err)
	}
	return loaded, nil
}

// readCached reads fields/entities/meta/answered concurrently via a single
// pipelined round trip (spec §4.5: "Reads are issued concurrently"). If any
// of fields/entities/meta is absent the entry is incomplete and ErrCacheMiss
// is returned; the answered set may legitimately be empty.
func (c *Cache) readCached(ctx context.Context, pid string) (*domain.LoanState, error) {
	pipe := c.rdb.Pipeline()
	fieldsCmd := pipe.Get(ctx, fieldsKey(pid))
	entitiesCmd := pipe.Get(ctx, entitiesKey(pid))
	metaCmd := pipe.Get(ctx, metaKey(pid))
	answeredCmd := pipe.SMembers(ctx, answeredKey(pid))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("statecache: pipelined read for %s: %w", pid, err)
	}

	fieldsRaw, err := fieldsCmd.Bytes()
	if err != nil {
		return nil, missOrErr(err)
	}
	entitiesRaw, err := entitiesCmd.Bytes()
	if err != nil {
		return nil, missOrErr(err)
	}
	metaRaw, err := metaCmd.Bytes()
	if err != nil {
		return nil, missOrErr(err)
	}
	answeredIDs, err := answeredCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("statecache: read answered set for %s: %w", pid, err)
	}

	var fields map[string]any
	if err := msgpack.Unmarshal(fieldsRaw, &fields); err != nil {
		return nil, fmt.Errorf("statecache: decode fields for %s: %w", pid, err)
	}
	var entities domain.EntityLists
	if err := msgpack.Unmarshal(entitiesRaw, &entities); err != nil {
		return nil, fmt.Errorf("statecache: decode entities for %s: %w", pid, err)
	}
	var meta cachedMeta
	if err := msgpack.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("statecache: decode meta for %s: %w", pid, err)
	}
	loadedAt, err := time.Parse(time.RFC3339, meta.LoadedAt)
	if err != nil {
		return nil, fmt.Errorf("statecache: parse loadedAt for %s: %w", pid, err)
	}

	return &domain.LoanState{
		ProposalPid: pid,
		Version:     meta.Version,
		LoadedAt:    loadedAt,
		Fields:      fields,
		Entities:    entities,
		Answered:    domain.AnsweredFromSlice(answeredIDs),
	}, nil
}

func missOrErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	return fmt.Errorf("statecache: %w", err)
}

// Update merges fieldDelta into the cached fields, adds answeredQuestionID
// to the answered set (when non-empty), bumps the version, and rewrites
// all four keys atomically (spec §4.5).
func (c *Cache) Update(ctx context.Context, pid string, fieldDelta map[string]any, answeredQuestionID string) (*domain.LoanState, error) {
	state, err := c.Get(ctx, pid)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(state.Fields)+len(fieldDelta))
	for k, v := range state.Fields {
		merged[k] = v
	}
	for k, v := range fieldDelta {
		merged[k] = v
	}
	state.Fields = merged

	if answeredQuestionID != "" {
		if state.Answered == nil {
			state.Answered = map[string]struct{}{}
		}
		state.Answered[answeredQuestionID] = struct{}{}
	}
	state.Version = time.Now().UnixNano()
	state.LoadedAt = time.Now()

	if err := c.store(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// store rewrites the four split keys in one pipelined transaction so
// readers see either the old or new version (spec §4.5 "Writes are atomic
// per proposal via a pipelined transaction").
func (c *Cache) store(ctx context.Context, state *domain.LoanState) error {
	fieldsRaw, err := msgpack.Marshal(state.Fields)
	if err != nil {
		return fmt.Errorf("statecache: encode fields: %w", err)
	}
	entitiesRaw, err := msgpack.Marshal(state.Entities)
	if err != nil {
		return fmt.Errorf("statecache: encode entities: %w", err)
	}
	metaRaw, err := msgpack.Marshal(cachedMeta{Version: state.Version, LoadedAt: state.LoadedAt.UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("statecache: encode meta: %w", err)
	}

	pid := state.ProposalPid
	answeredIDs := state.AnsweredSlice()

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, fieldsKey(pid), fieldsRaw, TTL)
	pipe.Set(ctx, entitiesKey(pid), entitiesRaw, TTL)
	pipe.Set(ctx, metaKey(pid), metaRaw, TTL)
	pipe.Del(ctx, answeredKey(pid))
	if len(answeredIDs) > 0 {
		members := make([]any, len(answeredIDs))
		for i, id := range answeredIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, answeredKey(pid), members...)
		pipe.Expire(ctx, answeredKey(pid), TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("statecache: pipelined write for %s: %w", pid, err)
	}
	return nil
}

// Invalidate removes all four keys for pid.
func (c *Cache) Invalidate(ctx context.Context, pid string) error {
	if err := c.rdb.Del(ctx, fieldsKey(pid), entitiesKey(pid), metaKey(pid), answeredKey(pid)).Err(); err != nil {
		return fmt.Errorf("statecache: invalidate %s: %w", pid, err)
	}
	return nil
}

// IsCached reports whether fields/entities/meta are all present for pid.
func (c *Cache) IsCached(ctx context.Context, pid string) (bool, error) {
	count, err := c.rdb.Exists(ctx, fieldsKey(pid), entitiesKey(pid), metaKey(pid)).Result()
	if err != nil {
		return false, fmt.Errorf("statecache: check cached %s: %w", pid, err)
	}
	return count == 3, nil
}
