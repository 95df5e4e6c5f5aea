package statecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickflorez-ai/arla-engine/internal/domain"
)

type fakeLoader struct {
	state *domain.LoanState
	err   error
	calls int
}

func (f *fakeLoader) Load(ctx context.Context, proposalPid string) (*domain.LoanState, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func newTestCache(t *testing.T, loader stateLoader) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb, loader, nil), mr
}

func sampleState(pid string) *domain.LoanState {
	return &domain.LoanState{
		ProposalPid: pid,
		Version:     1,
		LoadedAt:    time.Now().UTC().Truncate(time.Second),
		Fields:      map[string]any{"loan_purpose": "PURCHASE"},
		Entities: domain.EntityLists{
			Borrowers: []domain.EntityRef{{Pid: "b-1", DisplayName: "Jane Doe", Fields: map[string]any{"citizenship_type": "US_CITIZEN"}}},
		},
		Answered: map[string]struct{}{"citizenship": {}},
	}
}

func TestCache_MissReloadsAndPopulates(t *testing.T) {
	loader := &fakeLoader{state: sampleState("prop-1")}
	cache, _ := newTestCache(t, loader)
	ctx := context.Background()

	state, err := cache.Get(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "PURCHASE", state.Fields["loan_purpose"])
	assert.Equal(t, 1, loader.calls)

	cached, err := cache.IsCached(ctx, "prop-1")
	require.NoError(t, err)
	assert.True(t, cached)

	// Second read should come from cache, not the loader.
	_, err = cache.Get(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
}

func TestCache_RoundTripPreservesAnsweredSet(t *testing.T) {
	loader := &fakeLoader{state: sampleState("prop-2")}
	cache, _ := newTestCache(t, loader)
	ctx := context.Background()

	_, err := cache.Get(ctx, "prop-2")
	require.NoError(t, err)

	cache2 := NewCache(cache.rdb, loader, nil)
	state, err := cache2.Get(ctx, "prop-2")
	require.NoError(t, err)
	assert.True(t, state.IsAnswered("citizenship"))
	assert.False(t, state.IsAnswered("base_pay"))
}

func TestCache_UpdateMergesFieldsAndBumpsVersion(t *testing.T) {
	loader := &fakeLoader{state: sampleState("prop-3")}
	cache, _ := newTestCache(t, loader)
	ctx := context.Background()

	initial, err := cache.Get(ctx, "prop-3")
	require.NoError(t, err)

	updated, err := cache.Update(ctx, "prop-3", map[string]any{"loan_amount": 400000.0}, "base_pay")
	require.NoError(t, err)

	assert.Equal(t, "PURCHASE", updated.Fields["loan_purpose"])
	assert.Equal(t, 400000.0, updated.Fields["loan_amount"])
	assert.True(t, updated.IsAnswered("citizenship"))
	assert.True(t, updated.IsAnswered("base_pay"))
	assert.Greater(t, updated.Version, initial.Version)

	reread, err := cache.Get(ctx, "prop-3")
	require.NoError(t, err)
	assert.Equal(t, updated.Version, reread.Version)
}

func TestCache_Invalidate(t *testing.T) {
	loader := &fakeLoader{state: sampleState("prop-4")}
	cache, _ := newTestCache(t, loader)
	ctx := context.Background()

	_, err := cache.Get(ctx, "prop-4")
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, "prop-4"))

	cached, err := cache.IsCached(ctx, "prop-4")
	require.NoError(t, err)
	assert.False(t, cached)

	_, err = cache.Get(ctx, "prop-4")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}

func TestCache_LoaderErrorPropagates(t *testing.T) {
	loader := &fakeLoader{err: errors.New("proposal not found")}
	cache, _ := newTestCache(t, loader)

	_, err := cache.Get(context.Background(), "missing")
	require.Error(t, err)
}

func TestCache_PartialEntryIsTreatedAsMiss(t *testing.T) {
	loader := &fakeLoader{state: sampleState("prop-5")}
	cache, mr := newTestCache(t, loader)
	ctx := context.Background()

	_, err := cache.Get(ctx, "prop-5")
	require.NoError(t, err)

	// Simulate a partial write: meta expired but fields/entities remain.
	mr.Del(metaKey("prop-5"))

	_, err = cache.Get(ctx, "prop-5")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls, "an incomplete entry must trigger a full reload")
}
