package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldforge/extract/runtime/plan"
)

func testPlan(id string) *plan.SearchPlan {
	return &plan.SearchPlan{
		ID:    id,
		Steps: []plan.SearchStep{{TargetKey: "a"}},
	}
}

func TestMemStore_SetGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewMemStore(Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", Entry{Plan: testPlan("p1"), Confidence: 0.9}))
	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "p1", got.Plan.ID)
	require.Equal(t, 0.9, got.Confidence)
}

func TestMemStore_GetReturnsDeepCopy(t *testing.T) {
	t.Parallel()
	s := NewMemStore(Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", Entry{Plan: testPlan("p1")}))
	got, _, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	got.Plan.Steps[0].TargetKey = "mutated"

	got2, _, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "a", got2.Plan.Steps[0].TargetKey)
}

func TestMemStore_SetAcceptsCallerCopyWithoutAliasing(t *testing.T) {
	t.Parallel()
	s := NewMemStore(Options{})
	ctx := context.Background()

	p := testPlan("p1")
	require.NoError(t, s.Set(ctx, "k1", Entry{Plan: p}))
	p.Steps[0].TargetKey = "mutated-after-set"

	got, _, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "a", got.Plan.Steps[0].TargetKey)
}

func TestMemStore_MissCountsAndReturnsFalse(t *testing.T) {
	t.Parallel()
	s := NewMemStore(Options{})
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Misses)
}

func TestMemStore_TTLExpiresOnAccess(t *testing.T) {
	t.Parallel()
	s := NewMemStore(Options{TTL: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", Entry{Plan: testPlan("p1")}))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Expirations)
}

func TestMemStore_MaxEntriesEvictsLRU(t *testing.T) {
	t.Parallel()
	s := NewMemStore(Options{MaxEntries: 2})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", Entry{Plan: testPlan("a")}))
	require.NoError(t, s.Set(ctx, "b", Entry{Plan: testPlan("b")}))
	_, _, _ = s.Get(ctx, "a") // touch a so b becomes least-recently-accessed
	require.NoError(t, s.Set(ctx, "c", Entry{Plan: testPlan("c")}))

	_, aOK, _ := s.Get(ctx, "a")
	_, bOK, _ := s.Get(ctx, "b")
	_, cOK, _ := s.Get(ctx, "c")
	require.True(t, aOK)
	require.False(t, bOK)
	require.True(t, cOK)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Evictions)
}

func TestMemStore_ClearWithProfileScopesDeletion(t *testing.T) {
	t.Parallel()
	s := NewMemStore(Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", Entry{Plan: testPlan("a"), Profile: "tenant-1"}))
	require.NoError(t, s.Set(ctx, "b", Entry{Plan: testPlan("b"), Profile: "tenant-2"}))
	require.NoError(t, s.Clear(ctx, "tenant-1"))

	_, aOK, _ := s.Get(ctx, "a")
	_, bOK, _ := s.Get(ctx, "b")
	require.False(t, aOK)
	require.True(t, bOK)
}

func TestKey_StableAcrossInputDataOnly(t *testing.T) {
	t.Parallel()
	k1 := Key([]string{"name", "email"}, "extract contact", "sequential", "p1", 0.7, true)
	k2 := Key([]string{"email", "name"}, "extract contact", "sequential", "p1", 0.7, true)
	require.Equal(t, k1, k2)

	k3 := Key([]string{"name", "email"}, "extract contact", "parallel", "p1", 0.7, true)
	require.NotEqual(t, k1, k3)
}

func TestEvaluate_ClassifiesEntry(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	require.Equal(t, EvalMiss, Evaluate(Entry{}, false, 0, 0, 0))
	require.Equal(t, EvalHit, Evaluate(Entry{StoredAt: now, Confidence: 0.9}, true, 0.5, 0, 0))
	require.Equal(t, EvalRejected, Evaluate(Entry{StoredAt: now, Confidence: 0.1}, true, 0.5, 0, 0))
	require.Equal(t, EvalExpired, Evaluate(Entry{StoredAt: now.Add(-time.Hour)}, true, 0, time.Minute, 0))
	require.Equal(t, EvalStale, Evaluate(Entry{StoredAt: now.Add(-time.Minute)}, true, 0, 0, time.Second))
}

func TestStats_HitsPlusMissesEqualsGetCalls(t *testing.T) {
	t.Parallel()
	s := NewMemStore(Options{})
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k1", Entry{Plan: testPlan("p1")}))

	calls := 0
	for i := 0; i < 5; i++ {
		_, _, _ = s.Get(ctx, "k1")
		calls++
	}
	_, _, _ = s.Get(ctx, "missing")
	calls++

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(calls), stats.Hits+stats.Misses)
}
