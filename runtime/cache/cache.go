// Package cache implements the plan cache: a key-to-entry store the
// architect consults before building a new plan from scratch. The
// in-memory Store enforces an optional maxEntries bound via LRU eviction
// and an optional TTL, and always deep-clones entries crossing its
// get/set boundary so a caller mutating its copy cannot corrupt the
// stored state.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldforge/extract/runtime/plan"
)

type (
	// Entry is a single plan-cache record.
	Entry struct {
		Key        string
		Plan       *plan.SearchPlan
		Confidence float64
		Profile    string
		UpdatedAt  time.Time
		StoredAt   time.Time
		ExpiresAt  *time.Time
	}

	// Stats is a snapshot of cache activity counters.
	Stats struct {
		Hits           int64
		Misses         int64
		Sets           int64
		Deletes        int64
		Clears         int64
		Evictions      int64
		Expirations    int64
		LastHitAt      time.Time
		LastMissAt     time.Time
		LastSetAt      time.Time
		LastDeleteAt   time.Time
		LastClearAt    time.Time
		LastEvictionAt time.Time
		LastExpireAt   time.Time
	}

	// Store is the plan-cache collaborator contract. Implementations MUST
	// return deep copies from Get and MUST accept deep copies into Set;
	// callers clone at their own boundary so implementations may keep
	// what they receive without re-cloning.
	Store interface {
		Get(ctx context.Context, key string) (Entry, bool, error)
		Set(ctx context.Context, key string, entry Entry) error
		Delete(ctx context.Context, key string) error
		Clear(ctx context.Context, profile string) error
		Stats(ctx context.Context) (Stats, error)
	}

	// Evaluation classifies a cache entry before the orchestrator accepts
	// it as a hit.
	Evaluation string

	// Options configures the in-memory Store.
	Options struct {
		// MaxEntries bounds the store size; 0 disables the bound.
		MaxEntries int
		// TTL expires entries older than this on access; 0 disables TTL.
		TTL time.Duration
	}

	memEntry struct {
		entry      Entry
		lastAccess time.Time
	}

	memStore struct {
		mu      sync.Mutex
		opts    Options
		entries map[string]*memEntry
		stats   Stats
	}
)

const (
	EvalHit      Evaluation = "hit"
	EvalStale    Evaluation = "stale"
	EvalExpired  Evaluation = "expired"
	EvalRejected Evaluation = "rejected"
	EvalMiss     Evaluation = "miss"
)

// NewMemStore constructs an in-memory Store.
func NewMemStore(opts Options) Store {
	return &memStore{opts: opts, entries: make(map[string]*memEntry)}
}

// Get returns a deep copy of the entry stored under key, refreshing its
// sliding TTL on a hit. Expired entries are evicted on access and counted
// both as an expiration and as a miss.
func (s *memStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, ok := s.entries[key]
	if !ok {
		s.stats.Misses++
		s.stats.LastMissAt = time.Now().UTC()
		return Entry{}, false, nil
	}

	if s.opts.TTL > 0 && time.Since(me.entry.StoredAt) > s.opts.TTL {
		delete(s.entries, key)
		s.stats.Expirations++
		s.stats.LastExpireAt = time.Now().UTC()
		s.stats.Misses++
		s.stats.LastMissAt = time.Now().UTC()
		return Entry{}, false, nil
	}

	now := time.Now().UTC()
	me.entry.StoredAt = now
	if s.opts.TTL > 0 {
		exp := now.Add(s.opts.TTL)
		me.entry.ExpiresAt = &exp
	}
	me.lastAccess = now

	s.stats.Hits++
	s.stats.LastHitAt = now
	return cloneEntry(me.entry), true, nil
}

// Set stores entry under key, evicting the least-recently-accessed entry
// on overflow when MaxEntries is configured.
func (s *memStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	entry.Key = key
	entry.StoredAt = now
	if s.opts.TTL > 0 {
		exp := now.Add(s.opts.TTL)
		entry.ExpiresAt = &exp
	}

	if _, exists := s.entries[key]; !exists && s.opts.MaxEntries > 0 && len(s.entries) >= s.opts.MaxEntries {
		s.evictOldest()
	}

	s.entries[key] = &memEntry{entry: cloneEntry(entry), lastAccess: now}
	s.stats.Sets++
	s.stats.LastSetAt = now
	return nil
}

// Delete removes the entry stored under key, if any.
func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	s.stats.Deletes++
	s.stats.LastDeleteAt = time.Now().UTC()
	return nil
}

// Clear removes all entries, or only entries tagged with profile when
// profile is non-empty.
func (s *memStore) Clear(_ context.Context, profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile == "" {
		s.entries = make(map[string]*memEntry)
	} else {
		for k, me := range s.entries {
			if me.entry.Profile == profile {
				delete(s.entries, k)
			}
		}
	}
	s.stats.Clears++
	s.stats.LastClearAt = time.Now().UTC()
	return nil
}

// Stats returns a snapshot of the store's activity counters.
func (s *memStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

func (s *memStore) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for k, me := range s.entries {
		if oldestKey == "" || me.lastAccess.Before(oldestAt) {
			oldestKey = k
			oldestAt = me.lastAccess
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
		s.stats.Evictions++
		s.stats.LastEvictionAt = time.Now().UTC()
	}
}

func cloneEntry(e Entry) Entry {
	out := e
	out.Plan = plan.ClonePlan(e.Plan)
	if e.ExpiresAt != nil {
		at := *e.ExpiresAt
		out.ExpiresAt = &at
	}
	return out
}

// Evaluate classifies entry against minConfidence, maxAge, and
// staleAfter, returning the hit/stale/expired/rejected/miss verdict the
// orchestrator uses to decide whether to accept a cached plan. A zero
// threshold/duration disables that check.
func Evaluate(entry Entry, found bool, minConfidence float64, maxAge, staleAfter time.Duration) Evaluation {
	if !found {
		return EvalMiss
	}
	age := time.Since(entry.StoredAt)
	if maxAge > 0 && age > maxAge {
		return EvalExpired
	}
	if minConfidence > 0 && entry.Confidence < minConfidence {
		return EvalRejected
	}
	if staleAfter > 0 && age > staleAfter {
		return EvalStale
	}
	return EvalHit
}

// Key derives a deterministic cache key from the inputs that affect plan
// shape: schema field names, instructions, plan-affecting options, and
// profile. Two requests that differ only in inputData hash to the same
// key.
func Key(schemaFields []string, instructions, strategy, profile string, confidenceThreshold float64, validateOutput bool) string {
	fields := append([]string(nil), schemaFields...)
	sort.Strings(fields)

	h := sha256.New()
	fmt.Fprintf(h, "SCHEMA:")
	for _, f := range fields {
		fmt.Fprintf(h, "%s;", f)
	}
	fmt.Fprintf(h, "INSTRUCTIONS:%s;", instructions)
	fmt.Fprintf(h, "STRATEGY:%s;", strategy)
	fmt.Fprintf(h, "PROFILE:%s;", profile)
	fmt.Fprintf(h, "THRESHOLD:%v;", confidenceThreshold)
	fmt.Fprintf(h, "VALIDATE:%v;", validateOutput)
	return hex.EncodeToString(h.Sum(nil))
}
