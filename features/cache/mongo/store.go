package mongo

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/fieldforge/extract/runtime/cache"
	"github.com/fieldforge/extract/features/cache/mongo/clients/mongo"
)

// Store implements cache.Store by delegating to a Mongo client. Hit/miss/set
// counters are tracked in-process (per Store instance) since a cross-process
// activity ledger is not part of the plan-cache contract.
type Store struct {
	client mongo.Client
	stats  counters
}

type counters struct {
	hits    int64
	misses  int64
	sets    int64
	deletes int64
	clears  int64
}

// NewStore builds a Store using the provided client.
func NewStore(client mongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	entry, found, err := s.client.Get(ctx, key)
	if err != nil {
		return cache.Entry{}, false, err
	}
	if found {
		atomic.AddInt64(&s.stats.hits, 1)
	} else {
		atomic.AddInt64(&s.stats.misses, 1)
	}
	return entry, found, nil
}

// Set implements cache.Store.
func (s *Store) Set(ctx context.Context, key string, entry cache.Entry) error {
	if err := s.client.Set(ctx, key, entry); err != nil {
		return err
	}
	atomic.AddInt64(&s.stats.sets, 1)
	return nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Delete(ctx, key); err != nil {
		return err
	}
	atomic.AddInt64(&s.stats.deletes, 1)
	return nil
}

// Clear implements cache.Store, removing every entry tagged with profile, or
// every entry when profile is empty.
func (s *Store) Clear(ctx context.Context, profile string) error {
	var err error
	if profile == "" {
		err = s.client.Clear(ctx)
	} else {
		err = s.client.DeleteByProfile(ctx, profile)
	}
	if err != nil {
		return err
	}
	atomic.AddInt64(&s.stats.clears, 1)
	return nil
}

// Stats implements cache.Store, reporting this Store instance's activity
// counters. Mongo itself owns eviction via the expires_at TTL index, so
// Evictions/Expirations are left at zero here rather than approximated.
func (s *Store) Stats(_ context.Context) (cache.Stats, error) {
	return cache.Stats{
		Hits:    atomic.LoadInt64(&s.stats.hits),
		Misses:  atomic.LoadInt64(&s.stats.misses),
		Sets:    atomic.LoadInt64(&s.stats.sets),
		Deletes: atomic.LoadInt64(&s.stats.deletes),
		Clears:  atomic.LoadInt64(&s.stats.clears),
	}, nil
}
