package mongo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/fieldforge/extract/runtime/cache"
	"github.com/fieldforge/extract/runtime/plan"
)

func TestEnsureIndexes(t *testing.T) {
	entries := newFakeEntriesCollection()
	require.NoError(t, ensureIndexes(context.Background(), entries))
	require.Equal(t, 3, entries.indexCreated)
}

func TestSetThenGetRoundTripsThePlan(t *testing.T) {
	c := mustNewTestClient()
	now := time.Now().UTC()
	entry := cache.Entry{
		Plan:       &plan.SearchPlan{ID: "plan-1", Steps: []plan.SearchStep{{TargetKey: "name"}}},
		Confidence: 0.8,
		Profile:    "default",
		UpdatedAt:  now,
		StoredAt:   now,
	}

	require.NoError(t, c.Set(context.Background(), "key-1", entry))

	got, found, err := c.Get(context.Background(), "key-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "plan-1", got.Plan.ID)
	require.Equal(t, "name", got.Plan.Steps[0].TargetKey)
	require.InDelta(t, 0.8, got.Confidence, 0.0001)
	require.Equal(t, "default", got.Profile)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	c := mustNewTestClient()
	_, found, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSetRequiresKey(t *testing.T) {
	c := mustNewTestClient()
	err := c.Set(context.Background(), "", cache.Entry{})
	require.EqualError(t, err, "key is required")
}

func TestDeleteByProfileRemovesOnlyMatchingEntries(t *testing.T) {
	c := mustNewTestClient()
	require.NoError(t, c.Set(context.Background(), "a", cache.Entry{Plan: &plan.SearchPlan{ID: "a"}, Profile: "finance"}))
	require.NoError(t, c.Set(context.Background(), "b", cache.Entry{Plan: &plan.SearchPlan{ID: "b"}, Profile: "crm"}))

	require.NoError(t, c.DeleteByProfile(context.Background(), "finance"))

	_, found, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = c.Get(context.Background(), "b")
	require.NoError(t, err)
	require.True(t, found)
}

func mustNewTestClient() Client {
	cl, err := newClientWithCollection(nil, newFakeEntriesCollection(), time.Second)
	if err != nil {
		panic(err)
	}
	return cl
}

type fakeEntriesCollection struct {
	mu           sync.Mutex
	indexCreated int
	docs         map[string]cacheDocument
}

func newFakeEntriesCollection() *fakeEntriesCollection {
	return &fakeEntriesCollection{docs: make(map[string]cacheDocument)}
}

func (c *fakeEntriesCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := filter.(bson.M)["key"].(string)
	doc, ok := c.docs[key]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	copyDoc := doc
	return fakeSingleResult{doc: &copyDoc}
}

func (c *fakeEntriesCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := filter.(bson.M)["key"].(string)
	set, ok := update.(bson.M)["$set"].(cacheDocument)
	if !ok {
		return nil, errors.New("unsupported $set payload")
	}
	c.docs[key] = set
	return &mongodriver.UpdateResult{MatchedCount: 1}, nil
}

func (c *fakeEntriesCollection) DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := filter.(bson.M)["key"].(string)
	delete(c.docs, key)
	return nil
}

func (c *fakeEntriesCollection) DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := filter.(bson.M)
	profile, hasProfile := f["profile"].(string)
	for k, doc := range c.docs {
		if !hasProfile || doc.Profile == profile {
			delete(c.docs, k)
		}
	}
	return nil
}

func (c *fakeEntriesCollection) Indexes() indexView {
	return fakeIndexView{parent: &c.indexCreated}
}

type fakeIndexView struct {
	parent *int
}

func (v fakeIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	if len(model.Keys.(bson.D)) == 0 {
		return "", errors.New("missing keys")
	}
	*v.parent++
	return "idx", nil
}

type fakeSingleResult struct {
	doc *cacheDocument
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	typed, ok := val.(*cacheDocument)
	if !ok {
		return errors.New("unsupported target")
	}
	*typed = *r.doc
	return nil
}
