// Package mongo hosts the MongoDB client used by the durable plan cache.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/fieldforge/extract/runtime/cache"
	"github.com/fieldforge/extract/runtime/plan"
)

const (
	defaultCollection = "plan_cache"
	defaultOpTimeout  = 5 * time.Second
	cacheClientName   = "plan-cache-mongo"
)

// Client exposes Mongo-backed operations for cached SearchPlan entries.
type Client interface {
	health.Pinger

	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Set(ctx context.Context, key string, entry cache.Entry) error
	Delete(ctx context.Context, key string) error
	DeleteByProfile(ctx context.Context, profile string) error
	Clear(ctx context.Context) error
}

// Options configures the Mongo plan-cache client.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type client struct {
	mongo   *mongodriver.Client
	entries collection
	timeout time.Duration
}

// New returns a Client backed by MongoDB. It creates a unique index on the
// cache key and a TTL index on expires_at so entries with an ExpiresAt set
// are reaped by the server without orchestrator involvement.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collectionName := opts.Collection
	if collectionName == "" {
		collectionName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collectionName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	wrapper := mongoCollection{coll: coll}
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return newClientWithCollection(opts.Client, wrapper, timeout)
}

func (c *client) Name() string { return cacheClientName }

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	if key == "" {
		return cache.Entry{}, false, errors.New("key is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc cacheDocument
	if err := c.entries.FindOne(ctx, bson.M{"key": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, err
	}
	entry, err := doc.toEntry()
	if err != nil {
		return cache.Entry{}, false, err
	}
	return entry, true, nil
}

func (c *client) Set(ctx context.Context, key string, entry cache.Entry) error {
	if key == "" {
		return errors.New("key is required")
	}
	doc, err := fromEntry(key, entry)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"key": key}
	update := bson.M{"$set": doc}
	_, err = c.entries.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (c *client) Delete(ctx context.Context, key string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.entries.DeleteOne(ctx, bson.M{"key": key})
}

func (c *client) DeleteByProfile(ctx context.Context, profile string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.entries.DeleteMany(ctx, bson.M{"profile": profile})
}

func (c *client) Clear(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.entries.DeleteMany(ctx, bson.M{})
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// cacheDocument mirrors cache.Entry for storage. Plan is kept as raw BSON
// rather than a typed field so a driver-level round trip never needs a
// second schema for plan.SearchPlan's shape.
type cacheDocument struct {
	Key        string     `bson:"key"`
	Plan       bson.Raw   `bson:"plan"`
	Confidence float64    `bson:"confidence"`
	Profile    string     `bson:"profile,omitempty"`
	UpdatedAt  time.Time  `bson:"updated_at"`
	StoredAt   time.Time  `bson:"stored_at"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty"`
}

func fromEntry(key string, e cache.Entry) (cacheDocument, error) {
	raw, err := bson.Marshal(e.Plan)
	if err != nil {
		return cacheDocument{}, err
	}
	return cacheDocument{
		Key:        key,
		Plan:       raw,
		Confidence: e.Confidence,
		Profile:    e.Profile,
		UpdatedAt:  e.UpdatedAt.UTC(),
		StoredAt:   e.StoredAt.UTC(),
		ExpiresAt:  e.ExpiresAt,
	}, nil
}

func (doc cacheDocument) toEntry() (cache.Entry, error) {
	var p plan.SearchPlan
	if len(doc.Plan) > 0 {
		if err := bson.Unmarshal(doc.Plan, &p); err != nil {
			return cache.Entry{}, err
		}
	}
	return cache.Entry{
		Key:        doc.Key,
		Plan:       &p,
		Confidence: doc.Confidence,
		Profile:    doc.Profile,
		UpdatedAt:  doc.UpdatedAt,
		StoredAt:   doc.StoredAt,
		ExpiresAt:  doc.ExpiresAt,
	}, nil
}

func ensureIndexes(ctx context.Context, entries collection) error {
	keyIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := entries.Indexes().CreateOne(ctx, keyIndex); err != nil {
		return err
	}
	profileIndex := mongodriver.IndexModel{
		Keys: bson.D{{Key: "profile", Value: 1}},
	}
	if _, err := entries.Indexes().CreateOne(ctx, profileIndex); err != nil {
		return err
	}
	ttlIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	if _, err := entries.Indexes().CreateOne(ctx, ttlIndex); err != nil {
		return err
	}
	return nil
}

func newClientWithCollection(mongoClient *mongodriver.Client, entries collection, timeout time.Duration) (*client, error) {
	if entries == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{mongo: mongoClient, entries: entries, timeout: timeout}, nil
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult
	UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) error
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) error
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) error {
	_, err := c.coll.DeleteOne(ctx, filter, opts...)
	return err
}

func (c mongoCollection) DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) error {
	_, err := c.coll.DeleteMany(ctx, filter, opts...)
	return err
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error { return r.res.Decode(val) }

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
