package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/metrics"
)

// MongoRepo implements Store on a MongoDB database, one Mongo collection per
// content collection. Ids are ObjectID hex strings.
//
// The live feed uses change streams, which need a replica set. When the server
// refuses to open one and a poll interval is set, the feed re-reads the
// collection on that interval instead.
type MongoRepo struct {
	db           *mongo.Database
	pollInterval time.Duration
}

// MongoOption configures a MongoRepo.
type MongoOption func(*MongoRepo)

// WithPollFallback enables polling when change streams are unavailable.
func WithPollFallback(every time.Duration) MongoOption {
	return func(m *MongoRepo) { m.pollInterval = every }
}

func NewMongoRepo(db *mongo.Database, opts ...MongoOption) *MongoRepo {
	m := &MongoRepo{db: db}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MongoRepo) col(name string) *mongo.Collection { return m.db.Collection(name) }

func idFilter(id string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid}, true
}

// writable drops attributes the store owns.
func writable(fields map[string]any) bson.M {
	set := bson.M{}
	for k, v := range content.StripReserved(fields) {
		if k == "_id" {
			continue
		}
		set[k] = v
	}
	return set
}

func (m *MongoRepo) Create(ctx context.Context, collection string, fields map[string]any) (content.Document, error) {
	oid := primitive.NewObjectID()
	update := bson.M{"$currentDate": bson.M{content.FieldSubmittedAt: true}}
	if set := writable(fields); len(set) > 0 {
		update["$set"] = set
	}
	// single upsert so fields and the server timestamp land atomically
	opts := options.Update().SetUpsert(true)
	if _, err := m.col(collection).UpdateOne(ctx, bson.M{"_id": oid}, update, opts); err != nil {
		return content.Document{}, fmt.Errorf("create in %s: %w", collection, err)
	}
	d, err := m.Get(ctx, collection, oid.Hex())
	if err != nil {
		// the write landed; report it as created with the local clock
		logger.Warnf("content: read-back of %s/%s failed: %v", collection, oid.Hex(), err)
		fields := make(map[string]any, len(update))
		if set, ok := update["$set"].(bson.M); ok {
			for k, v := range set {
				fields[k] = v
			}
		}
		return content.Document{ID: oid.Hex(), SubmittedAt: time.Now().UTC(), Fields: fields}, nil
	}
	return d, nil
}

func (m *MongoRepo) Get(ctx context.Context, collection, id string) (content.Document, error) {
	filter, ok := idFilter(id)
	if !ok {
		return content.Document{}, ErrNotFound
	}
	var raw bson.M
	err := m.col(collection).FindOne(ctx, filter).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return content.Document{}, ErrNotFound
		}
		return content.Document{}, err
	}
	return docFromBSON(raw), nil
}

func (m *MongoRepo) List(ctx context.Context, collection string) ([]content.Document, error) {
	cur, err := m.col(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(context.Background())
	out := []content.Document{}
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, docFromBSON(raw))
	}
	return out, cur.Err()
}

func (m *MongoRepo) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	filter, ok := idFilter(id)
	if !ok {
		return ErrNotFound
	}
	set := writable(fields)
	if len(set) == 0 {
		// nothing to change, but the document must still exist
		_, err := m.Get(ctx, collection, id)
		return err
	}
	res, err := m.col(collection).UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, collection, id string) error {
	filter, ok := idFilter(id)
	if !ok {
		return ErrNotFound
	}
	res, err := m.col(collection).DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Subscribe(ctx context.Context, collection string) <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	go m.feed(ctx, collection, ch)
	return ch
}

func (m *MongoRepo) feed(ctx context.Context, collection string, ch chan Snapshot) {
	defer close(ch)
	metrics.FeedSubscribers.WithLabelValues(collection).Inc()
	defer metrics.FeedSubscribers.WithLabelValues(collection).Dec()

	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("feed: %s: %v", collection, err)
		offer(ch, Snapshot{Collection: collection, Err: err})
	}
	emit := func() bool {
		docs, err := m.List(ctx, collection)
		if err != nil {
			fail(fmt.Errorf("list %s: %w", collection, err))
			return false
		}
		offer(ch, Snapshot{Collection: collection, Documents: docs})
		return true
	}

	// open the stream before the first read so no change falls in between
	cs, err := m.col(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		if m.pollInterval <= 0 {
			fail(fmt.Errorf("watch %s: %w", collection, err))
			return
		}
		logger.Warnf("feed: change stream unavailable for %s (%v); polling every %s", collection, err, m.pollInterval)
		m.poll(ctx, emit)
		return
	}
	defer cs.Close(context.Background())
	logger.Debugf("feed: watching %s", collection)

	if !emit() {
		return
	}
	for cs.Next(ctx) {
		if !emit() {
			return
		}
	}
	if err := cs.Err(); err != nil {
		fail(fmt.Errorf("watch %s: %w", collection, err))
	}
}

func (m *MongoRepo) poll(ctx context.Context, emit func() bool) {
	if !emit() {
		return
	}
	t := time.NewTicker(m.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !emit() {
				return
			}
		}
	}
}

// docFromBSON shallow-merges a raw Mongo document into a content.Document.
func docFromBSON(raw bson.M) content.Document {
	d := content.Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case "_id":
			switch id := v.(type) {
			case primitive.ObjectID:
				d.ID = id.Hex()
			default:
				d.ID = fmt.Sprint(id)
			}
		case content.FieldSubmittedAt:
			d.SubmittedAt = asTime(v)
		default:
			d.Fields[k] = plain(v)
		}
	}
	return d
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	}
	return time.Time{}
}

// plain converts driver-specific scalar types into JSON-friendly values.
func plain(v any) any {
	switch t := v.(type) {
	case int32:
		return int(t)
	case int64:
		return int(t)
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	}
	return v
}
