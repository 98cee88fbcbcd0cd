package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository provides session persistence keyed by refresh-token digest.
// GetByHash returns (nil, nil) when nothing matches.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByHash(ctx context.Context, hash string) (*Session, error)
	DeleteByHash(ctx context.Context, hash string) error
}

// MongoRepository implements Repository using a Mongo collection
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

// EnsureIndexes adds the lookup index and lets MongoDB reap expired sessions.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "refreshHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	return err
}

func (r *MongoRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *MongoRepository) GetByHash(ctx context.Context, hash string) (*Session, error) {
	var s Session
	if err := r.col.FindOne(ctx, bson.M{"refreshHash": hash}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) DeleteByHash(ctx context.Context, hash string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"refreshHash": hash})
	return err
}

// MemoryRepository keeps sessions in process. Sessions do not survive a restart.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: map[string]Session{}}
}

func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.RefreshHash] = *s
	return nil
}

func (r *MemoryRepository) GetByHash(_ context.Context, hash string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[hash]
	if !ok {
		return nil, nil
	}
	if s.Expired(time.Now().UTC()) {
		delete(r.items, hash)
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) DeleteByHash(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, hash)
	return nil
}
