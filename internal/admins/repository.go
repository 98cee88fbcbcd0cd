package admins

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository defines persistence operations for admin accounts.
// Lookups return (nil, nil) when nothing matches.
type Repository interface {
	UpsertByEmail(ctx context.Context, a *Admin) (*Admin, error)
	GetByEmail(ctx context.Context, email string) (*Admin, error)
	GetBySub(ctx context.Context, sub string) (*Admin, error)
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

// EnsureIndexes makes email and sub unique.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "sub", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (r *MongoRepository) UpsertByEmail(ctx context.Context, a *Admin) (*Admin, error) {
	now := time.Now().UTC()
	set := bson.M{
		"name":       a.Name,
		"authSource": a.AuthSource,
		"updatedAt":  now,
	}
	if a.Password != "" {
		set["password"] = a.Password
	}
	sub := a.Sub
	if sub == "" {
		sub = uuid.New().String()
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"sub": sub, "createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var updated Admin
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"email": normalizeEmail(a.Email)}, update, opts).Decode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M) (*Admin, error) {
	var a Admin
	if err := r.col.FindOne(ctx, filter).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	return r.find(ctx, bson.M{"email": normalizeEmail(email)})
}

func (r *MongoRepository) GetBySub(ctx context.Context, sub string) (*Admin, error) {
	return r.find(ctx, bson.M{"sub": sub})
}

// MemoryRepository keeps accounts in process; used when MongoDB is not configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	byEmail map[string]*Admin
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byEmail: map[string]*Admin{}}
}

func (r *MemoryRepository) UpsertByEmail(_ context.Context, a *Admin) (*Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	email := normalizeEmail(a.Email)
	cur, ok := r.byEmail[email]
	if !ok {
		cur = &Admin{ID: uuid.New().String(), Sub: a.Sub, Email: email, CreatedAt: now}
		if cur.Sub == "" {
			cur.Sub = uuid.New().String()
		}
		r.byEmail[email] = cur
	}
	cur.Name = a.Name
	cur.AuthSource = a.AuthSource
	if a.Password != "" {
		cur.Password = a.Password
	}
	cur.UpdatedAt = now
	out := *cur
	return &out, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) GetBySub(_ context.Context, sub string) (*Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byEmail {
		if a.Sub == sub {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}
