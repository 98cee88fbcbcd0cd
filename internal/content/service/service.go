package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/internal/content/repository"
	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/metrics"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotModerated = errors.New("kind has no moderation status")
	ErrNotPublic    = errors.New("kind is not published")
	ErrUnknownKind  = content.ErrUnknownKind
)

// Service defines the content operations used by the admin API, the public
// site handlers and the terminal console.
type Service interface {
	// Watch opens the live feed for a kind's collection.
	Watch(ctx context.Context, kind content.Kind) <-chan repository.Snapshot
	List(ctx context.Context, kind content.Kind) ([]content.Document, error)
	Get(ctx context.Context, kind content.Kind, id string) (content.Document, error)
	Create(ctx context.Context, kind content.Kind, fields map[string]any) (content.Document, error)
	// Update writes only the given fields.
	Update(ctx context.Context, kind content.Kind, id string, fields map[string]any) error
	// ToggleStatus flips a testimonial between pending and approved and
	// returns the new status.
	ToggleStatus(ctx context.Context, kind content.Kind, id string) (string, error)
	Delete(ctx context.Context, kind content.Kind, id string) error

	// Published lists what the public site shows for a kind, newest first.
	Published(ctx context.Context, kind content.Kind) ([]content.Document, error)
	PublishedGet(ctx context.Context, kind content.Kind, id string) (content.Document, error)

	SubmitContact(ctx context.Context, req ContactRequest) (content.Document, error)
	SubmitCareer(ctx context.Context, req CareerApplication) (content.Document, error)
	SubmitReview(ctx context.Context, req Review) (ReviewResult, error)
}

// Option configures the service.
type Option func(*contentService)

// WithOpTimeout bounds every store call. Zero leaves calls unbounded.
func WithOpTimeout(d time.Duration) Option {
	return func(s *contentService) { s.opTimeout = d }
}

// New returns a Service over any document store.
func New(store repository.Store, opts ...Option) Service {
	s := &contentService{store: store, validate: newValidator()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService(opts ...Option) Service {
	return New(repository.NewMemoryRepo(), opts...)
}

// NewMongoService returns a Service backed by a MongoDB database.
// pollEvery > 0 lets the live feed poll when change streams are unavailable.
func NewMongoService(db *mongo.Database, pollEvery time.Duration, opts ...Option) Service {
	return New(repository.NewMongoRepo(db, repository.WithPollFallback(pollEvery)), opts...)
}

type contentService struct {
	store     repository.Store
	validate  *fieldValidator
	opTimeout time.Duration
}

func (s *contentService) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func mapErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *contentService) Watch(ctx context.Context, kind content.Kind) <-chan repository.Snapshot {
	return s.store.Subscribe(ctx, kind.Collection())
}

func (s *contentService) List(ctx context.Context, kind content.Kind) ([]content.Document, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.store.List(ctx, kind.Collection())
}

func (s *contentService) Get(ctx context.Context, kind content.Kind, id string) (content.Document, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	d, err := s.store.Get(ctx, kind.Collection(), id)
	return d, mapErr(err)
}

func (s *contentService) Create(ctx context.Context, kind content.Kind, fields map[string]any) (content.Document, error) {
	fields, err := s.validate.fields(kind, content.StripReserved(fields))
	if err != nil {
		return content.Document{}, err
	}
	if kind.Moderated() {
		if v, _ := fields[content.FieldStatus].(string); v == "" {
			fields[content.FieldStatus] = content.StatusPending
		}
	}
	return s.create(ctx, kind.Collection(), fields)
}

func (s *contentService) create(ctx context.Context, collection string, fields map[string]any) (content.Document, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	d, err := s.store.Create(ctx, collection, fields)
	metrics.ObserveWrite(collection, "create", err)
	if err != nil {
		logger.Errorf("content: create in %s failed: %v", collection, err)
		return content.Document{}, err
	}
	logger.Infof("content: created %s/%s", collection, d.ID)
	return d, nil
}

func (s *contentService) Update(ctx context.Context, kind content.Kind, id string, fields map[string]any) error {
	fields, err := s.validate.fields(kind, content.StripReserved(fields))
	if err != nil {
		return err
	}
	return s.update(ctx, kind.Collection(), id, fields)
}

func (s *contentService) update(ctx context.Context, collection, id string, fields map[string]any) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	err := s.store.Update(ctx, collection, id, fields)
	metrics.ObserveWrite(collection, "update", err)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Errorf("content: update %s/%s failed: %v", collection, id, err)
		}
		return mapErr(err)
	}
	logger.Debugf("content: updated %s/%s (%d fields)", collection, id, len(fields))
	return nil
}

// NextStatus is the moderation state a toggle moves to. Anything that is
// not approved becomes approved.
func NextStatus(current string) string {
	if current == content.StatusApproved {
		return content.StatusPending
	}
	return content.StatusApproved
}

func (s *contentService) ToggleStatus(ctx context.Context, kind content.Kind, id string) (string, error) {
	if !kind.Moderated() {
		return "", ErrNotModerated
	}
	d, err := s.Get(ctx, kind, id)
	if err != nil {
		return "", err
	}
	next := NextStatus(d.Status())
	if err := s.update(ctx, kind.Collection(), id, map[string]any{content.FieldStatus: next}); err != nil {
		return "", err
	}
	return next, nil
}

func (s *contentService) Delete(ctx context.Context, kind content.Kind, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	collection := kind.Collection()
	err := s.store.Delete(ctx, collection, id)
	metrics.ObserveWrite(collection, "delete", err)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Errorf("content: delete %s/%s failed: %v", collection, id, err)
		}
		return mapErr(err)
	}
	logger.Infof("content: deleted %s/%s", collection, id)
	return nil
}

func visible(kind content.Kind, d content.Document) bool {
	return !kind.Moderated() || d.Status() == content.StatusApproved
}

func (s *contentService) Published(ctx context.Context, kind content.Kind) ([]content.Document, error) {
	if !kind.Route().Public {
		return nil, ErrNotPublic
	}
	all, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]content.Document, 0, len(all))
	for _, d := range all {
		if visible(kind, d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *contentService) PublishedGet(ctx context.Context, kind content.Kind, id string) (content.Document, error) {
	if !kind.Route().Public {
		return content.Document{}, ErrNotPublic
	}
	d, err := s.Get(ctx, kind, id)
	if err != nil {
		return content.Document{}, err
	}
	if !visible(kind, d) {
		return content.Document{}, ErrNotFound
	}
	return d, nil
}
