package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/metrics"
)

// MemoryRepo is an in-process document store used for development and tests.
// Documents keep insertion order; every write publishes a fresh snapshot to
// the collection's subscribers.
type MemoryRepo struct {
	mu     sync.RWMutex
	cols   map[string]*memCollection
	subs   map[string]map[string]chan Snapshot // collection -> subID -> ch
	now    func() time.Time
	closed bool
}

type memCollection struct {
	order []string
	docs  map[string]content.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		cols: make(map[string]*memCollection),
		subs: make(map[string]map[string]chan Snapshot),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// caller must hold m.mu for writing
func (m *MemoryRepo) collection(name string) *memCollection {
	c, ok := m.cols[name]
	if !ok {
		c = &memCollection{docs: make(map[string]content.Document)}
		m.cols[name] = c
	}
	return c
}

// caller must hold m.mu
func (m *MemoryRepo) listLocked(name string) []content.Document {
	c, ok := m.cols[name]
	if !ok {
		return []content.Document{}
	}
	out := make([]content.Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.docs[id].Clone())
	}
	return out
}

// caller must hold m.mu for writing
func (m *MemoryRepo) publishLocked(name string) {
	subs := m.subs[name]
	if len(subs) == 0 {
		return
	}
	snap := Snapshot{Collection: name, Documents: m.listLocked(name)}
	for _, ch := range subs {
		offer(ch, snap)
	}
}

func (m *MemoryRepo) Subscribe(ctx context.Context, collection string) <-chan Snapshot {
	subID := uuid.New().String()
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	if _, ok := m.subs[collection]; !ok {
		m.subs[collection] = make(map[string]chan Snapshot)
	}
	m.subs[collection][subID] = ch
	ch <- Snapshot{Collection: collection, Documents: m.listLocked(collection)}
	metrics.FeedSubscribers.WithLabelValues(collection).Inc()
	m.mu.Unlock()

	logger.Debugf("feed: subscriber %s added for %s", subID, collection)

	go func() {
		<-ctx.Done()
		m.unsubscribe(collection, subID)
	}()
	return ch
}

func (m *MemoryRepo) unsubscribe(collection, subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.subs[collection]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(m.subs, collection)
	}
	metrics.FeedSubscribers.WithLabelValues(collection).Dec()
	logger.Debugf("feed: subscriber %s removed from %s", subID, collection)
}

// Close ends every open subscription.
func (m *MemoryRepo) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for name, subs := range m.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
			metrics.FeedSubscribers.WithLabelValues(name).Dec()
		}
		delete(m.subs, name)
	}
}

func (m *MemoryRepo) List(_ context.Context, collection string) ([]content.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(collection), nil
}

func (m *MemoryRepo) Get(_ context.Context, collection, id string) (content.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cols[collection]; ok {
		if d, ok := c.docs[id]; ok {
			return d.Clone(), nil
		}
	}
	return content.Document{}, ErrNotFound
}

func (m *MemoryRepo) Create(_ context.Context, collection string, fields map[string]any) (content.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := content.Document{
		ID:          uuid.New().String(),
		SubmittedAt: m.now(),
		Fields:      content.StripReserved(fields),
	}
	c := m.collection(collection)
	c.docs[d.ID] = d
	c.order = append(c.order, d.ID)
	m.publishLocked(collection)
	return d.Clone(), nil
}

func (m *MemoryRepo) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cols[collection]
	if !ok {
		return ErrNotFound
	}
	d, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	merged := content.CloneFields(d.Fields)
	for k, v := range content.StripReserved(fields) {
		merged[k] = v
	}
	d.Fields = merged
	c.docs[id] = d
	m.publishLocked(collection)
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cols[collection]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	m.publishLocked(collection)
	return nil
}
