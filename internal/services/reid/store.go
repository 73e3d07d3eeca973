package reid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Bwilkie91/camera/internal/models"
)

// Store holds embeddings shared by every camera worker.
type Store interface {
	Insert(ctx context.Context, e models.Embedding) (int64, error)
	Nearest(ctx context.Context, vector []float32) (Match, bool, error)
}

// Persister is the durable side of a MemoryStore.
type Persister interface {
	InsertEmbedding(ctx context.Context, e *models.Embedding) (int64, error)
	LoadEmbeddings(ctx context.Context) ([]models.Embedding, error)
}

// MemoryStore keeps embeddings in insertion order behind a read-write lock.
// With a Persister, every insert is written through before it becomes
// visible to queries.
type MemoryStore struct {
	mu        sync.RWMutex
	items     []models.Embedding
	nextID    int64
	threshold float64
	persister Persister
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(threshold float64) *MemoryStore {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &MemoryStore{threshold: threshold, nextID: 1}
}

// NewPersistentStore loads existing embeddings from p and writes new ones through it.
func NewPersistentStore(ctx context.Context, p Persister, threshold float64) (*MemoryStore, error) {
	s := NewMemoryStore(threshold)
	s.persister = p

	items, err := p.LoadEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	s.items = items
	for _, e := range items {
		s.nextID = max(s.nextID, e.ID+1)
	}
	return s, nil
}

// Insert normalizes and stores e, returning its id.
func (s *MemoryStore) Insert(ctx context.Context, e models.Embedding) (int64, error) {
	vec, err := Normalize(e.Vector)
	if err != nil {
		return 0, err
	}
	e.Vector = vec
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persister != nil {
		id, err := s.persister.InsertEmbedding(ctx, &e)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
		}
		e.ID = id
		s.nextID = max(s.nextID, id+1)
	} else {
		e.ID = s.nextID
		s.nextID++
	}

	s.items = append(s.items, e)
	return e.ID, nil
}

// Nearest returns the best match at or above the store's threshold.
func (s *MemoryStore) Nearest(ctx context.Context, vector []float32) (Match, bool, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, false, fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := BestMatch(vector, s.items, s.threshold)
	return m, ok, nil
}

// SetThreshold changes the match threshold for future queries.
func (s *MemoryStore) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
}

// Len returns the number of stored embeddings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
