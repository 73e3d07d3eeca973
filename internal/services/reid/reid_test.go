package reid

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
)

// vectorAt returns a unit 2D vector padded to 4 dimensions whose cosine with
// (1,0,0,0) is cos.
func vectorAt(cos float64) []float32 {
	sin := math.Sqrt(math.Max(0, 1-cos*cos))
	return []float32{float32(cos), float32(sin), 0, 0}
}

var base = []float32{1, 0, 0, 0}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity(base, []float32{3, 0, 0, 0}), 1e-9)
	assert.InDelta(t, 0.95, CosineSimilarity(base, vectorAt(0.95)), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity(base, []float32{-2, 0, 0, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(base, []float32{1, 0}))
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, err = Normalize([]float32{0, 0})
	assert.ErrorIs(t, err, models.ErrInputMalformed)
	_, err = Normalize(nil)
	assert.ErrorIs(t, err, models.ErrInputMalformed)
}

func TestBestMatch(t *testing.T) {
	stored := []models.Embedding{
		{ID: 1, PersonID: "far", Vector: vectorAt(0.10)},
		{ID: 2, PersonID: "short", Vector: []float32{1, 0}},
		{ID: 3, PersonID: "near", Vector: vectorAt(0.95)},
		{ID: 4, PersonID: "twin", Vector: vectorAt(0.95)},
	}

	m, ok := BestMatch(base, stored, DefaultThreshold)
	require.True(t, ok)
	assert.Equal(t, "near", m.PersonID, "ties resolve to the first in storage order")
	assert.Equal(t, int64(3), m.EmbeddingID)

	_, ok = BestMatch(base, stored[:2], DefaultThreshold)
	assert.False(t, ok, "similarity 0.10 never matches")

	_, ok = BestMatch(base, nil, DefaultThreshold)
	assert.False(t, ok)
}

func TestIdentifier_MatchIndependentOfOrder(t *testing.T) {
	for _, order := range [][][]float32{{base, vectorAt(0.95)}, {vectorAt(0.95), base}} {
		store := NewMemoryStore(DefaultThreshold)
		id := NewIdentifier(store, nil, 0, logger.Discard())
		now := time.Unix(1000, 0)

		first, err := id.Resolve(context.Background(), "cam1", order[0], now, models.Appearance{})
		require.NoError(t, err)
		assert.True(t, first.New)

		second, err := id.Resolve(context.Background(), "cam2", order[1], now.Add(time.Minute), models.Appearance{})
		require.NoError(t, err)
		assert.False(t, second.New)
		assert.Equal(t, first.PersonID, second.PersonID)
		assert.Equal(t, 2, store.Len())
	}
}

func TestIdentifier_DissimilarCreatesNewPerson(t *testing.T) {
	store := NewMemoryStore(DefaultThreshold)
	id := NewIdentifier(store, nil, 0, logger.Discard())

	a, err := id.Resolve(context.Background(), "cam1", base, time.Unix(0, 0), models.Appearance{})
	require.NoError(t, err)
	b, err := id.Resolve(context.Background(), "cam1", vectorAt(0.10), time.Unix(10, 0), models.Appearance{})
	require.NoError(t, err)

	assert.True(t, b.New)
	assert.NotEqual(t, a.PersonID, b.PersonID)
}

func TestIdentifier_DimensionMismatch(t *testing.T) {
	id := NewIdentifier(NewMemoryStore(DefaultThreshold), nil, 4, logger.Discard())

	_, err := id.Resolve(context.Background(), "cam1", []float32{1, 0}, time.Unix(0, 0), models.Appearance{})
	assert.ErrorIs(t, err, models.ErrInputMalformed)
}

func TestIdentifier_MalformedFirstVectorDoesNotPinDimension(t *testing.T) {
	id := NewIdentifier(NewMemoryStore(DefaultThreshold), nil, 0, logger.Discard())
	ctx := context.Background()

	_, err := id.Resolve(ctx, "cam1", []float32{0, 0}, time.Unix(0, 0), models.Appearance{})
	require.ErrorIs(t, err, models.ErrInputMalformed)

	got, err := id.Resolve(ctx, "cam1", base, time.Unix(0, 0), models.Appearance{})
	require.NoError(t, err)
	assert.NotEmpty(t, got.PersonID)

	_, err = id.Resolve(ctx, "cam1", []float32{1, 0}, time.Unix(0, 0), models.Appearance{})
	assert.ErrorIs(t, err, models.ErrInputMalformed, "first valid vector pins the dimension")
}

type fakeDirectory struct {
	mu      sync.Mutex
	created []models.Person
	touched []string
	fail    bool
}

func (f *fakeDirectory) CreatePerson(_ context.Context, p *models.Person) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("disk full")
	}
	f.created = append(f.created, *p)
	return nil
}

func (f *fakeDirectory) TouchPerson(_ context.Context, id string, _ time.Time, _ models.Appearance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func TestIdentifier_RecordsPersons(t *testing.T) {
	dir := &fakeDirectory{}
	id := NewIdentifier(NewMemoryStore(DefaultThreshold), dir, 0, logger.Discard())
	height := 175.0

	first, err := id.Resolve(context.Background(), "cam1", base, time.Unix(0, 0), models.Appearance{Clothing: "red top/body", HeightCM: &height})
	require.NoError(t, err)
	_, err = id.Resolve(context.Background(), "cam1", vectorAt(0.99), time.Unix(10, 0), models.Appearance{})
	require.NoError(t, err)

	require.Len(t, dir.created, 1)
	assert.Equal(t, []string{"red top/body"}, dir.created[0].ClothingHistory)
	assert.Equal(t, []float64{175}, dir.created[0].HeightHistory)
	assert.Equal(t, []string{first.PersonID}, dir.touched)
}

func TestIdentifier_DirectoryFailure(t *testing.T) {
	id := NewIdentifier(NewMemoryStore(DefaultThreshold), &fakeDirectory{fail: true}, 0, logger.Discard())

	_, err := id.Resolve(context.Background(), "cam1", base, time.Unix(0, 0), models.Appearance{})
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
}

type memPersister struct {
	rows []models.Embedding
}

func (p *memPersister) InsertEmbedding(_ context.Context, e *models.Embedding) (int64, error) {
	e.ID = int64(len(p.rows) + 100)
	p.rows = append(p.rows, *e)
	return e.ID, nil
}

func (p *memPersister) LoadEmbeddings(context.Context) ([]models.Embedding, error) {
	return append([]models.Embedding(nil), p.rows...), nil
}

func TestPersistentStore_Reload(t *testing.T) {
	p := &memPersister{}
	s, err := NewPersistentStore(context.Background(), p, DefaultThreshold)
	require.NoError(t, err)

	id, err := s.Insert(context.Background(), models.Embedding{PersonID: "p1", Vector: []float32{2, 0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, int64(100), id)

	reloaded, err := NewPersistentStore(context.Background(), p, DefaultThreshold)
	require.NoError(t, err)
	m, ok, err := reloaded.Nearest(context.Background(), base)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", m.PersonID)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(DefaultThreshold)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Insert(context.Background(), models.Embedding{PersonID: "p", Vector: base})
		}()
		go func() {
			defer wg.Done()
			_, _, _ = s.Nearest(context.Background(), base)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewMemoryStore(DefaultThreshold).Nearest(ctx, base)
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
}
