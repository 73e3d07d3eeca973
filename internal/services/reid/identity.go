package reid

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
)

// PersonDirectory persists person identities.
type PersonDirectory interface {
	CreatePerson(ctx context.Context, p *models.Person) error
	TouchPerson(ctx context.Context, id string, seen time.Time, a models.Appearance) error
}

// Identity is the outcome of resolving one embedding.
type Identity struct {
	PersonID   string
	Similarity float64
	New        bool
}

// Identifier assigns a stable person id to each embedding, creating a new
// person when nothing stored is similar enough.
type Identifier struct {
	store     Store
	persons   PersonDirectory
	dimension atomic.Int64
	logger    *logger.Logger
}

// NewIdentifier creates an identifier. persons may be nil. A zero dimension
// pins the length of the first embedding seen.
func NewIdentifier(store Store, persons PersonDirectory, dimension int, logger *logger.Logger) *Identifier {
	i := &Identifier{store: store, persons: persons, logger: logger}
	i.dimension.Store(int64(dimension))
	return i
}

// Resolve matches vector against the store and records the sighting.
// A malformed vector returns ErrInputMalformed; a failed store call returns
// ErrCollaboratorUnavailable. Either way the caller treats the subject as
// unidentified for this cycle.
func (i *Identifier) Resolve(ctx context.Context, cameraID string, vector []float32, seen time.Time, a models.Appearance) (Identity, error) {
	vec, err := Normalize(vector)
	if err != nil {
		return Identity{}, err
	}
	if err := i.checkDimension(len(vec)); err != nil {
		return Identity{}, err
	}

	match, ok, err := i.store.Nearest(ctx, vec)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: nearest query: %v", models.ErrCollaboratorUnavailable, err)
	}

	var id Identity
	if ok && match.PersonID != "" {
		id = Identity{PersonID: match.PersonID, Similarity: match.Similarity}
		if i.persons != nil {
			if err := i.persons.TouchPerson(ctx, id.PersonID, seen, a); err != nil {
				i.logger.Warning("⚠️  Failed to update person %s: %v", id.PersonID, err)
			}
		}
	} else {
		person := &models.Person{ID: uuid.NewString(), FirstSeen: seen.UTC(), LastSeen: seen.UTC()}
		person.Remember(a)
		if i.persons != nil {
			if err := i.persons.CreatePerson(ctx, person); err != nil {
				return Identity{}, fmt.Errorf("%w: create person: %v", models.ErrCollaboratorUnavailable, err)
			}
		}
		id = Identity{PersonID: person.ID, Similarity: match.Similarity, New: true}
		i.logger.Info("🆕 New person %s on camera %s", person.ID, cameraID)
	}

	if _, err := i.store.Insert(ctx, models.Embedding{PersonID: id.PersonID, CameraID: cameraID, Vector: vec, CreatedAt: seen.UTC()}); err != nil {
		i.logger.Warning("⚠️  Failed to store embedding for person %s: %v", id.PersonID, err)
	}
	return id, nil
}

func (i *Identifier) checkDimension(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty embedding", models.ErrInputMalformed)
	}
	want := i.dimension.Load()
	if want == 0 && i.dimension.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want = i.dimension.Load(); int64(n) != want {
		return fmt.Errorf("%w: embedding dimension %d, want %d", models.ErrInputMalformed, n, want)
	}
	return nil
}
