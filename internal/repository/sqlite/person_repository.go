package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bwilkie91/camera/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// PersonRepository stores person identities and their visit statistics.
type PersonRepository struct {
	db *DB
}

func NewPersonRepository(db *DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// CreatePerson inserts a new person.
func (r *PersonRepository) CreatePerson(ctx context.Context, p *models.Person) error {
	clothing, heights, err := encodeHistory(p)
	if err != nil {
		return err
	}

	r.db.Lock()
	defer r.db.Unlock()

	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO persons (id, first_seen_utc, last_seen_utc, visit_count, total_dwell_seconds, clothing_json, height_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.FirstSeen.UTC(), p.LastSeen.UTC(), p.VisitCount, p.TotalDwellSeconds, clothing, heights)
	if err != nil {
		return fmt.Errorf("failed to insert person: %w", err)
	}
	return nil
}

// TouchPerson records a re-appearance: last seen and appearance history.
func (r *PersonRepository) TouchPerson(ctx context.Context, id string, seen time.Time, a models.Appearance) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPerson(tx.QueryRowContext(ctx, selectPerson, id))
	if err != nil {
		return err
	}
	if seen.After(p.LastSeen) {
		p.LastSeen = seen.UTC()
	}
	p.Remember(a)

	clothing, heights, err := encodeHistory(p)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE persons SET last_seen_utc = ?, clothing_json = ?, height_json = ? WHERE id = ?
	`, p.LastSeen, clothing, heights, id); err != nil {
		return fmt.Errorf("failed to update person: %w", err)
	}

	return tx.Commit()
}

// RecordVisit counts a finalized track towards the person's totals.
func (r *PersonRepository) RecordVisit(ctx context.Context, id string, dwellSeconds float64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		UPDATE persons SET visit_count = visit_count + 1, total_dwell_seconds = total_dwell_seconds + ?
		WHERE id = ?
	`, dwellSeconds, id)
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns one person.
func (r *PersonRepository) Get(ctx context.Context, id string) (*models.Person, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return scanPerson(r.db.Conn().QueryRowContext(ctx, selectPerson, id))
}

const selectPerson = `
	SELECT id, first_seen_utc, last_seen_utc, visit_count, total_dwell_seconds, clothing_json, height_json
	FROM persons WHERE id = ?
`

func scanPerson(row *sql.Row) (*models.Person, error) {
	var p models.Person
	var clothing, heights string
	err := row.Scan(&p.ID, &p.FirstSeen, &p.LastSeen, &p.VisitCount, &p.TotalDwellSeconds, &clothing, &heights)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan person: %w", err)
	}
	if err := json.Unmarshal([]byte(clothing), &p.ClothingHistory); err != nil {
		return nil, fmt.Errorf("failed to decode clothing history: %w", err)
	}
	if err := json.Unmarshal([]byte(heights), &p.HeightHistory); err != nil {
		return nil, fmt.Errorf("failed to decode height history: %w", err)
	}
	return &p, nil
}

func encodeHistory(p *models.Person) (string, string, error) {
	clothing, err := json.Marshal(orEmpty(p.ClothingHistory))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode clothing history: %w", err)
	}
	heights, err := json.Marshal(orEmpty(p.HeightHistory))
	if err != nil {
		return "", "", fmt.Errorf("failed to encode height history: %w", err)
	}
	return string(clothing), string(heights), nil
}
