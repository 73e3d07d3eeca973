package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Bwilkie91/camera/internal/models"
)

// EmbeddingRepository persists Re-ID embeddings as little-endian float32
// blobs.
type EmbeddingRepository struct {
	db *DB
}

func NewEmbeddingRepository(db *DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// InsertEmbedding appends an embedding and returns its id.
func (r *EmbeddingRepository) InsertEmbedding(ctx context.Context, e *models.Embedding) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO embeddings (person_id, camera_id, dimension, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullString(e.PersonID), e.CameraID, len(e.Vector), encodeVector(e.Vector), e.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert embedding: %w", err)
	}

	return result.LastInsertId()
}

// LoadEmbeddings returns every embedding in insertion order.
func (r *EmbeddingRepository) LoadEmbeddings(ctx context.Context) ([]models.Embedding, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, person_id, camera_id, dimension, vector, created_at FROM embeddings ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.Embedding
	for rows.Next() {
		var e models.Embedding
		var personID sql.NullString
		var dim int
		var blob []byte
		if err := rows.Scan(&e.ID, &personID, &e.CameraID, &dim, &blob, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if len(blob) != dim*4 {
			return nil, fmt.Errorf("embedding %d: %w: blob of %d bytes for dimension %d", e.ID, models.ErrInputMalformed, len(blob), dim)
		}
		e.PersonID = personID.String
		e.Vector = decodeVector(blob)
		out = append(out, e)
	}

	return out, rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
