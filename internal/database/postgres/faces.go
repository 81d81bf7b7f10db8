package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/facematch"
)

const faceColumns = `id, name, image, embedding, created_at, updated_at`

// FaceRepository provides PostgreSQL-backed storage of enrolled faces.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

// vectorArg converts an embedding into a query argument, NULL when empty.
func vectorArg(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// nameKey is the normalized form used for name lookups.
func nameKey(name string) string {
	return facematch.NameKey(name)
}

// GetFace retrieves a face by ID.
func (r *FaceRepository) GetFace(ctx context.Context, id int64) (*database.FaceRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+faceColumns+` FROM face_records WHERE id = $1`, id)

	face, err := scanFaceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &face, nil
}

// ListFaces returns every face ordered by ID.
func (r *FaceRepository) ListFaces(ctx context.Context) ([]database.FaceRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+faceColumns+` FROM face_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// CountFaces returns the total number of faces stored.
func (r *FaceRepository) CountFaces(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// FindFacesByName matches on the normalized name key written with every record.
func (r *FaceRepository) FindFacesByName(ctx context.Context, name string) ([]database.FaceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+faceColumns+` FROM face_records WHERE name_key = $1 ORDER BY id`, nameKey(name))
	if err != nil {
		return nil, fmt.Errorf("query faces by name: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// FindSimilarFaces ranks faces by L2 distance of their cached embedding using pgvector.
func (r *FaceRepository) FindSimilarFaces(ctx context.Context, embedding []float32, limit int) ([]database.SimilarFace, error) {
	if len(embedding) == 0 {
		return nil, errors.New("embedding is required")
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT ` + faceColumns + `, embedding <-> $1 AS distance
		FROM face_records
		WHERE embedding IS NOT NULL AND vector_dims(embedding) = $2
		ORDER BY distance, id
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(embedding), len(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	var results []database.SimilarFace
	for rows.Next() {
		var dist float64
		face, err := scanFaceRow(rows, &dist)
		if err != nil {
			return nil, err
		}
		results = append(results, database.SimilarFace{FaceRecord: face, Distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar faces: %w", err)
	}
	return results, nil
}

// InsertFace stores a new face and fills in its ID and timestamps.
func (r *FaceRepository) InsertFace(ctx context.Context, face *database.FaceRecord) error {
	face.Name = strings.TrimSpace(face.Name)
	if err := face.Validate(); err != nil {
		return err
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO face_records (name, name_key, image, embedding)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, face.Name, nameKey(face.Name), face.Image, vectorArg(face.Embedding)).
		Scan(&face.ID, &face.CreatedAt, &face.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

// UpdateFace replaces name, image and embedding of an existing face.
func (r *FaceRepository) UpdateFace(ctx context.Context, face *database.FaceRecord) error {
	face.Name = strings.TrimSpace(face.Name)
	if err := face.Validate(); err != nil {
		return err
	}

	err := r.pool.QueryRow(ctx, `
		UPDATE face_records
		SET name = $2, name_key = $3, image = $4, embedding = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, face.ID, face.Name, nameKey(face.Name), face.Image, vectorArg(face.Embedding)).
		Scan(&face.CreatedAt, &face.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update face: %w", err)
	}
	return nil
}

// DeleteFace removes a face.
func (r *FaceRepository) DeleteFace(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM face_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete face: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete face: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DeleteAllFaces removes every face.
func (r *FaceRepository) DeleteAllFaces(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM face_records")
	if err != nil {
		return 0, fmt.Errorf("delete all faces: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all faces: %w", err)
	}
	return n, nil
}

// Close closes the underlying pool.
func (r *FaceRepository) Close() error {
	return r.pool.Close()
}

func scanFaceRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.FaceRecord, error) {
	var face database.FaceRecord
	var vec sql.Null[pgvector.Vector]

	dest := make([]any, 0, 6+len(extraDest))
	dest = append(dest,
		&face.ID,
		&face.Name,
		&face.Image,
		&vec,
		&face.CreatedAt,
		&face.UpdatedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return face, err
		}
		return face, fmt.Errorf("scan face: %w", err)
	}

	if vec.Valid {
		face.Embedding = vec.V.Slice()
	}
	return face, nil
}

func scanFaces(rows *sql.Rows) ([]database.FaceRecord, error) {
	var faces []database.FaceRecord
	for rows.Next() {
		face, err := scanFaceRow(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}
