package database

import (
	"context"
)

// FaceReader provides read-only access to enrolled faces
type FaceReader interface {
	// GetFace retrieves a face by ID, returns ErrNotFound if missing
	GetFace(ctx context.Context, id int64) (*FaceRecord, error)
	// ListFaces returns every enrolled face ordered by ID
	ListFaces(ctx context.Context) ([]FaceRecord, error)
	// CountFaces returns the total number of faces stored
	CountFaces(ctx context.Context) (int, error)
	// FindFacesByName returns faces whose name has the same facematch.NameKey,
	// so "jiri_novak" matches "Jiří Novák".
	FindFacesByName(ctx context.Context, name string) ([]FaceRecord, error)
	// FindSimilarFaces returns faces with a cached embedding ordered by Euclidean distance
	FindSimilarFaces(ctx context.Context, embedding []float32, limit int) ([]SimilarFace, error)
}

// FaceWriter provides write access to enrolled faces
type FaceWriter interface {
	// InsertFace stores a new face and sets its ID and timestamps
	InsertFace(ctx context.Context, face *FaceRecord) error
	// UpdateFace replaces name, image and embedding of an existing face
	UpdateFace(ctx context.Context, face *FaceRecord) error
	// DeleteFace removes a face, returns ErrNotFound if missing
	DeleteFace(ctx context.Context, id int64) error
	// DeleteAllFaces removes every face and returns how many were deleted
	DeleteAllFaces(ctx context.Context) (int64, error)
}

// FaceStore is a complete enrollment store
type FaceStore interface {
	FaceReader
	FaceWriter
	Close() error
}

// ChangeSource is implemented by stores that can observe writes made by
// other processes sharing the same storage.
type ChangeSource interface {
	// WatchChanges calls onChange after every committed change until ctx is done.
	WatchChanges(ctx context.Context, onChange func()) error
}
