// Package memory provides an in-memory enrollment store. It backs the
// "memory" store backend and doubles as a test double with error injection.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/vision-assist/internal/config"
	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/facematch"
)

func init() {
	database.RegisterBackend("memory", func(context.Context, *config.DatabaseConfig) (database.FaceStore, error) {
		return NewFaceStore(), nil
	})
}

// FaceStore is an in-memory implementation of database.FaceStore
type FaceStore struct {
	mu     sync.RWMutex
	faces  map[int64]*database.FaceRecord
	nextID int64
	now    func() time.Time

	// Error injection
	GetError       error
	ListError      error
	CountError     error
	FindError      error
	InsertError    error
	UpdateError    error
	DeleteError    error
	DeleteAllError error
}

// NewFaceStore creates an empty store
func NewFaceStore() *FaceStore {
	return &FaceStore{
		faces:  make(map[int64]*database.FaceRecord),
		nextID: 1,
		now:    time.Now,
	}
}

// AddFace stores a face without validation or error injection and returns its ID
func (m *FaceStore) AddFace(face database.FaceRecord) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if face.ID == 0 {
		face.ID = m.nextID
	}
	if face.ID >= m.nextID {
		m.nextID = face.ID + 1
	}
	m.faces[face.ID] = cloneFace(&face)
	return face.ID
}

func cloneFace(f *database.FaceRecord) *database.FaceRecord {
	c := *f
	c.Embedding = slices.Clone(f.Embedding)
	return &c
}

// GetFace retrieves a face by ID
func (m *FaceStore) GetFace(ctx context.Context, id int64) (*database.FaceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	face, ok := m.faces[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneFace(face), nil
}

// ListFaces returns all faces ordered by ID
func (m *FaceStore) ListFaces(ctx context.Context) ([]database.FaceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked(), nil
}

func (m *FaceStore) sortedLocked() []database.FaceRecord {
	result := make([]database.FaceRecord, 0, len(m.faces))
	for _, f := range m.faces {
		result = append(result, *cloneFace(f))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// CountFaces returns the number of faces
func (m *FaceStore) CountFaces(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces), nil
}

// FindFacesByName returns faces whose normalized name equals the normalized input
func (m *FaceStore) FindFacesByName(ctx context.Context, name string) ([]database.FaceRecord, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	normalized := facematch.NameKey(name)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.FaceRecord
	for _, f := range m.sortedLocked() {
		if facematch.NameKey(f.Name) == normalized {
			result = append(result, f)
		}
	}
	return result, nil
}

// FindSimilarFaces ranks faces with a cached embedding by Euclidean distance
func (m *FaceStore) FindSimilarFaces(ctx context.Context, embedding []float32, limit int) ([]database.SimilarFace, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.SimilarFace
	for _, f := range m.sortedLocked() {
		d, err := facematch.EuclideanDistance(embedding, f.Embedding)
		if err != nil {
			continue
		}
		results = append(results, database.SimilarFace{FaceRecord: f, Distance: d})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// InsertFace stores a new face
func (m *FaceStore) InsertFace(ctx context.Context, face *database.FaceRecord) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	face.Name = strings.TrimSpace(face.Name)
	if err := face.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	face.ID = m.nextID
	m.nextID++
	face.CreatedAt = m.now()
	face.UpdatedAt = face.CreatedAt
	m.faces[face.ID] = cloneFace(face)
	return nil
}

// UpdateFace replaces an existing face
func (m *FaceStore) UpdateFace(ctx context.Context, face *database.FaceRecord) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	face.Name = strings.TrimSpace(face.Name)
	if err := face.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.faces[face.ID]
	if !ok {
		return database.ErrNotFound
	}
	face.CreatedAt = existing.CreatedAt
	face.UpdatedAt = m.now()
	m.faces[face.ID] = cloneFace(face)
	return nil
}

// DeleteFace removes a face
func (m *FaceStore) DeleteFace(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.faces[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.faces, id)
	return nil
}

// DeleteAllFaces removes every face
func (m *FaceStore) DeleteAllFaces(ctx context.Context) (int64, error) {
	if m.DeleteAllError != nil {
		return 0, m.DeleteAllError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.faces))
	m.faces = make(map[int64]*database.FaceRecord)
	return n, nil
}

// Close is a no-op
func (m *FaceStore) Close() error {
	return nil
}
