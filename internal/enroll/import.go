package enroll

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/source"
)

// ImportItem is one photo to enroll.
type ImportItem struct {
	Name string
	Path string
}

// ImportResult is the outcome of enrolling one photo.
type ImportResult struct {
	Item ImportItem
	ID   int64
	Err  error
}

// PlanImport lists the photos of dir. Photos directly in dir are named after
// the file ("jane_doe.jpg" becomes "jane doe"); photos in a subdirectory are
// named after the subdirectory.
func PlanImport(dir string) ([]ImportItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var items []ImportItem
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			if source.IsImageFile(path) {
				items = append(items, ImportItem{Name: nameFromFile(e.Name()), Path: path})
			}
			continue
		}

		files, err := source.ListImages(path)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			items = append(items, ImportItem{Name: e.Name(), Path: f})
		}
	}
	return items, nil
}

func nameFromFile(file string) string {
	base := strings.TrimSuffix(file, filepath.Ext(file))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// Import enrolls items with up to concurrency workers. onDone is called after
// each item; results are returned in item order.
func (s *Service) Import(ctx context.Context, items []ImportItem, concurrency int, onDone func(ImportResult)) []ImportResult {
	if concurrency <= 0 {
		concurrency = constants.WorkerPoolSize
	}

	results := make([]ImportResult, len(items))
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item ImportItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := ImportResult{Item: item}
			if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.ID, res.Err = s.importOne(ctx, item)
			}
			if res.Err != nil {
				s.logger.Warn("import failed", "path", item.Path, "error", res.Err)
			}

			mu.Lock()
			results[i] = res
			if onDone != nil {
				onDone(res)
			}
			mu.Unlock()
		}(i, item)
	}

	wg.Wait()
	return results
}

func (s *Service) importOne(ctx context.Context, item ImportItem) (int64, error) {
	data, err := os.ReadFile(item.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to read photo: %w", err)
	}
	photo, err := source.Decode(data)
	if err != nil {
		return 0, err
	}

	rec, err := s.Enroll(ctx, item.Name, photo)
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}
