package media

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PreviewBaseURL is the public route previews are served under.
const PreviewBaseURL = "/api/previews/"

// Preview is a revocable handle to a renderable copy of an upload.
type Preview struct {
	ID  string
	URL string
}

// PreviewStore owns the scratch directory of preview files. Every record
// holds exactly one handle; Acquire and Release pair with record creation
// and destruction so no file outlives its record.
type PreviewStore struct {
	dir string

	mu   sync.Mutex
	live map[string]string // handle ID -> absolute file path
}

// NewPreviewStore creates the scratch directory, discarding anything a
// previous run left behind.
func NewPreviewStore(dir string) (*PreviewStore, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid preview path '%s': %w", dir, err)
	}
	if err := os.RemoveAll(absDir); err != nil {
		return nil, fmt.Errorf("failed to clear preview directory '%s': %w", absDir, err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preview directory '%s': %w", absDir, err)
	}
	log.Printf("media.previews: Initialized preview store at %s", absDir)
	return &PreviewStore{dir: absDir, live: make(map[string]string)}, nil
}

// Dir returns the absolute scratch directory previews live in.
func (ps *PreviewStore) Dir() string {
	return ps.dir
}

// Acquire writes data to a fresh preview file and returns its handle.
func (ps *PreviewStore) Acquire(data []byte, ext string) (Preview, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	id := uuid.NewString()
	filename := id + strings.ToLower(ext)
	fullPath := filepath.Join(ps.dir, filename)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return Preview{}, fmt.Errorf("failed to write preview file '%s': %w", fullPath, err)
	}

	ps.mu.Lock()
	ps.live[id] = fullPath
	ps.mu.Unlock()
	return Preview{ID: id, URL: PreviewBaseURL + filename}, nil
}

// Release deletes the preview file behind id. A handle releases exactly
// once; a second release reports an error.
func (ps *PreviewStore) Release(id string) error {
	ps.mu.Lock()
	fullPath, ok := ps.live[id]
	if ok {
		delete(ps.live, id)
	}
	ps.mu.Unlock()

	if !ok {
		return fmt.Errorf("preview handle '%s' is not live", id)
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete preview '%s': %w", fullPath, err)
	}
	return nil
}

// Live returns the number of outstanding handles.
func (ps *PreviewStore) Live() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.live)
}

// Close releases every outstanding handle.
func (ps *PreviewStore) Close() error {
	ps.mu.Lock()
	live := ps.live
	ps.live = make(map[string]string)
	ps.mu.Unlock()

	var firstErr error
	for id, fullPath := range live {
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			log.Printf("media.previews: Failed deleting preview %s: %v", id, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete preview '%s': %w", fullPath, err)
			}
		}
	}
	return firstErr
}
