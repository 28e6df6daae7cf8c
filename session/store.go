// Package session holds the in-memory collection of image records for the
// active working session. Records are treated as immutable snapshots:
// every mutation clones the record and swaps the pointer under the store
// lock, so readers holding a snapshot never observe partial updates.
package session

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/facette/natsort"
	"github.com/google/uuid"

	"github.com/wingscope/backend/apperrors"
	"github.com/wingscope/backend/media"
	"github.com/wingscope/backend/models"
	"github.com/wingscope/backend/naming"
)

// Intake describes one uploaded file prior to record creation.
type Intake struct {
	Filename     string
	MimeType     string
	Data         []byte
	LastModified *int64 // Unix millis reported by the client, optional
}

// Stats summarizes the collection for the health endpoint.
type Stats struct {
	Total        int                         `json:"total"`
	ByStatus     map[models.RecordStatus]int `json:"by_status"`
	LivePreviews int                         `json:"live_previews"`
}

// Store is the collection of records plus the registries that keep
// filenames unique and uploads deduplicated.
type Store struct {
	mu       sync.RWMutex
	records  []*models.Record  // insertion order
	names    map[string]string // lowercase filename -> record ID
	keys     map[string]string // identity key -> record ID
	keyByID  map[string]string // record ID -> identity key
	previews *media.PreviewStore
}

func NewStore(previews *media.PreviewStore) *Store {
	return &Store{
		names:    make(map[string]string),
		keys:     make(map[string]string),
		keyByID:  make(map[string]string),
		previews: previews,
	}
}

// identityKey is the dedup key for an upload: name, size and client
// modification time together identify a file across repeated drops.
func identityKey(filename string, size int, lastModified *int64) string {
	mod := int64(0)
	if lastModified != nil {
		mod = *lastModified
	}
	return fmt.Sprintf("%s|%d|%d", filename, size, mod)
}

// Add creates a record for one upload. Re-dropping a file already in the
// collection returns the existing record with added=false and acquires
// nothing.
func (s *Store) Add(in Intake) (rec *models.Record, added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey(in.Filename, len(in.Data), in.LastModified)
	if id, dup := s.keys[key]; dup {
		if existing, ok := s.byIDLocked(id); ok {
			return existing, false, nil
		}
	}

	name := naming.EnsureUnique(naming.UploadName(in.Filename), s.usedNamesLocked(""))
	preview, err := s.previews.Acquire(in.Data, naming.Ext(name))
	if err != nil {
		return nil, false, apperrors.NewInternalError("failed to stage preview", err)
	}

	r := &models.Record{
		ID:           uuid.NewString(),
		Filename:     name,
		MimeType:     in.MimeType,
		Size:         int64(len(in.Data)),
		LastModified: in.LastModified,
		TakenAt:      media.CaptureTime(in.Data),
		PreviewID:    preview.ID,
		PreviewURL:   preview.URL,
		Status:       models.StatusNew,
		CreatedAt:    time.Now().UnixMilli(),
		Source:       in.Data,
	}
	s.records = append(s.records, r)
	s.names[strings.ToLower(name)] = r.ID
	s.keys[key] = r.ID
	s.keyByID[r.ID] = key
	return r, true, nil
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (*models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byIDLocked(id)
}

// Snapshot returns the records in intake order. The slice is the caller's;
// the records are shared immutable snapshots.
func (s *Store) Snapshot() []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, len(s.records))
	copy(out, s.records)
	return out
}

// List returns the records ordered by the given sort option. Date sorts
// fall back from EXIF capture time to client modification time to intake
// time.
func (s *Store) List(order string) []*models.Record {
	out := s.Snapshot()
	switch order {
	case SortFilenameAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Filename) < strings.ToLower(out[j].Filename)
		})
	case SortFilenameNat:
		sort.SliceStable(out, func(i, j int) bool {
			return natsort.Compare(strings.ToLower(out[i].Filename), strings.ToLower(out[j].Filename))
		})
	case SortDateAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return sortDate(out[i]) < sortDate(out[j])
		})
	case SortDateDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return sortDate(out[i]) > sortDate(out[j])
		})
	}
	return out
}

func sortDate(r *models.Record) int64 {
	if r.TakenAt != nil {
		return *r.TakenAt * 1000
	}
	if r.LastModified != nil {
		return *r.LastModified
	}
	return r.CreatedAt
}

// IDsByStatus returns, in intake order, the IDs of records whose status is
// one of the given set.
func (s *Store) IDsByStatus(statuses ...models.RecordStatus) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, r := range s.records {
		for _, st := range statuses {
			if r.Status == st {
				ids = append(ids, r.ID)
				break
			}
		}
	}
	return ids
}

// Rename applies a proposed name to a record via the naming policy: the
// record's semantic extension is preserved and the result is uniquified
// against every other record. Blank names are rejected.
func (s *Store) Rename(id, proposed string) (*models.Record, error) {
	proposed = strings.TrimSpace(proposed)
	if proposed == "" {
		return nil, apperrors.NewValidationError("name must not be empty", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byIDLocked(id)
	if !ok {
		return nil, apperrors.NewNotFoundError("record not found", nil)
	}
	newName := naming.EnsureUnique(naming.Rebase(r.Filename, proposed), s.usedNamesLocked(id))
	if newName == r.Filename {
		return r, nil
	}

	c := r.Clone()
	c.Filename = newName
	s.replaceLocked(c)
	return c, nil
}

// UpdatePoint writes one landmark on a record, clamping both coordinates
// into the record's own pixel bounds. Editing clears the needs-review flag
// and moves a done record into the edit state.
func (s *Store) UpdatePoint(id string, pointIndex int, x, y float64) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byIDLocked(id)
	if !ok {
		return nil, apperrors.NewNotFoundError("record not found", nil)
	}
	if pointIndex < 0 || pointIndex >= models.LandmarkCount {
		return nil, apperrors.NewValidationError(fmt.Sprintf("point index %d out of range", pointIndex), nil)
	}
	if r.Landmarks == nil {
		return nil, apperrors.NewValidationError("record has no landmarks to edit", nil)
	}
	if !r.HasDimensions() {
		return nil, apperrors.NewValidationError("record dimensions are unknown", nil)
	}

	c := r.Clone()
	c.Landmarks[pointIndex*2] = clamp(x, 0, float64(*r.Width))
	c.Landmarks[pointIndex*2+1] = clamp(y, 0, float64(*r.Height))
	c.NeedsReview = false
	if c.Status == models.StatusDone {
		c.Status = models.StatusEdit
	}
	s.replaceLocked(c)
	return c, nil
}

// NextNeedsReview implements the review cursor: when the record behind
// afterID is itself flagged, the next flagged record in intake order after
// it (wrapping, so a lone flagged record yields itself); otherwise the
// first flagged record.
func (s *Store) NextNeedsReview(afterID string) (*models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := -1
	if afterID != "" {
		for i, r := range s.records {
			if r.ID == afterID {
				idx = i
				break
			}
		}
	}
	if idx >= 0 && s.records[idx].NeedsReview {
		n := len(s.records)
		for off := 1; off <= n; off++ {
			if r := s.records[(idx+off)%n]; r.NeedsReview {
				return r, true
			}
		}
	}
	for _, r := range s.records {
		if r.NeedsReview {
			return r, true
		}
	}
	return nil, false
}

// Remove releases the record's preview handle and deletes it from every
// registry.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byIDLocked(id)
	if !ok {
		return apperrors.NewNotFoundError("record not found", nil)
	}
	if err := s.previews.Release(r.PreviewID); err != nil {
		log.Printf("session: Failed releasing preview for %s: %v", r.Filename, err)
	}
	for i, cur := range s.records {
		if cur.ID == id {
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			break
		}
	}
	delete(s.names, strings.ToLower(r.Filename))
	if key, ok := s.keyByID[id]; ok {
		delete(s.keys, key)
		delete(s.keyByID, id)
	}
	return nil
}

// Clear removes every record, releasing all preview handles. Returns the
// number of records removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	for _, r := range s.records {
		if err := s.previews.Release(r.PreviewID); err != nil {
			log.Printf("session: Failed releasing preview for %s: %v", r.Filename, err)
		}
	}
	s.records = nil
	s.names = make(map[string]string)
	s.keys = make(map[string]string)
	s.keyByID = make(map[string]string)
	return n
}

// Stats counts records per status.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:        len(s.records),
		ByStatus:     make(map[models.RecordStatus]int),
		LivePreviews: s.previews.Live(),
	}
	for _, r := range s.records {
		st.ByStatus[r.Status]++
	}
	return st
}

// MarkUploading flags a record as in-flight for analysis, clearing any
// stale error.
func (s *Store) MarkUploading(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byIDLocked(id); ok {
		c := r.Clone()
		c.Status = models.StatusUploading
		c.Error = nil
		s.replaceLocked(c)
	}
}

// SetDimensions records the probed natural size of a record's image.
func (s *Store) SetDimensions(id string, width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byIDLocked(id); ok {
		c := r.Clone()
		c.Width = &width
		c.Height = &height
		s.replaceLocked(c)
	}
}

// SetError marks a record failed with a diagnostic. Existing landmarks are
// left in place; the failure describes this attempt, not past results.
func (s *Store) SetError(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byIDLocked(id); ok {
		c := r.Clone()
		c.Status = models.StatusError
		c.Error = &message
		s.replaceLocked(c)
	}
}

// ReplaceSource swaps a record's payload for transcoded bytes: a fresh
// preview is staged first, the record flips to the new payload and name,
// and only then is the old preview handle released. The filename keeps its
// stem but takes the .png extension, uniquified against the collection.
func (s *Store) ReplaceSource(id string, data []byte, mimeType string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byIDLocked(id)
	if !ok {
		return nil, apperrors.NewNotFoundError("record not found", nil)
	}

	newName := r.Filename
	if ext := naming.Ext(r.Filename); !strings.EqualFold(ext, ".png") {
		candidate := r.Filename[:len(r.Filename)-len(ext)] + ".png"
		newName = naming.EnsureUnique(candidate, s.usedNamesLocked(id))
	}

	preview, err := s.previews.Acquire(data, ".png")
	if err != nil {
		return nil, apperrors.NewInternalError("failed to stage preview", err)
	}

	c := r.Clone()
	c.Source = data
	c.Size = int64(len(data))
	c.MimeType = mimeType
	c.Filename = newName
	oldPreview := c.PreviewID
	c.PreviewID = preview.ID
	c.PreviewURL = preview.URL
	s.replaceLocked(c)

	if err := s.previews.Release(oldPreview); err != nil {
		log.Printf("session: Failed releasing replaced preview for %s: %v", c.Filename, err)
	}
	return c, nil
}

// ApplyAnalysis merges a successful detection result into a record. Every
// coordinate is clamped into the record's own pixel bounds on the way in.
func (s *Store) ApplyAnalysis(id string, landmarks []float64, needsReview bool) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byIDLocked(id)
	if !ok {
		return nil, apperrors.NewNotFoundError("record not found", nil)
	}
	if len(landmarks) != models.LandmarkLen {
		return nil, apperrors.NewValidationError(fmt.Sprintf("expected %d coordinates, got %d", models.LandmarkLen, len(landmarks)), nil)
	}
	if !r.HasDimensions() {
		return nil, apperrors.NewValidationError("record dimensions are unknown", nil)
	}

	c := r.Clone()
	c.Landmarks = make([]float64, models.LandmarkLen)
	for i := 0; i < models.LandmarkCount; i++ {
		c.Landmarks[i*2] = clamp(landmarks[i*2], 0, float64(*r.Width))
		c.Landmarks[i*2+1] = clamp(landmarks[i*2+1], 0, float64(*r.Height))
	}
	c.Status = models.StatusDone
	c.NeedsReview = needsReview
	c.Error = nil
	s.replaceLocked(c)
	return c, nil
}

// FinalizeBatchNames renames the successfully analyzed records of a batch
// to the .dw.png convention in one atomic pass. orderedIDs is the batch's
// submission order; earlier submissions win name collisions. Names of
// records outside the batch are never touched.
func (s *Store) FinalizeBatchNames(orderedIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	renaming := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		r, ok := s.byIDLocked(id)
		if !ok {
			continue
		}
		if r.Landmarks != nil && (r.Status == models.StatusDone || r.Status == models.StatusEdit) {
			renaming[id] = true
		}
	}
	if len(renaming) == 0 {
		return
	}

	used := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		if !renaming[r.ID] {
			used[strings.ToLower(r.Filename)] = struct{}{}
		}
	}

	for _, id := range orderedIDs {
		if !renaming[id] {
			continue
		}
		r, _ := s.byIDLocked(id)
		newName := naming.EnsureUnique(naming.DwName(r.Filename), used)
		if newName == r.Filename {
			continue
		}
		c := r.Clone()
		c.Filename = newName
		s.replaceLocked(c)
	}
}

func (s *Store) byIDLocked(id string) (*models.Record, bool) {
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// usedNamesLocked builds the uniqueness set of every filename except the
// one belonging to exceptID.
func (s *Store) usedNamesLocked(exceptID string) map[string]struct{} {
	used := make(map[string]struct{}, len(s.names))
	for name, id := range s.names {
		if exceptID != "" && id == exceptID {
			continue
		}
		used[name] = struct{}{}
	}
	return used
}

// replaceLocked swaps the stored pointer for a mutated clone and keeps the
// name registry aligned with it.
func (s *Store) replaceLocked(c *models.Record) {
	for i, cur := range s.records {
		if cur.ID == c.ID {
			if cur.Filename != c.Filename {
				delete(s.names, strings.ToLower(cur.Filename))
				s.names[strings.ToLower(c.Filename)] = c.ID
			}
			s.records[i] = c
			return
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
