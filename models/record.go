package models

// LandmarkCount is the number of predicted points per image.
const LandmarkCount = 19

// LandmarkLen is the flattened coordinate count (x then y per point).
const LandmarkLen = LandmarkCount * 2

// RecordStatus tags a record's position in the intake/analyze/review
// lifecycle.
type RecordStatus string

const (
	StatusNew       RecordStatus = "new"
	StatusUploading RecordStatus = "uploading"
	StatusEdit      RecordStatus = "edit"
	StatusDone      RecordStatus = "done"
	StatusError     RecordStatus = "error"
)

// Record represents one uploaded image and its derived annotation state.
// Source holds the owned binary payload; it is treated as immutable and
// replaced wholesale, never written through.
type Record struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`

	LastModified *int64 `json:"last_modified,omitempty"` // Unix millis from the client
	TakenAt      *int64 `json:"taken_at,omitempty"`      // Nullable, Unix timestamp from EXIF

	PreviewID  string `json:"-"`
	PreviewURL string `json:"preview_url"`

	Status RecordStatus `json:"status"`
	Error  *string      `json:"error,omitempty"` // Nullable, set only when Status is error

	Width  *int `json:"width,omitempty"`  // Nullable until probed
	Height *int `json:"height,omitempty"` // Nullable until probed

	// Landmarks, when present, holds exactly LandmarkLen finite values.
	Landmarks   []float64 `json:"landmarks,omitempty"`
	NeedsReview bool      `json:"needs_review"`

	CreatedAt int64  `json:"created_at"` // Unix millis, intake order tiebreak is insertion order
	Source    []byte `json:"-"`
}

// Clone returns a copy safe to mutate without affecting holders of the
// original pointer. Source is shared (immutable payload); every nullable
// field and the landmark slice are deep-copied.
func (r *Record) Clone() *Record {
	c := *r
	if r.Landmarks != nil {
		c.Landmarks = append([]float64(nil), r.Landmarks...)
	}
	c.LastModified = cloneInt64(r.LastModified)
	c.TakenAt = cloneInt64(r.TakenAt)
	c.Width = cloneInt(r.Width)
	c.Height = cloneInt(r.Height)
	c.Error = cloneString(r.Error)
	return &c
}

// HasDimensions reports whether both natural dimensions are known.
func (r *Record) HasDimensions() bool {
	return r.Width != nil && r.Height != nil
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
