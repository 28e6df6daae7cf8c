package workers

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wingscope/backend/analysis"
	"github.com/wingscope/backend/media"
	"github.com/wingscope/backend/models"
	"github.com/wingscope/backend/realtime"
	"github.com/wingscope/backend/session"
)

func testImageBytes(t *testing.T, w, h int, asJPEG bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 3), uint8(y * 5), 90, 255})
		}
	}
	var buf bytes.Buffer
	var err error
	if asJPEG {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		t.Fatalf("encoding fixture failed: %v", err)
	}
	return buf.Bytes()
}

func coordsJSON(v float64) string {
	parts := make([]string, models.LandmarkLen)
	for i := range parts {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func newTestSession(t *testing.T) *session.Store {
	t.Helper()
	previews, err := media.NewPreviewStore(filepath.Join(t.TempDir(), "previews"))
	if err != nil {
		t.Fatalf("NewPreviewStore failed: %v", err)
	}
	return session.NewStore(previews)
}

func addRecord(t *testing.T, store *session.Store, name, mimeType string, data []byte) *models.Record {
	t.Helper()
	mod := time.Now().UnixMilli()
	r, added, err := store.Add(session.Intake{
		Filename:     name,
		MimeType:     mimeType,
		Data:         data,
		LastModified: &mod,
	})
	if err != nil || !added {
		t.Fatalf("Add(%s) failed: added=%v err=%v", name, added, err)
	}
	return r
}

func newTestAnalyzer(t *testing.T, store *session.Store, handler http.HandlerFunc, maxEdge int) *Analyzer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := analysis.NewClient(srv.URL, 10*time.Second)
	a := NewAnalyzer(store, client, realtime.NewHub(), 16, 2, maxEdge, 10*time.Second)
	t.Cleanup(a.Stop)
	return a
}

func waitDone(t *testing.T, b *Batch) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(15 * time.Second):
		t.Fatal("batch did not settle in time")
	}
}

func TestBatchIsolatesPerRecordFailure(t *testing.T) {
	store := newTestSession(t)
	handler := func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		if strings.HasPrefix(header.Filename, "b") {
			http.Error(w, "model exploded", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"coords": %s, "check": false}`, coordsJSON(4))
	}
	a := newTestAnalyzer(t, store, handler, 0)

	img := testImageBytes(t, 8, 6, false)
	r1 := addRecord(t, store, "a.png", "image/png", img)
	r2 := addRecord(t, store, "b.png", "image/png", img)
	r3 := addRecord(t, store, "c.png", "image/png", img)

	b := a.StartBatch([]string{r1.ID, r2.ID, r3.ID})
	waitDone(t, b)

	status := b.Status()
	if status.Completed != 3 || !status.Done {
		t.Errorf("Expected 3/3 done, got %d/%d done=%v", status.Completed, status.Total, status.Done)
	}

	g1, _ := store.Get(r1.ID)
	g2, _ := store.Get(r2.ID)
	g3, _ := store.Get(r3.ID)

	if g1.Status != models.StatusDone || g3.Status != models.StatusDone {
		t.Errorf("Expected done/done for siblings, got %s/%s", g1.Status, g3.Status)
	}
	if g2.Status != models.StatusError {
		t.Errorf("Expected error for failing record, got %s", g2.Status)
	}
	if g2.Error == nil || !strings.Contains(*g2.Error, "500") {
		t.Errorf("Expected diagnostic with status code, got %v", g2.Error)
	}
	if len(g1.Landmarks) != models.LandmarkLen || len(g3.Landmarks) != models.LandmarkLen {
		t.Errorf("Expected %d landmarks on successes, got %d and %d", models.LandmarkLen, len(g1.Landmarks), len(g3.Landmarks))
	}
	if g2.Landmarks != nil {
		t.Error("Expected no landmarks on the failed record")
	}

	// successful records take the processed naming convention
	if g1.Filename != "a.dw.png" || g3.Filename != "c.dw.png" {
		t.Errorf("Expected dw names for successes, got %s and %s", g1.Filename, g3.Filename)
	}
	if g2.Filename != "b.png" {
		t.Errorf("Expected failed record name untouched, got %s", g2.Filename)
	}
}

func TestBatchEmptySelection(t *testing.T) {
	store := newTestSession(t)
	a := newTestAnalyzer(t, store, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	}, 0)

	b := a.StartBatch(nil)
	waitDone(t, b)
	status := b.Status()
	if status.Total != 0 || status.Completed != 0 || !status.Done {
		t.Errorf("Expected immediate empty completion, got %+v", status)
	}

	// unknown IDs are dropped from the snapshot too
	b = a.StartBatch([]string{"no-such-record"})
	waitDone(t, b)
	if status := b.Status(); status.Total != 0 || !status.Done {
		t.Errorf("Expected unknown ID dropped, got %+v", status)
	}
}

func TestBatchDeduplicatesSubmission(t *testing.T) {
	store := newTestSession(t)
	handler := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"coords": %s, "check": false}`, coordsJSON(1))
	}
	a := newTestAnalyzer(t, store, handler, 0)

	r1 := addRecord(t, store, "a.png", "image/png", testImageBytes(t, 8, 6, false))
	b := a.StartBatch([]string{r1.ID, r1.ID, r1.ID})
	waitDone(t, b)
	if status := b.Status(); status.Total != 1 || status.Completed != 1 {
		t.Errorf("Expected duplicate IDs collapsed to 1, got %+v", status)
	}
}

func TestBatchTranscodesJPEGSources(t *testing.T) {
	store := newTestSession(t)
	var gotXSize, gotYSize string
	handler := func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotXSize = r.FormValue("x_size")
		gotYSize = r.FormValue("y_size")
		fmt.Fprintf(w, `{"coords": %s, "check": true}`, coordsJSON(2))
	}
	a := newTestAnalyzer(t, store, handler, 0)

	r1 := addRecord(t, store, "wing.jpg", "image/jpeg", testImageBytes(t, 100, 80, true))
	b := a.StartBatch([]string{r1.ID})
	waitDone(t, b)

	g, _ := store.Get(r1.ID)
	if g.Status != models.StatusDone {
		t.Fatalf("Expected done, got %s (%v)", g.Status, g.Error)
	}
	if g.Filename != "wing.dw.png" {
		t.Errorf("Expected wing.dw.png, got %s", g.Filename)
	}
	if g.MimeType != "image/png" {
		t.Errorf("Expected image/png after transcode, got %s", g.MimeType)
	}
	if !bytes.HasPrefix(g.Source, []byte("\x89PNG")) {
		t.Error("Expected PNG payload after transcode")
	}
	if g.Width == nil || g.Height == nil || *g.Width != 100 || *g.Height != 80 {
		t.Errorf("Expected probed 100x80, got %v/%v", g.Width, g.Height)
	}
	if gotXSize != "100" || gotYSize != "80" {
		t.Errorf("Expected original dimensions posted, got %s/%s", gotXSize, gotYSize)
	}
	if !g.NeedsReview {
		t.Error("Expected needs-review from check flag")
	}
}

func TestBatchDownscalesUploadOnly(t *testing.T) {
	store := newTestSession(t)
	var uploadedW, uploadedH int
	handler := func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		cfg, err := png.DecodeConfig(file)
		if err == nil {
			uploadedW, uploadedH = cfg.Width, cfg.Height
		}
		fmt.Fprintf(w, `{"coords": %s, "check": false}`, coordsJSON(3))
	}
	a := newTestAnalyzer(t, store, handler, 64)

	r1 := addRecord(t, store, "big.png", "image/png", testImageBytes(t, 400, 300, false))
	b := a.StartBatch([]string{r1.ID})
	waitDone(t, b)

	if uploadedW != 64 || uploadedH != 48 {
		t.Errorf("Expected 64x48 uploaded, got %dx%d", uploadedW, uploadedH)
	}
	g, _ := store.Get(r1.ID)
	if g.Width == nil || *g.Width != 400 {
		t.Errorf("Expected record keeps natural width 400, got %v", g.Width)
	}
	// landmarks come back in original coordinate space and stay unscaled
	if g.Landmarks[0] != 3 {
		t.Errorf("Expected landmark 3, got %v", g.Landmarks[0])
	}
}

func TestBatchFailsUndecodableRecord(t *testing.T) {
	store := newTestSession(t)
	handler := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"coords": %s, "check": false}`, coordsJSON(1))
	}
	a := newTestAnalyzer(t, store, handler, 0)

	good := addRecord(t, store, "good.png", "image/png", testImageBytes(t, 8, 6, false))
	bad := addRecord(t, store, "bad.png", "image/png", []byte("not an image"))

	b := a.StartBatch([]string{bad.ID, good.ID})
	waitDone(t, b)

	gBad, _ := store.Get(bad.ID)
	gGood, _ := store.Get(good.ID)
	if gBad.Status != models.StatusError {
		t.Errorf("Expected undecodable record to fail, got %s", gBad.Status)
	}
	if gBad.Error == nil || !strings.Contains(*gBad.Error, "decode") {
		t.Errorf("Expected decode diagnostic, got %v", gBad.Error)
	}
	if gGood.Status != models.StatusDone {
		t.Errorf("Expected sibling unaffected, got %s", gGood.Status)
	}
	if status := b.Status(); status.Completed != 2 {
		t.Errorf("Expected counter to reach 2, got %d", status.Completed)
	}
}

func TestBatchSettlesRemovedRecord(t *testing.T) {
	store := newTestSession(t)
	release := make(chan struct{})
	handler := func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprintf(w, `{"coords": %s, "check": false}`, coordsJSON(1))
	}
	a := newTestAnalyzer(t, store, handler, 0)

	r1 := addRecord(t, store, "a.png", "image/png", testImageBytes(t, 8, 6, false))
	b := a.StartBatch([]string{r1.ID})

	if err := store.Remove(r1.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	close(release)
	waitDone(t, b)

	if status := b.Status(); status.Completed != 1 || !status.Done {
		t.Errorf("Expected removed record to still settle, got %+v", status)
	}
}
