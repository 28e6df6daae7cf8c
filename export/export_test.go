package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/wingscope/backend/codec"
	"github.com/wingscope/backend/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 40), uint8(y * 60), 120, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture failed: %v", err)
	}
	return buf.Bytes()
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func fullLandmarks() []float64 {
	lm := make([]float64, models.LandmarkLen)
	for i := range lm {
		lm[i] = float64(i) + 0.9
	}
	return lm
}

func TestLandmarkTextFormats(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("landmarks:")
	for i := 0; i < models.LandmarkCount; i++ {
		fmt.Fprintf(&sb, "%d %d ", i*2, i*2+1)
	}
	sb.WriteString(";")
	if got := LandmarkText(fullLandmarks()); got != sb.String() {
		t.Errorf("Expected %q, got %q", sb.String(), got)
	}

	empty := "landmarks:" + strings.Repeat("0 0 ", models.LandmarkCount) + ";"
	if got := LandmarkText(nil); got != empty {
		t.Errorf("Expected %q for nil landmarks, got %q", empty, got)
	}

	// truncation is toward zero, and short slices pad with zero pairs
	partial := "landmarks:-1 2 " + strings.Repeat("0 0 ", models.LandmarkCount-1) + ";"
	if got := LandmarkText([]float64{-1.7, 2.9}); got != partial {
		t.Errorf("Expected %q for partial landmarks, got %q", partial, got)
	}
}

func TestBuildArchiveRoundTrip(t *testing.T) {
	alphaSrc := pngBytes(t, 6, 4)
	gammaSrc := pngBytes(t, 3, 5)
	records := []*models.Record{
		{
			Filename:     "alpha.dw.png",
			Source:       alphaSrc,
			Landmarks:    fullLandmarks(),
			Height:       intPtr(4),
			LastModified: int64Ptr(time.Now().UnixMilli()),
		},
		{Filename: "beta.png", Source: pngBytes(t, 2, 2)},
		{Filename: "gamma.dw.png", Source: gammaSrc},
	}

	data, err := BuildArchive(records, time.Now())
	if err != nil {
		t.Fatalf("BuildArchive failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Reading archive back failed: %v", err)
	}

	wantAlpha := codec.InsertTextChunk(alphaSrc, MetadataKeyword, LandmarkText(records[0].Landmarks))
	wantGamma := codec.InsertTextChunk(gammaSrc, MetadataKeyword, LandmarkText(nil))
	wantCSV := []byte(BuildCSV(records))
	want := map[string][]byte{
		"alpha.dw.png": wantAlpha,
		"gamma.dw.png": wantGamma,
		CSVName:        wantCSV,
	}

	if len(zr.File) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(zr.File))
	}
	order := []string{"alpha.dw.png", "gamma.dw.png", CSVName}
	for i, f := range zr.File {
		if f.Name != order[i] {
			t.Errorf("Expected entry %d to be %s, got %s", i, order[i], f.Name)
		}
		expected, ok := want[f.Name]
		if !ok {
			t.Errorf("Unexpected entry %s", f.Name)
			continue
		}
		if f.Method != zip.Store {
			t.Errorf("Expected stored entry for %s, got method %d", f.Name, f.Method)
		}
		if f.Flags&0x0800 == 0 {
			t.Errorf("Expected UTF-8 flag on %s", f.Name)
		}
		if f.UncompressedSize64 != uint64(len(expected)) {
			t.Errorf("Expected %s size %d, got %d", f.Name, len(expected), f.UncompressedSize64)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Opening %s failed: %v", f.Name, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("Reading %s failed: %v", f.Name, err)
		}
		if !bytes.Equal(got, expected) {
			t.Errorf("Entry %s content does not match", f.Name)
		}
	}

	marker := []byte(MetadataKeyword + "\x00" + LandmarkText(records[0].Landmarks))
	if !bytes.Contains(wantAlpha, marker) {
		t.Error("Expected landmark metadata chunk in exported PNG")
	}
	if _, err := png.Decode(bytes.NewReader(wantAlpha)); err != nil {
		t.Errorf("Exported PNG no longer decodes: %v", err)
	}
}

func TestBuildArchiveRequiresProcessedRecords(t *testing.T) {
	records := []*models.Record{
		{Filename: "plain.png", Source: pngBytes(t, 2, 2)},
	}
	if _, err := BuildArchive(records, time.Now()); err == nil {
		t.Error("Expected error when no record has the processed name")
	}
}

func TestBuildCSV(t *testing.T) {
	lmA := make([]float64, models.LandmarkLen)
	lmA[0], lmA[1] = 10.5, 10
	lmB := make([]float64, models.LandmarkLen)
	lmB[0], lmB[1] = 3.25, 4.75
	records := []*models.Record{
		{Filename: "a.dw.png", Height: intPtr(100), Landmarks: lmA},
		{Filename: "b.png", Landmarks: lmB},
		{Filename: "c.png"},
	}

	out := BuildCSV(records)
	lines := strings.Split(out, "\r\n")
	if len(lines) != 5 || lines[4] != "" {
		t.Fatalf("Expected 4 CRLF-terminated rows, got %d lines", len(lines))
	}

	var header strings.Builder
	header.WriteString(`"file"`)
	for i := 1; i <= models.LandmarkCount; i++ {
		fmt.Fprintf(&header, `,"x%d","y%d"`, i, i)
	}
	if lines[0] != header.String() {
		t.Errorf("Expected header %s, got %s", header.String(), lines[0])
	}

	// known height flips Y to a bottom-left origin: 100 - 10 - 2 = 88
	if !strings.HasPrefix(lines[1], `"a.dw.png","10.5","88",`) {
		t.Errorf("Expected flipped first pair, got %s", lines[1])
	}
	if !strings.Contains(lines[1], `"98"`) {
		t.Errorf("Expected zero pairs flipped to 98, got %s", lines[1])
	}

	// no height leaves Y in top-left coordinates
	if !strings.HasPrefix(lines[2], `"b.png","3.25","4.75",`) {
		t.Errorf("Expected raw coordinates, got %s", lines[2])
	}

	if want := `"c.png"` + strings.Repeat(`,""`, models.LandmarkLen); lines[3] != want {
		t.Errorf("Expected empty coordinate fields, got %s", lines[3])
	}
}

func TestBuildCSVQuoteEscaping(t *testing.T) {
	records := []*models.Record{{Filename: `wi"ng.png`}}
	out := BuildCSV(records)
	if !strings.Contains(out, `"wi""ng.png"`) {
		t.Errorf("Expected doubled embedded quote, got %s", out)
	}
}
