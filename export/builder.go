// Package export assembles the downloadable results package: annotated
// PNG copies of every processed record plus a coordinate table, packed
// into a single stored-method ZIP archive.
package export

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wingscope/backend/codec"
	"github.com/wingscope/backend/models"
	"github.com/wingscope/backend/naming"
)

// MetadataKeyword is the tEXt keyword carrying landmark coordinates
// inside exported PNGs, matching the convention morphometry tools read.
const MetadataKeyword = "IdentiFly"

// CSVName is the coordinate table's entry name inside the archive.
const CSVName = "landmarks.csv"

// LandmarkText renders landmarks as the metadata chunk value:
// "landmarks:" followed by 19 space-separated coordinate pairs and a
// closing semicolon. Coordinates are truncated toward zero; pairs
// beyond the end of the slice render as "0 0".
func LandmarkText(landmarks []float64) string {
	var sb strings.Builder
	sb.WriteString("landmarks:")
	for i := 0; i < models.LandmarkCount; i++ {
		x, y := 0.0, 0.0
		if len(landmarks) >= (i+1)*2 {
			x, y = landmarks[i*2], landmarks[i*2+1]
		}
		fmt.Fprintf(&sb, "%d %d ", int(x), int(y))
	}
	sb.WriteString(";")
	return sb.String()
}

// ArchiveName returns a fresh download filename for one export.
func ArchiveName() string {
	archiveUUID, _ := uuid.NewRandom()
	return fmt.Sprintf("landmarks_%d_%s.zip", time.Now().Unix(), archiveUUID.String()[:8])
}

// BuildArchive packages every record following the processed naming
// convention into a ZIP archive: each PNG with its landmark metadata
// chunk embedded, plus a CSV covering the full collection. Records is
// expected in collection order; entry order follows it. Returns an
// error when no record qualifies.
func BuildArchive(records []*models.Record, now time.Time) ([]byte, error) {
	var selected []*models.Record
	for _, rec := range records {
		if naming.IsDwName(rec.Filename) {
			selected = append(selected, rec)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no processed records to export")
	}
	log.Printf("export: Archiving %d processed record(s)", len(selected))

	var buf bytes.Buffer
	zw := codec.NewZipWriter(&buf)
	for _, rec := range selected {
		payload := codec.InsertTextChunk(rec.Source, MetadataKeyword, LandmarkText(rec.Landmarks))
		if err := zw.Add(rec.Filename, payload, entryModTime(rec, now)); err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", rec.Filename, err)
		}
	}
	if err := zw.Add(CSVName, []byte(BuildCSV(records)), now); err != nil {
		return nil, fmt.Errorf("failed to add %s to archive: %w", CSVName, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// entryModTime picks the archive timestamp for one record, preferring
// the source file's own modification time.
func entryModTime(rec *models.Record, now time.Time) time.Time {
	if rec.LastModified != nil {
		return time.UnixMilli(*rec.LastModified)
	}
	return now
}
