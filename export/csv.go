package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wingscope/backend/models"
)

// BuildCSV renders the coordinate table: a header row followed by one
// row per record in collection order. Every field is double-quoted.
// Records without landmarks contribute empty coordinate fields. When a
// record's height is known its Y values are flipped to a bottom-left
// origin as height - y - 2, the offset downstream morphometry tooling
// expects.
func BuildCSV(records []*models.Record) string {
	var sb strings.Builder
	writeCSVRow(&sb, csvHeader())
	for _, rec := range records {
		writeCSVRow(&sb, csvRow(rec))
	}
	return sb.String()
}

func csvHeader() []string {
	fields := make([]string, 0, 1+models.LandmarkLen)
	fields = append(fields, "file")
	for i := 1; i <= models.LandmarkCount; i++ {
		fields = append(fields, fmt.Sprintf("x%d", i), fmt.Sprintf("y%d", i))
	}
	return fields
}

func csvRow(rec *models.Record) []string {
	fields := make([]string, 0, 1+models.LandmarkLen)
	fields = append(fields, rec.Filename)
	for i := 0; i < models.LandmarkCount; i++ {
		if len(rec.Landmarks) < (i+1)*2 {
			fields = append(fields, "", "")
			continue
		}
		x, y := rec.Landmarks[i*2], rec.Landmarks[i*2+1]
		if rec.Height != nil {
			y = float64(*rec.Height) - y - 2
		}
		fields = append(fields, formatCoord(x), formatCoord(y))
	}
	return fields
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeCSVRow appends one CRLF-terminated row with every field quoted,
// doubling embedded quotes per RFC 4180.
func writeCSVRow(sb *strings.Builder, fields []string) {
	for i, field := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(field, `"`, `""`))
		sb.WriteByte('"')
	}
	sb.WriteString("\r\n")
}
