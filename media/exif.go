package media

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"
)

// CaptureTime extracts the EXIF capture timestamp from data as a Unix
// timestamp. Returns nil when the image carries no readable EXIF block;
// browser uploads routinely lack one.
func CaptureTime(data []byte) *int64 {
	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	dt, err := exifData.DateTime()
	if err != nil {
		return nil
	}
	ts := dt.Unix()
	return &ts
}
