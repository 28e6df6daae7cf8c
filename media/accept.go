package media

import (
	"path/filepath"
	"strings"
)

var acceptedMimeTypes = map[string]bool{
	"image/png": true, "image/jpeg": true,
}

var acceptedImageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
}

// IsAccepted checks whether an upload is an accepted raster image, matching
// on the declared MIME type or the filename extension. Only PNG and JPEG
// make it past intake.
func IsAccepted(mimeType, filename string) bool {
	if acceptedMimeTypes[normalizeMime(mimeType)] {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return acceptedImageExtensions[ext]
}

// IsPNG reports whether the upload already is a PNG by MIME or extension.
func IsPNG(mimeType, filename string) bool {
	if normalizeMime(mimeType) == "image/png" {
		return true
	}
	return strings.ToLower(filepath.Ext(filename)) == ".png"
}

func normalizeMime(mimeType string) string {
	// strip any "; charset=..." style parameters
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
