package media

import (
	"bytes"
	"math"

	"github.com/disintegration/imaging"

	"github.com/wingscope/backend/apperrors"
)

// ProbeDimensions decodes data fully once and returns its natural pixel
// size. Undecodable input yields a decode error, fatal for the record.
func ProbeDimensions(data []byte) (width, height int, err error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, apperrors.NewDecodeError("cannot decode image", err)
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// TranscodeToPNG re-encodes a raster image as PNG at original resolution.
// Decode failure is fatal for the source; encode failure comes back as a
// transcode error so callers can keep the original bytes and move on.
func TranscodeToPNG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError("cannot decode image", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, apperrors.NewTranscodeError("png encoding failed", err)
	}
	return buf.Bytes(), nil
}

// ResizeForUpload scales data so its longest edge equals maxEdge and
// encodes the result as PNG. Inputs already within maxEdge are returned
// unchanged. width and height are the natural dimensions of data.
func ResizeForUpload(data []byte, width, height, maxEdge int) ([]byte, error) {
	if maxEdge <= 0 || (width <= maxEdge && height <= maxEdge) {
		return data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError("cannot decode image", err)
	}
	newWidth, newHeight := fitDimensions(width, height, maxEdge)
	resized := imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, apperrors.NewTranscodeError("png encoding failed", err)
	}
	return buf.Bytes(), nil
}

// fitDimensions shrinks width x height so the longest edge equals maxEdge,
// preserving aspect ratio to within rounding of one pixel.
func fitDimensions(width, height, maxEdge int) (int, int) {
	var newWidth, newHeight int
	if width > height {
		newWidth = maxEdge
		newHeight = int(math.Round(float64(height) * (float64(maxEdge) / float64(width))))
	} else {
		newHeight = maxEdge
		newWidth = int(math.Round(float64(width) * (float64(maxEdge) / float64(height))))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return newWidth, newHeight
}
