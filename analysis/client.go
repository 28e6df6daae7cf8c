// Package analysis wraps the remote landmark detection service behind a
// small HTTP client. The service contract: multipart POST with the image
// under "file" plus x_size/y_size fields carrying the original pixel
// dimensions; JSON response with a coords array and a check flag.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/wingscope/backend/apperrors"
	"github.com/wingscope/backend/models"
)

// Result is one detection outcome: flattened landmark coordinates plus the
// service's low-confidence flag.
type Result struct {
	Landmarks   []float64
	NeedsReview bool
}

// Client calls the remote landmark detection endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Analyze posts image bytes for one record and validates the response into
// exactly models.LandmarkLen finite coordinates. width and height are the
// original (pre-downscale) dimensions; image may be a downscaled copy.
func (c *Client) Analyze(ctx context.Context, filename string, image []byte, width, height int) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create form file", err)
	}
	if _, err := fw.Write(image); err != nil {
		return nil, apperrors.NewInternalError("failed to write form file", err)
	}
	_ = mw.WriteField("x_size", strconv.Itoa(width))
	_ = mw.WriteField("y_size", strconv.Itoa(height))
	if err := mw.Close(); err != nil {
		return nil, apperrors.NewInternalError("failed to finalize form body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build analyze request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("analysis request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("analysis service returned %d: %s", resp.StatusCode, bytes.TrimSpace(b))
		return nil, apperrors.NewBackendError(msg, nil)
	}

	var payload struct {
		Coords json.RawMessage `json:"coords"`
		Check  json.RawMessage `json:"check"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.NewBackendError("malformed analysis response", err)
	}

	coords, err := parseCoords(payload.Coords)
	if err != nil {
		return nil, err
	}
	return &Result{Landmarks: coords, NeedsReview: truthy(payload.Check)}, nil
}

// parseCoords accepts both the flat 38-number form and the nested
// [[x, y], ...] pair form the service emits, coercing numeric strings
// along the way. Anything that does not yield exactly models.LandmarkLen
// finite numbers fails validation.
func parseCoords(raw json.RawMessage) ([]float64, error) {
	if len(raw) == 0 {
		return nil, apperrors.NewValidationError("analysis response has no coords field", nil)
	}
	var outer []any
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, apperrors.NewValidationError("coords is not an array", err)
	}

	flat := make([]any, 0, models.LandmarkLen)
	for _, v := range outer {
		if inner, ok := v.([]any); ok {
			flat = append(flat, inner...)
			continue
		}
		flat = append(flat, v)
	}
	if len(flat) != models.LandmarkLen {
		msg := fmt.Sprintf("expected %d coordinates, got %d", models.LandmarkLen, len(flat))
		return nil, apperrors.NewValidationError(msg, nil)
	}

	coords := make([]float64, len(flat))
	for i, v := range flat {
		f, ok := toFinite(v)
		if !ok {
			msg := fmt.Sprintf("coordinate %d is not a finite number", i)
			return nil, apperrors.NewValidationError(msg, nil)
		}
		coords[i] = f
	}
	return coords, nil
}

func toFinite(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// truthy coerces the check field the way a browser client would: booleans
// pass through, the literal strings "true"/"false" parse as booleans,
// other strings are truthy when non-empty, numbers when non-zero, null and
// absent are false, arrays and objects are always truthy.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch c := v.(type) {
	case bool:
		return c
	case string:
		if c == "true" {
			return true
		}
		if c == "false" {
			return false
		}
		return c != ""
	case float64:
		return c != 0
	case nil:
		return false
	default:
		return true
	}
}
