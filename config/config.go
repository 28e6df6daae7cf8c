package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const DefaultPreviewsSubDir = "previews"

const (
	defaultAnalysisQueueSize     = 200
	defaultNumAnalysisWorkers    = 4
	defaultUploadMaxEdge         = 1024
	defaultAnalyzeTimeoutSeconds = 120
	defaultMaxUploadBytes        = 256 << 20
	defaultAnalyzeEndpoint       = "http://localhost:8000/analyze"
	defaultAllowedOrigins        = "http://localhost:5173"
)

type Config struct {
	// remote landmark detection service
	AnalyzeEndpoint       string
	AnalyzeTimeoutSeconds int

	// media storage configuration
	MediaStoragePath string // primary root for generated assets
	PreviewsPath     string // full-calculated path for preview files

	// upload preparation settings
	UploadMaxEdge  int   // longest edge sent to the detection service, 0 disables downscaling
	MaxUploadBytes int64 // request body cap for intake

	// worker settings
	AnalysisQueueSize  int
	NumAnalysisWorkers int

	// browser clients allowed to call the API
	AllowedOrigins []string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvInt64OrDefault(envVar string, defaultVal int64) int64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func LoadConfig() (Config, error) {
	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	previewsSubDir := getEnvOrDefault("PREVIEWS_SUBDIR", DefaultPreviewsSubDir)
	absPreviewsPath := filepath.Join(absMediaStorage, previewsSubDir)

	endpoint := getEnvOrDefault("ANALYZE_ENDPOINT", defaultAnalyzeEndpoint)
	timeoutSeconds := getEnvIntOrDefault("ANALYZE_TIMEOUT_SECONDS", defaultAnalyzeTimeoutSeconds)

	maxEdge := getEnvIntOrDefault("UPLOAD_MAX_EDGE", defaultUploadMaxEdge)
	maxUploadBytes := getEnvInt64OrDefault("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)

	queueSize := getEnvIntOrDefault("ANALYSIS_QUEUE_SIZE", defaultAnalysisQueueSize)
	numWorkers := getEnvIntOrDefault("NUM_ANALYSIS_WORKERS", defaultNumAnalysisWorkers)

	origins := splitOrigins(getEnvOrDefault("ALLOWED_ORIGINS", defaultAllowedOrigins))

	cfg := Config{
		AnalyzeEndpoint:       endpoint,
		AnalyzeTimeoutSeconds: timeoutSeconds,
		MediaStoragePath:      absMediaStorage,
		PreviewsPath:          absPreviewsPath,
		UploadMaxEdge:         maxEdge,
		MaxUploadBytes:        maxUploadBytes,
		AnalysisQueueSize:     queueSize,
		NumAnalysisWorkers:    numWorkers,
		AllowedOrigins:        origins,
	}

	return cfg, nil
}
