package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wingscope/backend/media"
)

// PreviewServer creates a handler serving preview files straight from
// the preview store's working directory. Preview filenames are
// generated server-side, so any request path that does not resolve
// inside the store is refused.
func PreviewServer(previews *media.PreviewStore) http.HandlerFunc {
	baseDir := filepath.Clean(previews.Dir())
	log.Printf("Serving previews for '%s*' from directory: %s", media.PreviewBaseURL, baseDir)

	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := strings.TrimPrefix(r.URL.Path, media.PreviewBaseURL)
		if relativePath == "" || strings.Contains(relativePath, "..") {
			http.Error(w, "Invalid preview path", http.StatusBadRequest)
			return
		}

		requestedPath := filepath.Join(baseDir, relativePath)
		cleanedPath := filepath.Clean(requestedPath)
		if !strings.HasPrefix(cleanedPath, baseDir) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			log.Printf("SECURITY: Attempted preview access outside store: Request='%s', Resolved='%s'", r.URL.Path, cleanedPath)
			return
		}

		if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Printf("Error stating preview file %s: %v", cleanedPath, err)
			return
		}

		// preview files never change once written; replacements get a
		// fresh name
		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, cleanedPath)
	}
}
