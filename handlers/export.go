package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wingscope/backend/export"
	"github.com/wingscope/backend/session"
)

// ExportHandler streams the results package for download. Both
// endpoints snapshot the collection at request time.
type ExportHandler struct {
	Store *session.Store
}

func NewExportHandler(store *session.Store) *ExportHandler {
	return &ExportHandler{Store: store}
}

// DownloadArchive builds the ZIP of annotated PNGs plus the coordinate
// table and serves it as an attachment.
func (h *ExportHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	records := h.Store.Snapshot()
	data, err := export.BuildArchive(records, time.Now())
	if err != nil {
		if strings.Contains(err.Error(), "no processed records") {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "No processed records to export"})
		} else {
			log.Printf("Error building export archive: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to build archive"})
		}
		return
	}

	name := export.ArchiveName()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		log.Printf("Error streaming archive %s: %v", name, err)
		return
	}
	log.Printf("Successfully served archive %s (%d bytes)", name, len(data))
}

// DownloadCSV serves the coordinate table on its own.
func (h *ExportHandler) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	csv := export.BuildCSV(h.Store.Snapshot())
	name := fmt.Sprintf("landmarks_%d.csv", time.Now().Unix())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(csv)))
	if _, err := w.Write([]byte(csv)); err != nil {
		log.Printf("Error streaming CSV %s: %v", name, err)
	}
}
