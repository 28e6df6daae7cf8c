package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wingscope/backend/apperrors"
	"github.com/wingscope/backend/media"
	"github.com/wingscope/backend/models"
	"github.com/wingscope/backend/realtime"
	"github.com/wingscope/backend/session"
)

// RecordHandler serves the record collection: intake, listing, review
// edits and removal.
type RecordHandler struct {
	Store          *session.Store
	Hub            *realtime.Hub
	MaxUploadBytes int64
}

func NewRecordHandler(store *session.Store, hub *realtime.Hub, maxUploadBytes int64) *RecordHandler {
	return &RecordHandler{
		Store:          store,
		Hub:            hub,
		MaxUploadBytes: maxUploadBytes,
	}
}

// UploadRecords handles multipart image uploads. Each file part may be
// preceded by a last_modified part carrying the client's Unix-millis
// file time; parts pair up in submission order.
func (h *RecordHandler) UploadRecords(w http.ResponseWriter, r *http.Request) {
	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid multipart form: " + err.Error()})
		return
	}

	var modQueue []*int64
	added := []*models.Record{}
	skipped := 0
	duplicates := 0
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("UploadRecords: error reading part: %v", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed upload data"})
			return
		}

		field := part.FormName()
		if field == "last_modified" {
			data, _ := io.ReadAll(part)
			if ms, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); perr == nil {
				modQueue = append(modQueue, &ms)
			} else {
				modQueue = append(modQueue, nil)
			}
			continue
		}
		if field != "files" {
			// ignore unknown fields
			continue
		}

		filename := part.FileName()
		var lastModified *int64
		if len(modQueue) > 0 {
			lastModified = modQueue[0]
			modQueue = modQueue[1:]
		}

		data, err := io.ReadAll(part)
		if err != nil {
			log.Printf("UploadRecords: read error for %s: %v", filename, err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed upload data"})
			return
		}

		mimeType := part.Header.Get("Content-Type")
		if !media.IsAccepted(mimeType, filename) {
			log.Printf("UploadRecords: rejecting %s (%s): unsupported type", filename, mimeType)
			skipped++
			h.broadcastUpload("", filename, "error", "unsupported file type")
			continue
		}

		rec, wasAdded, err := h.Store.Add(session.Intake{
			Filename:     filename,
			MimeType:     mimeType,
			Data:         data,
			LastModified: lastModified,
		})
		if err != nil {
			log.Printf("UploadRecords: intake error for %s: %v", filename, err)
			skipped++
			h.broadcastUpload("", filename, "error", err.Error())
			continue
		}
		if !wasAdded {
			duplicates++
			h.broadcastUpload(rec.ID, rec.Filename, "duplicate", "")
			continue
		}
		added = append(added, rec)
		h.broadcastUpload(rec.ID, rec.Filename, "uploaded", "")
	}

	writeJSON(w, http.StatusCreated, map[string]any{"records": added, "skipped": skipped, "duplicates": duplicates})
}

func (h *RecordHandler) broadcastUpload(recordID, filename, status, errMsg string) {
	if h.Hub == nil {
		return
	}
	h.Hub.Broadcast(realtime.Event{
		Type:      realtime.EventUpload,
		RecordID:  recordID,
		Filename:  filename,
		Status:    status,
		Error:     errMsg,
		Timestamp: time.Now().Unix(),
	})
}

func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	order := r.URL.Query().Get("sort")
	if !session.IsValidSortOrder(order) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid sort order: " + order})
		return
	}
	writeJSON(w, http.StatusOK, h.Store.List(order))
}

func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "record_id")
	rec, ok := h.Store.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Record not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "record_id")
	if err := h.Store.Remove(id); err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Record not found"})
		} else {
			log.Printf("Error removing record %s: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to remove record"})
		}
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *RecordHandler) ClearRecords(w http.ResponseWriter, r *http.Request) {
	removed := h.Store.Clear()
	log.Printf("Cleared %d record(s) from the session", removed)
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *RecordHandler) RenameRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "record_id")

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	rec, err := h.Store.Rename(id, req.Name)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdatePoint writes one landmark point. Both coordinates are required;
// the store clamps them into the record's pixel bounds.
func (h *RecordHandler) UpdatePoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "record_id")
	idxStr := chi.URLParam(r, "point_index")
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid point index format"})
		return
	}

	var req struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.X == nil || req.Y == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required fields: x, y"})
		return
	}

	rec, err := h.Store.UpdatePoint(id, idx, *req.X, *req.Y)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// NextReview returns the next record flagged for review after the given
// one, cycling through the collection in intake order.
func (h *RecordHandler) NextReview(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	rec, ok := h.Store.NextNeedsReview(after)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"record": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec})
}

func (h *RecordHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Stats())
}
