package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

type receiptResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	UploadedAt  string `json:"uploaded_at"`
}

// handleUploadReceipt accepts a multipart upload under the "file" field
// and stores it on disk under a fresh UUID.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := userIDFrom(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxReceiptBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxReceiptBytes); err != nil {
		errorJSON(w, http.StatusRequestEntityTooLarge, "file too large or malformed upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	id := uuid.NewString()
	storedPath := filepath.Join(s.cfg.ReceiptsDir, id+filepath.Ext(header.Filename))

	if err := os.MkdirAll(s.cfg.ReceiptsDir, 0o755); err != nil {
		slog.ErrorContext(r.Context(), "Receipt dir create error", "error", err, "dir", s.cfg.ReceiptsDir)
		errorJSON(w, http.StatusInternalServerError, "failed to store receipt")
		return
	}

	dst, err := os.Create(storedPath)
	if err != nil {
		slog.ErrorContext(r.Context(), "Receipt file create error", "error", err, "path", storedPath)
		errorJSON(w, http.StatusInternalServerError, "failed to store receipt")
		return
	}
	defer dst.Close()

	size, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(storedPath)
		slog.ErrorContext(r.Context(), "Receipt file write error", "error", err, "path", storedPath)
		errorJSON(w, http.StatusInternalServerError, "failed to store receipt")
		return
	}

	rec := core.Receipt{
		ID:          id,
		UserID:      userID,
		Filename:    sanitizeInput(filepath.Base(header.Filename)),
		ContentType: header.Header.Get("Content-Type"),
		SizeBytes:   size,
		StoredPath:  storedPath,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateReceipt(r.Context(), rec); err != nil {
		os.Remove(storedPath)
		slog.ErrorContext(r.Context(), "Receipt save error", "error", err, "id", id, "user_id", userID)
		errorJSON(w, http.StatusInternalServerError, "failed to store receipt")
		return
	}

	slog.InfoContext(r.Context(), "Receipt uploaded",
		"id", id,
		"user_id", userID,
		"filename", rec.Filename,
		"size_bytes", size)

	respondJSON(w, http.StatusCreated, receiptResponse{
		ID:          rec.ID,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		SizeBytes:   rec.SizeBytes,
		UploadedAt:  rec.UploadedAt.Format(time.RFC3339),
	})
}

// handleGetReceipt streams the stored file back to its owner.
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := userIDFrom(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/receipts"), "/")
	if id == "" || strings.Contains(id, "/") {
		errorJSON(w, http.StatusBadRequest, "missing or malformed receipt id")
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid receipt id")
		return
	}

	rec, err := s.store.GetReceipt(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusNotFound, "receipt not found")
			return
		}
		slog.ErrorContext(r.Context(), "Receipt load error", "error", err, "id", id, "user_id", userID)
		errorJSON(w, http.StatusInternalServerError, "failed to load receipt")
		return
	}

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Content-Disposition", `inline; filename="`+rec.Filename+`"`)
	http.ServeFile(w, r, rec.StoredPath)
}
