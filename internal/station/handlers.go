package station

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/scangate/internal/gate"
	"github.com/zombor/scangate/internal/scanapi"
)

// maxFormSize bounds an uploaded capture; phone photos can be large
const maxFormSize = int64(50 << 20)

const defaultHistoryLimit = 50

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeTransition answers a session action. A refused action is a 409 carrying the
// unchanged snapshot so the page can re-render.
func writeTransition(w http.ResponseWriter, snap gate.Snapshot, err error) {
	if err != nil {
		if errors.Is(err, gate.ErrCaptureBlocked) || errors.Is(err, gate.ErrNotAllowed) {
			writeJSON(w, http.StatusConflict, snap)
			return
		}
		slog.Error("Session action failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleSnapshot returns the current session state
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// detectContentType mirrors the upload form's accepted types when the part has none
func detectContentType(filename, declared string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// parseSource maps the form's source field to a scanner type
func parseSource(source string) scanapi.ScannerType {
	if strings.EqualFold(strings.TrimSpace(source), "camera") {
		return scanapi.ScannerMobileCamera
	}
	return scanapi.ScannerFileUpload
}

// handleCapture decodes and submits an uploaded image
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	capture := gate.Capture{
		Data:        data,
		ContentType: detectContentType(header.Filename, header.Header.Get("Content-Type")),
		Filename:    header.Filename,
		Source:      parseSource(r.FormValue("source")),
	}

	// The session finishes its transition even if the browser goes away mid-decode
	snap, err := s.session.Capture(context.WithoutCancel(r.Context()), capture)
	writeTransition(w, snap, err)
}

// handleAcknowledge dismisses a duplicate warning
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Acknowledge()
	writeTransition(w, snap, err)
}

// handleRetry re-runs the capture behind the current error
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Retry(context.WithoutCancel(r.Context()))
	writeTransition(w, snap, err)
}

// handleDismiss closes an error panel
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Dismiss()
	writeTransition(w, snap, err)
}

// handleRefresh reloads the running totals from the portal
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Refresh(r.Context())
	if errors.Is(err, gate.ErrNotAllowed) {
		writeJSON(w, http.StatusConflict, snap)
		return
	}
	if err != nil {
		slog.Warn("Error refreshing totals", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":    err.Error(),
			"snapshot": snap,
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleListHistory returns recent capture outcomes, newest first
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.List(limit)
	if err != nil {
		slog.Error("Error listing history", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetCapture returns the archived image for a history entry
func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.history.Get(id)
	if err != nil || entry.CaptureFile == "" || s.storage == nil {
		writeError(w, http.StatusNotFound, "Capture not found")
		return
	}

	data, err := s.storage.Get(entry.CaptureFile)
	if err != nil {
		slog.Warn("Archived capture missing", "id", id, "file", entry.CaptureFile, "error", err)
		writeError(w, http.StatusNotFound, "Capture not found")
		return
	}

	w.Header().Set("Content-Type", entry.ContentType)
	w.Write(data)
}
