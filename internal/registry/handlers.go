package registry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/scangate/internal/scanapi"
)

// maxBodySize bounds a scan submission body
const maxBodySize = 1 << 20

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func savedMessage(kind scanapi.Kind) string {
	if kind == scanapi.KindEmployee {
		return "Employee scan saved"
	}
	return "QR scan saved"
}

func duplicateMessage(kind scanapi.Kind) string {
	if kind == scanapi.KindEmployee {
		return "This employee ID has already been scanned"
	}
	return "This QR code has already been scanned"
}

// handleRecordScan records a submitted payload for the authenticated operator
func (s *Server) handleRecordScan(kind scanapi.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanapi.SubmitRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, scanapi.SubmitResponse{Message: "Request body must be a JSON scan"})
			return
		}

		operator := operatorFrom(r.Context())
		scan, existing, err := s.service.RecordScan(kind, operator, req)
		if err != nil {
			if errors.Is(err, ErrInvalidScan) {
				writeJSON(w, http.StatusBadRequest, scanapi.SubmitResponse{Message: err.Error()})
				return
			}
			slog.Error("Error recording scan", "kind", kind, "operator", operator, "error", err)
			writeJSON(w, http.StatusInternalServerError, scanapi.SubmitResponse{Message: "Internal server error"})
			return
		}

		if existing != nil {
			slog.Info("Duplicate scan rejected",
				"kind", kind,
				"qr_data", req.QRData,
				"operator", operator,
				"original_scanned_by", existing.ScannedBy,
			)
			writeJSON(w, http.StatusConflict, scanapi.SubmitResponse{
				IsDuplicate:  true,
				Message:      duplicateMessage(kind),
				ExistingScan: existing.Existing(),
			})
			return
		}

		slog.Info("Scan recorded", "kind", kind, "id", scan.ID, "operator", operator, "scanner_type", scan.ScannerType)
		writeJSON(w, http.StatusCreated, scanapi.SubmitResponse{Success: true, Message: savedMessage(kind)})
	}
}

// handleStats returns today's and all-time counters for kind
func (s *Server) handleStats(kind scanapi.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.service.Stats(kind)
		if err != nil {
			slog.Error("Error counting scans", "kind", kind, "error", err)
			writeJSON(w, http.StatusInternalServerError, scanapi.StatsResponse{Message: "Internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, scanapi.StatsResponse{Success: true, Stats: stats})
	}
}

// handleListScans returns every recorded scan of kind
func (s *Server) handleListScans(kind scanapi.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scans, err := s.service.ListScans(kind)
		if err != nil {
			slog.Error("Error listing scans", "kind", kind, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, scans)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
