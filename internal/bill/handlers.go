package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/feedetective/feedetective/internal/analysis"
)

// maxUploadSize caps multipart uploads (high-resolution phone photos of
// multi-page bills run large).
const maxUploadSize = int64(50 << 20) // 50MB

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// uploadResponse is what the upload endpoint returns. The extracted
// document stays server-side; the client only needs the handle and the
// fields it may want to confirm.
type uploadResponse struct {
	ID         string            `json:"id"`
	BillType   analysis.BillType `json:"bill_type"`
	Provider   string            `json:"provider,omitempty"`
	PageCount  int               `json:"page_count"`
	ExpiresAt  string            `json:"expires_at"`
	StatusText string            `json:"status"`
}

// handleUpload handles bill upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if err.Error() == "http: no such file" {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeForExtension(header.Filename)
	}

	billType := analysis.ParseBillType(r.FormValue("bill_type"))
	provider := strings.TrimSpace(r.FormValue("provider"))

	upload, err := s.service.Upload(header.Filename, data, contentType, billType, provider)
	if err != nil {
		slog.Error("Error processing upload", "filename", header.Filename, "error", err)
		if errors.Is(err, ErrUnsupportedFileType) {
			writeError(w, "Unsupported file type. Please upload a PDF or an image.", http.StatusBadRequest)
			return
		}
		writeError(w, "Error processing document. Please try again.", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		ID:         upload.ID,
		BillType:   upload.BillType,
		Provider:   upload.Provider,
		PageCount:  upload.Document.PageCount,
		ExpiresAt:  upload.ExpiresAt.UTC().Format(time.RFC3339),
		StatusText: "processed",
	})
}

// handleAnalyze runs fee detection over an uploaded bill
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Upload ID required", http.StatusBadRequest)
		return
	}

	var req struct {
		BillType string `json:"bill_type"`
		Provider string `json:"provider"`
	}
	if r.Body != nil {
		// An empty or absent body means no hints; only reject bodies
		// that are present but malformed.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := s.service.Analyze(id, analysis.ParseBillType(req.BillType), strings.TrimSpace(req.Provider))
	if err != nil {
		if errors.Is(err, ErrUploadNotFound) {
			writeError(w, "Upload not found. It may have expired.", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrUploadExpired) {
			writeError(w, "Upload expired. Please upload the document again.", http.StatusNotFound)
			return
		}
		slog.Error("Error analyzing upload", "id", id, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleClassify returns the detected bill type of an uploaded bill
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Upload ID required", http.StatusBadRequest)
		return
	}

	billType, err := s.service.Classify(id)
	if err != nil {
		if errors.Is(err, ErrUploadNotFound) || errors.Is(err, ErrUploadExpired) {
			writeError(w, "Upload not found. It may have expired.", http.StatusNotFound)
			return
		}
		slog.Error("Error classifying upload", "id", id, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]analysis.BillType{"bill_type": billType})
}

// handleDeleteUpload removes an upload before its expiry
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Upload ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteUpload(id); err != nil {
		slog.Error("Error deleting upload", "id", id, "error", err)
		writeError(w, "Error deleting upload", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports service liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// contentTypeForExtension guesses the MIME type from a filename.
func contentTypeForExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
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
	default:
		return "application/octet-stream"
	}
}
