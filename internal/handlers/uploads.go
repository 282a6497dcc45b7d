package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/services"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

const uploadFormField = "file"

// FileScannerService validates an uploaded file
type FileScannerService interface {
	ValidateFile(ctx context.Context, upload services.FileUpload, category string, userID *string) (*services.FileValidationResult, error)
}

// UploadHandler accepts multipart uploads and runs them through the scanner.
// Storage of accepted files is left to the owning feature.
type UploadHandler struct {
	scanner      FileScannerService
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewUploadHandler creates a new UploadHandler. maxBodyBytes caps the whole
// multipart body and should sit above the largest category limit so the
// scanner, not the transport, reports oversize files.
func NewUploadHandler(scanner FileScannerService, maxBodyBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		scanner:      scanner,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// UploadResponse is returned for an accepted file
type UploadResponse struct {
	ScanID   string            `json:"scan_id"`
	FileName string            `json:"file_name"`
	FileInfo services.FileInfo `json:"file_info"`
}

// UploadRejectedResponse lists the client-safe reasons a file was refused
type UploadRejectedResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	ScanID  string   `json:"scan_id"`
	Errors  []string `json:"errors"`
}

// Upload handles POST /uploads/{category}
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkghttp.WriteError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Upload too large")
			return
		}
		pkghttp.WriteBadRequest(w, "A file must be provided in the \"file\" field")
		return
	}
	defer file.Close()

	userID := principal.UserID
	result, err := h.scanner.ValidateFile(r.Context(), services.FileUpload{
		Name:    header.Filename,
		Content: file,
	}, chi.URLParam(r, "category"), &userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if result.ReadErr != nil {
		h.logger.WarnContext(r.Context(), "upload content unreadable",
			slog.String("scan_id", result.ScanID),
			slog.Any("error", result.ReadErr),
		)
	}

	if !result.Valid {
		pkghttp.WriteJSON(w, http.StatusUnprocessableEntity, UploadRejectedResponse{
			Error:   "invalid_file",
			Message: "File rejected",
			ScanID:  result.ScanID,
			Errors:  result.Errors,
		})
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, UploadResponse{
		ScanID:   result.ScanID,
		FileName: header.Filename,
		FileInfo: result.FileInfo,
	})
}
