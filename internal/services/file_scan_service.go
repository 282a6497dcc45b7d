package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/models"
)

// Upload categories
const (
	CategoryImages    = "images"
	CategoryDocuments = "documents"
	CategoryArchives  = "archives"
)

const (
	sniffPrefixBytes          = 8192
	repeatedOffenderThreshold = 3
	repeatedOffenderWindow    = 24 * time.Hour
)

var allowedMimeTypes = map[string][]string{
	CategoryImages: {"image/jpeg", "image/png", "image/gif", "image/webp"},
	CategoryDocuments: {
		"application/pdf",
		"text/plain",
		"text/csv",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	},
	CategoryArchives: {"application/zip", "application/x-rar-compressed"},
}

var deniedExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true,
	".pif": true, ".scr": true, ".vbs": true, ".js": true,
	".jar": true, ".php": true, ".asp": true, ".aspx": true,
	".jsp": true, ".py": true, ".rb": true, ".pl": true,
}

var contentSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)document\.write`),
	regexp.MustCompile(`(?i)window\.location`),
	regexp.MustCompile(`(?i)<\?php`),
	regexp.MustCompile(`<%.*%>`),
	regexp.MustCompile(`(?i)<!--#(include|exec|echo)`),
}

// DefaultFileSizeLimits returns the per-category ceilings in bytes.
func DefaultFileSizeLimits() map[string]int64 {
	return map[string]int64{
		CategoryImages:    5 << 20,
		CategoryDocuments: 10 << 20,
		CategoryArchives:  50 << 20,
	}
}

// FileScanRepository persists per-upload scan records
type FileScanRepository interface {
	Create(ctx context.Context, scan *models.FileUploadScan) error
	Complete(ctx context.Context, scan *models.FileUploadScan) error
	CountSuspiciousByUserSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// FileUpload is an uploaded file. Content must support seeking so the
// scanner can measure it and read it more than once.
type FileUpload struct {
	Name    string
	Content io.ReadSeeker
}

type FileInfo struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// FileValidationResult is the scanner verdict. Errors are client-safe
// summaries. ReadErr wraps models.ErrMalformedInput when the content could
// not be read.
type FileValidationResult struct {
	Valid    bool
	Errors   []string
	FileInfo FileInfo
	Status   models.ScanStatus
	ScanID   string
	ReadErr  error
}

// FileScanner validates uploads before they are accepted.
type FileScanner struct {
	repo       FileScanRepository
	events     EventRecorder
	sizeLimits map[string]int64
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewFileScanner creates a new FileScanner. A nil sizeLimits uses
// DefaultFileSizeLimits.
func NewFileScanner(repo FileScanRepository, events EventRecorder, sizeLimits map[string]int64, m *metrics.Metrics, logger *slog.Logger) *FileScanner {
	if sizeLimits == nil {
		sizeLimits = DefaultFileSizeLimits()
	}
	return &FileScanner{
		repo:       repo,
		events:     events,
		sizeLimits: sizeLimits,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// ValidateFile runs every check and accumulates errors. An oversized file
// is only hashed, never sniffed or scanned; an unreadable file skips hashing. The scan record is
// persisted whatever the outcome.
func (s *FileScanner) ValidateFile(ctx context.Context, upload FileUpload, category string, userID *string) (*FileValidationResult, error) {
	limit, ok := s.sizeLimits[category]
	if !ok {
		return nil, fmt.Errorf("%w: unknown upload category %q", models.ErrBadRequest, category)
	}

	scan := &models.FileUploadScan{
		UserID:     userID,
		FileName:   upload.Name,
		Category:   category,
		Status:     models.ScanStatusPending,
		ScanResult: models.EventMetadata{},
		UploadedAt: s.now(),
	}
	if err := scan.Transition(models.ScanStatusScanning, scan.UploadedAt); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, scan); err != nil {
		return nil, err
	}

	result := &FileValidationResult{ScanID: scan.ID}
	var suspicious []string

	size, sizeErr := measure(upload.Content)
	result.FileInfo.Size = size
	oversize := sizeErr == nil && size > limit
	if oversize {
		result.Errors = append(result.Errors, fmt.Sprintf("File size exceeds limit of %.1fMB", float64(limit)/(1<<20)))
		suspicious = append(suspicious, "size")
	}

	if deniedExtensions[strings.ToLower(filepath.Ext(upload.Name))] {
		result.Errors = append(result.Errors, "File type not allowed")
		suspicious = append(suspicious, "extension")
	}

	switch {
	case sizeErr != nil:
		result.ReadErr = fmt.Errorf("%w: %v", models.ErrMalformedInput, sizeErr)
	case oversize:
		// No sniffing or signature scan, but the audit record still gets
		// the digest.
		hash, err := hashContent(upload.Content)
		if err != nil {
			result.ReadErr = fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
			break
		}
		result.FileInfo.Hash = hash
	default:
		s.inspectContent(upload.Content, category, result, &suspicious)
	}

	if result.ReadErr != nil {
		result.Errors = append(result.Errors, "Could not read file")
		suspicious = append(suspicious, "unreadable")
	}

	result.Valid = len(result.Errors) == 0
	result.Status = models.ScanStatusClean
	if !result.Valid {
		result.Status = models.ScanStatusSuspicious
	}

	scan.FileSize = result.FileInfo.Size
	scan.FileHash = result.FileInfo.Hash
	scan.MimeType = result.FileInfo.MimeType
	scan.ScanResult = models.EventMetadata{
		"errors":        result.Errors,
		"failed_checks": suspicious,
	}
	if err := scan.Transition(result.Status, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Complete(ctx, scan); err != nil {
		return nil, err
	}

	s.metrics.FileScan(string(result.Status))
	s.logger.InfoContext(ctx, "file scanned",
		slog.String("scan_id", scan.ID),
		slog.String("category", category),
		slog.String("status", string(result.Status)),
		slog.Int64("size", size),
	)

	if result.Status == models.ScanStatusSuspicious {
		if err := s.reportSuspicious(ctx, scan, suspicious); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func measure(r io.ReadSeeker) (int64, error) {
	if r == nil {
		return 0, errors.New("no content")
	}
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}

// inspectContent sniffs the MIME type and scans for script signatures on
// the leading bytes, then hashes the full content.
func (s *FileScanner) inspectContent(r io.ReadSeeker, category string, result *FileValidationResult, suspicious *[]string) {
	prefix, err := readPrefix(r)
	if err != nil {
		result.ReadErr = fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
		return
	}

	detected := mimetype.Detect(prefix)
	result.FileInfo.MimeType = detected.String()
	if !mimeAllowed(detected, category) {
		result.Errors = append(result.Errors, "File type "+detected.String()+" not allowed")
		*suspicious = append(*suspicious, "mime_type")
	}

	if containsSignature(prefix) {
		result.Errors = append(result.Errors, "File contains suspicious content")
		*suspicious = append(*suspicious, "signature")
	}

	hash, err := hashContent(r)
	if err != nil {
		result.ReadErr = fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
		return
	}
	result.FileInfo.Hash = hash
}

func readPrefix(r io.ReadSeeker) ([]byte, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, sniffPrefixBytes)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

func mimeAllowed(detected *mimetype.MIME, category string) bool {
	for _, allowed := range allowedMimeTypes[category] {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

// containsSignature decodes permissively, dropping invalid UTF-8.
func containsSignature(prefix []byte) bool {
	text := strings.ToValidUTF8(string(prefix), "")
	for _, p := range contentSignatures {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func hashContent(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *FileScanner) reportSuspicious(ctx context.Context, scan *models.FileUploadScan, failedChecks []string) error {
	err := s.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      scan.UserID,
		EventType:   models.EventFileUploadBlocked,
		Severity:    models.SeverityMedium,
		Description: "File upload rejected by scanner",
		Metadata: models.EventMetadata{
			"scan_id":       scan.ID,
			"file_name":     scan.FileName,
			"category":      scan.Category,
			"mime_type":     scan.MimeType,
			"file_hash":     scan.FileHash,
			"failed_checks": failedChecks,
		},
	})
	if err != nil || scan.UserID == nil {
		return err
	}

	count, err := s.repo.CountSuspiciousByUserSince(ctx, *scan.UserID, s.now().Add(-repeatedOffenderWindow))
	if err != nil {
		return fmt.Errorf("count suspicious uploads: %w", err)
	}
	if count < repeatedOffenderThreshold {
		return nil
	}

	return s.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      scan.UserID,
		EventType:   models.EventSuspiciousActivity,
		Severity:    models.SeverityHigh,
		Description: fmt.Sprintf("%d suspicious uploads in the last 24 hours", count),
		Metadata: models.EventMetadata{
			"suspicious_uploads": count,
			"window":             repeatedOffenderWindow.String(),
		},
	})
}
