package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/farmguard/internal/database"
	"github.com/BradenHooton/farmguard/internal/models"
)

type FileScanRepository struct {
	pool *pgxpool.Pool
}

func NewFileScanRepository(db *database.DB) *FileScanRepository {
	return &FileScanRepository{pool: db.Pool}
}

// Create inserts a scan record in its current (non-terminal) status.
func (r *FileScanRepository) Create(ctx context.Context, scan *models.FileUploadScan) error {
	query := `
		INSERT INTO file_upload_scans (user_id, file_name, file_size, category, scan_status, scan_result, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query,
		scan.UserID, scan.FileName, scan.FileSize, scan.Category, scan.Status, scan.ScanResult, scan.UploadedAt,
	).Scan(&scan.ID)
	if err != nil {
		return fmt.Errorf("failed to create file scan: %w", database.MapPostgresError(err))
	}
	return nil
}

// Complete writes the terminal status. Rows already in a terminal status
// are left alone and ErrInvalidTransition is returned.
func (r *FileScanRepository) Complete(ctx context.Context, scan *models.FileUploadScan) error {
	query := `
		UPDATE file_upload_scans
		SET scan_status = $2, file_hash = $3, mime_type = $4, scan_result = $5, scanned_at = $6, file_size = $7
		WHERE id = $1 AND scan_status IN ('pending', 'scanning')
	`
	tag, err := r.pool.Exec(ctx, query,
		scan.ID, scan.Status, scan.FileHash, scan.MimeType, scan.ScanResult, scan.ScannedAt, scan.FileSize,
	)
	if err != nil {
		return fmt.Errorf("failed to complete file scan: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("file scan %s: %w", scan.ID, models.ErrInvalidTransition)
	}
	return nil
}

// CountSuspiciousByUserSince counts the user's suspicious uploads after since.
func (r *FileScanRepository) CountSuspiciousByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM file_upload_scans
		WHERE user_id = $1 AND scan_status = 'suspicious' AND uploaded_at > $2
	`
	var count int
	err := r.pool.QueryRow(ctx, query, userID, since).Scan(&count)
	return count, database.MapPostgresError(err)
}
