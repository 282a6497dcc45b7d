package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/farmguard/internal/database"
	"github.com/BradenHooton/farmguard/internal/models"
)

// SecurityEventRepository handles security event data access
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

const securityEventColumns = `id, user_id, event_type, severity, description, ip_address, user_agent,
	metadata, created_at, resolved, resolved_by, resolved_at`

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var e models.SecurityEvent
	err := row.Scan(
		&e.ID, &e.UserID, &e.EventType, &e.Severity, &e.Description, &e.IPAddress, &e.UserAgent,
		&e.Metadata, &e.CreatedAt, &e.Resolved, &e.ResolvedBy, &e.ResolvedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &e, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		e, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return events, nil
}

// Create appends an event.
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	query := `
		INSERT INTO security_events (user_id, event_type, severity, description, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + securityEventColumns

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	created, err := scanSecurityEventRow(r.pool.QueryRow(ctx, query,
		event.UserID, event.EventType, event.Severity, event.Description,
		event.IPAddress, event.UserAgent, event.Metadata, event.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create security event: %w", err)
	}
	return created, nil
}

func (r *SecurityEventRepository) GetByID(ctx context.Context, id string) (*models.SecurityEvent, error) {
	query := `SELECT ` + securityEventColumns + ` FROM security_events WHERE id = $1`
	return scanSecurityEventRow(r.pool.QueryRow(ctx, query, id))
}

// Resolve marks an open event resolved. An already-resolved event is
// returned untouched with changed=false.
func (r *SecurityEventRepository) Resolve(ctx context.Context, id, resolvedBy string, at time.Time) (*models.SecurityEvent, bool, error) {
	query := `
		UPDATE security_events
		SET resolved = TRUE, resolved_by = $2, resolved_at = $3
		WHERE id = $1 AND NOT resolved
		RETURNING ` + securityEventColumns

	event, err := scanSecurityEventRow(r.pool.QueryRow(ctx, query, id, resolvedBy, at))
	if err == nil {
		return event, true, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// List returns events matching filter, newest first.
func (r *SecurityEventRepository) List(ctx context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conds = append(conds, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if filter.Resolved != nil {
		args = append(args, *filter.Resolved)
		conds = append(conds, fmt.Sprintf("resolved = $%d", len(args)))
	}

	query := `SELECT ` + securityEventColumns + ` FROM security_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanSecurityEventRows(rows)
}
