package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"monositi/internal/domain"
	"monositi/internal/models"
)

const providerRequestColumns = `id, user_id, service_category, documents, status, admin_comment,
        reviewed_by, reviewed_at, created_at, updated_at, version`

func scanProviderRequest(row rowScanner) (*models.ProviderRequest, error) {
	var r models.ProviderRequest
	var documents string
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.UserID, &r.ServiceCategory, &documents, &r.Status, &r.AdminComment,
		&reviewedBy, &reviewedAt, &r.CreatedAt, &r.UpdatedAt, &r.Version); err != nil {
		return nil, err
	}
	if err := decodeJSON(documents, &r.Documents); err != nil {
		return nil, err
	}
	if reviewedBy.Valid {
		r.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		r.ReviewedAt = &reviewedAt.Time
	}
	return &r, nil
}

func (db *DB) CreateProviderRequest(ctx context.Context, req *models.ProviderRequest) error {
	documents, err := encodeJSON(req.Documents)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	req.Status = models.RequestPending
	result, err := db.ExecContext(ctx, `
        INSERT INTO provider_requests (user_id, service_category, documents, status, admin_comment,
            created_at, updated_at, version)
        VALUES (?, ?, ?, ?, '', ?, ?, 1)`,
		req.UserID, req.ServiceCategory, documents, req.Status, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to create provider request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	req.ID = id
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Version = 1
	return nil
}

func (db *DB) GetProviderRequest(ctx context.Context, id int64) (*models.ProviderRequest, error) {
	row := db.QueryRowContext(ctx, `SELECT `+providerRequestColumns+` FROM provider_requests WHERE id = ?`, id)
	req, err := scanProviderRequest(row)
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

func (db *DB) GetPendingProviderRequest(ctx context.Context, userID int64) (*models.ProviderRequest, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+providerRequestColumns+` FROM provider_requests WHERE user_id = ? AND status = 'pending'`, userID)
	req, err := scanProviderRequest(row)
	if err != nil {
		return nil, notFound(err)
	}
	return req, nil
}

// ResolveProviderRequest records the admin decision on a still-pending request.
// With promote set, a tenant requester becomes a service_provider in the same
// transaction; users already holding another role keep it.
func (db *DB) ResolveProviderRequest(ctx context.Context, req *models.ProviderRequest, promote bool) error {
	now := time.Now().UTC()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
            UPDATE provider_requests SET status = ?, admin_comment = ?, reviewed_by = ?, reviewed_at = ?,
                version = version + 1, updated_at = ?
            WHERE id = ? AND status = 'pending'`,
			req.Status, req.AdminComment, req.ReviewedBy, now, now, req.ID)
		if err != nil {
			return fmt.Errorf("failed to resolve provider request: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if rows == 0 {
			exists, err := rowExists(ctx, tx, "provider_requests", req.ID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrConcurrentModification
		}

		if promote {
			if _, err := tx.ExecContext(ctx, `
                UPDATE users SET role = 'service_provider', version = version + 1, updated_at = ?
                WHERE id = ? AND role = 'tenant'`, now, req.UserID); err != nil {
				return fmt.Errorf("failed to promote user: %w", err)
			}
		}

		req.ReviewedAt = &now
		req.UpdatedAt = now
		req.Version++
		return nil
	})
}

func (db *DB) ListProviderRequests(ctx context.Context, status string) ([]*models.ProviderRequest, error) {
	if status == "" {
		return db.queryProviderRequests(ctx,
			`SELECT `+providerRequestColumns+` FROM provider_requests ORDER BY created_at, id`)
	}
	return db.queryProviderRequests(ctx,
		`SELECT `+providerRequestColumns+` FROM provider_requests WHERE status = ? ORDER BY created_at, id`, status)
}

func (db *DB) ListProviderRequestsByUser(ctx context.Context, userID int64) ([]*models.ProviderRequest, error) {
	return db.queryProviderRequests(ctx,
		`SELECT `+providerRequestColumns+` FROM provider_requests WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
}

func (db *DB) queryProviderRequests(ctx context.Context, query string, args ...any) ([]*models.ProviderRequest, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.ProviderRequest
	for rows.Next() {
		req, err := scanProviderRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}
