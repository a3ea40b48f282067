package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"monositi/internal/domain"
	"monositi/internal/models"
)

const enquiryColumns = `id, target_type, target_id, owner_id, user_id, name, phone, email, message, status,
        created_at, updated_at, version`

func scanEnquiry(row rowScanner) (*models.Enquiry, error) {
	var e models.Enquiry
	var userID sql.NullInt64
	if err := row.Scan(&e.ID, &e.TargetType, &e.TargetID, &e.OwnerID, &userID, &e.Name, &e.Phone, &e.Email,
		&e.Message, &e.Status, &e.CreatedAt, &e.UpdatedAt, &e.Version); err != nil {
		return nil, err
	}
	if userID.Valid {
		e.UserID = &userID.Int64
	}
	return &e, nil
}

// CreateEnquiry stores the enquiry and, for listing targets, bumps the
// listing's lead counter in the same transaction.
func (db *DB) CreateEnquiry(ctx context.Context, enquiry *models.Enquiry) error {
	now := time.Now().UTC()
	enquiry.Status = models.EnquiryNew

	return db.withTx(ctx, func(tx *sql.Tx) error {
		switch enquiry.TargetType {
		case models.TargetListing:
			result, err := tx.ExecContext(ctx, `UPDATE listings SET leads = leads + 1 WHERE id = ?`, enquiry.TargetID)
			if err != nil {
				return fmt.Errorf("failed to bump listing leads: %w", err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			if rows == 0 {
				return domain.ErrNotFound
			}
		case models.TargetService:
			exists, err := rowExists(ctx, tx, "services", enquiry.TargetID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
		default:
			return fmt.Errorf("unknown enquiry target %q", enquiry.TargetType)
		}

		result, err := tx.ExecContext(ctx, `
            INSERT INTO enquiries (target_type, target_id, owner_id, user_id, name, phone, email, message, status,
                created_at, updated_at, version)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			enquiry.TargetType, enquiry.TargetID, enquiry.OwnerID, enquiry.UserID, enquiry.Name, enquiry.Phone,
			enquiry.Email, enquiry.Message, enquiry.Status, now, now)
		if err != nil {
			return fmt.Errorf("failed to create enquiry: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		enquiry.ID = id
		enquiry.CreatedAt = now
		enquiry.UpdatedAt = now
		enquiry.Version = 1
		return nil
	})
}

func (db *DB) GetEnquiry(ctx context.Context, id int64) (*models.Enquiry, error) {
	row := db.QueryRowContext(ctx, `SELECT `+enquiryColumns+` FROM enquiries WHERE id = ?`, id)
	enquiry, err := scanEnquiry(row)
	if err != nil {
		return nil, notFound(err)
	}
	return enquiry, nil
}

func (db *DB) UpdateEnquiryStatus(ctx context.Context, id int64, version int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE enquiries SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		status, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update enquiry status: %w", err)
	}
	return casResult(ctx, db, result, "enquiries", id)
}

// ListEnquiriesByOwner returns the owner's inbox, optionally narrowed to one status.
func (db *DB) ListEnquiriesByOwner(ctx context.Context, ownerID int64, status string) ([]*models.Enquiry, error) {
	query := `SELECT ` + enquiryColumns + ` FROM enquiries WHERE owner_id = ?`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enquiries: %w", err)
	}
	defer rows.Close()

	var enquiries []*models.Enquiry
	for rows.Next() {
		enquiry, err := scanEnquiry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enquiry: %w", err)
		}
		enquiries = append(enquiries, enquiry)
	}
	return enquiries, rows.Err()
}
