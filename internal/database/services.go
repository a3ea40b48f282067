package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"monositi/internal/domain"
	"monositi/internal/models"
)

const serviceColumns = `id, provider_id, name, category, description, city, base_price, addons,
        availability_calendar, images, active_status, monositi_verified, ratings, rating_count,
        created_at, updated_at, version`

func scanService(row rowScanner) (*models.Service, error) {
	var s models.Service
	var addons, calendar, images string
	if err := row.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Category, &s.Description, &s.City, &s.BasePrice,
		&addons, &calendar, &images, &s.ActiveStatus, &s.MonositiVerified, &s.Ratings, &s.RatingCount,
		&s.CreatedAt, &s.UpdatedAt, &s.Version); err != nil {
		return nil, err
	}
	if err := decodeJSON(addons, &s.Addons); err != nil {
		return nil, err
	}
	if err := decodeJSON(calendar, &s.AvailabilityCalendar); err != nil {
		return nil, err
	}
	if err := decodeJSON(images, &s.Images); err != nil {
		return nil, err
	}
	return &s, nil
}

type serviceDoc struct {
	addons, calendar, images string
}

func encodeService(s *models.Service) (serviceDoc, error) {
	var doc serviceDoc
	var err error
	if doc.addons, err = encodeJSON(s.Addons); err != nil {
		return doc, err
	}
	if doc.calendar, err = encodeJSON(s.AvailabilityCalendar); err != nil {
		return doc, err
	}
	if doc.images, err = encodeJSON(s.Images); err != nil {
		return doc, err
	}
	return doc, nil
}

func (db *DB) CreateService(ctx context.Context, service *models.Service) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return insertService(ctx, tx, service)
	})
}

// CreateServiceWithPromotion raises a tenant with no services to
// service_provider and inserts the first service in the same transaction.
func (db *DB) CreateServiceWithPromotion(ctx context.Context, service *models.Service) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx, `
            UPDATE users SET role = 'service_provider', version = version + 1, updated_at = ?
            WHERE id = ? AND role = 'tenant'
              AND NOT EXISTS (SELECT 1 FROM services WHERE provider_id = ?)`,
			now, service.ProviderID, service.ProviderID)
		if err != nil {
			return fmt.Errorf("failed to promote provider: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if rows == 0 {
			var role string
			err := tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, service.ProviderID).Scan(&role)
			if err != nil {
				return notFound(err)
			}
			if role != string(models.RoleServiceProvider) {
				return domain.ErrConcurrentModification
			}
		}
		return insertService(ctx, tx, service)
	})
}

func insertService(ctx context.Context, tx *sql.Tx, service *models.Service) error {
	doc, err := encodeService(service)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
        INSERT INTO services (provider_id, name, category, description, city, base_price, addons,
            availability_calendar, images, active_status, monositi_verified, ratings, rating_count,
            created_at, updated_at, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?, 1)`,
		service.ProviderID, service.Name, service.Category, service.Description, service.City,
		service.BasePrice, doc.addons, doc.calendar, doc.images, service.ActiveStatus, now, now)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	service.ID = id
	service.MonositiVerified = false
	service.Ratings = 0
	service.RatingCount = 0
	service.CreatedAt = now
	service.UpdatedAt = now
	service.Version = 1
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	row := db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	service, err := scanService(row)
	if err != nil {
		return nil, notFound(err)
	}
	return service, nil
}

// UpdateService writes the mutable fields under version CAS. Ratings are owned
// by SetServiceRating and are not touched here.
func (db *DB) UpdateService(ctx context.Context, service *models.Service) error {
	doc, err := encodeService(service)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
        UPDATE services SET name = ?, category = ?, description = ?, city = ?, base_price = ?, addons = ?,
            availability_calendar = ?, images = ?, active_status = ?, monositi_verified = ?,
            version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?`,
		service.Name, service.Category, service.Description, service.City, service.BasePrice,
		doc.addons, doc.calendar, doc.images, service.ActiveStatus, service.MonositiVerified,
		now, service.ID, service.Version)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if err := casResult(ctx, db, result, "services", service.ID); err != nil {
		return err
	}
	service.Version++
	service.UpdatedAt = now
	return nil
}

func (db *DB) ListServices(ctx context.Context, filter models.ServiceFilter) ([]*models.Service, int, error) {
	where := []string{"active_status = 1", "monositi_verified = 1"}
	var args []any
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.City != "" {
		where = append(where, "city = ? COLLATE NOCASE")
		args = append(args, filter.City)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM services WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count services: %w", err)
	}

	page := filter.Page.Normalize()
	pageArgs := append(append([]any{}, args...), page.Size, page.Offset())
	services, err := db.queryServices(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE `+clause+` ORDER BY ratings DESC, id DESC LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return services, total, nil
}

func (db *DB) ListServicesByProvider(ctx context.Context, providerID int64) ([]*models.Service, error) {
	return db.queryServices(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE provider_id = ? ORDER BY created_at DESC, id DESC`, providerID)
}

// SetServiceRating stores the aggregate without bumping the version; it is
// always recomputed from the bookings, so the last writer is correct.
func (db *DB) SetServiceRating(ctx context.Context, id int64, rating float64, count int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE services SET ratings = ?, rating_count = ?, updated_at = ? WHERE id = ?`,
		rating, count, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set service rating: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (db *DB) queryServices(ctx context.Context, query string, args ...any) ([]*models.Service, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, service)
	}
	return services, rows.Err()
}
