package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"monositi/internal/domain"
	"monositi/internal/models"
)

const bookingColumns = `id, service_id, customer_id, provider_id, scheduled_date, addons, total_price, notes,
        status, customer_rating, customer_review, provider_rating, provider_review,
        created_at, updated_at, version`

func scanBooking(row rowScanner) (*models.ServiceBooking, error) {
	var b models.ServiceBooking
	var addons string
	var customerRating, providerRating sql.NullInt64
	if err := row.Scan(&b.ID, &b.ServiceID, &b.CustomerID, &b.ProviderID, &b.ScheduledDate, &addons,
		&b.TotalPrice, &b.Notes, &b.Status, &customerRating, &b.CustomerReview, &providerRating,
		&b.ProviderReview, &b.CreatedAt, &b.UpdatedAt, &b.Version); err != nil {
		return nil, err
	}
	if err := decodeJSON(addons, &b.Addons); err != nil {
		return nil, err
	}
	if customerRating.Valid {
		v := int(customerRating.Int64)
		b.CustomerRating = &v
	}
	if providerRating.Valid {
		v := int(providerRating.Int64)
		b.ProviderRating = &v
	}
	return &b, nil
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.ServiceBooking) error {
	addons, err := encodeJSON(booking.Addons)
	if err != nil {
		return err
	}
	if booking.Status == "" {
		booking.Status = models.BookingPending
	}

	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
        INSERT INTO bookings (service_id, customer_id, provider_id, scheduled_date, addons, total_price, notes,
            status, created_at, updated_at, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		booking.ServiceID, booking.CustomerID, booking.ProviderID, booking.ScheduledDate, addons,
		booking.TotalPrice, booking.Notes, booking.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.ServiceBooking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err)
	}
	return booking, nil
}

func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, version int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		status, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return casResult(ctx, db, result, "bookings", id)
}

func (db *DB) SetBookingRating(ctx context.Context, id int64, party string, score int, review string) error {
	var ratingCol, reviewCol string
	switch party {
	case models.PartyCustomer:
		ratingCol, reviewCol = "customer_rating", "customer_review"
	case models.PartyProvider:
		ratingCol, reviewCol = "provider_rating", "provider_review"
	default:
		return fmt.Errorf("unknown rating party %q", party)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE bookings SET `+ratingCol+` = ?, `+reviewCol+` = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND `+ratingCol+` IS NULL`,
		score, review, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rate booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var rated sql.NullInt64
	err = db.QueryRowContext(ctx, `SELECT `+ratingCol+` FROM bookings WHERE id = ?`, id).Scan(&rated)
	if err != nil {
		return notFound(err)
	}
	if rated.Valid {
		return domain.ErrDuplicate
	}
	return fmt.Errorf("booking %d rating for %s was not written", id, party)
}

func (db *DB) ListBookingsByCustomer(ctx context.Context, customerID int64) ([]*models.ServiceBooking, error) {
	return db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE customer_id = ? ORDER BY created_at DESC, id DESC`, customerID)
}

func (db *DB) ListBookingsByProvider(ctx context.Context, providerID int64) ([]*models.ServiceBooking, error) {
	return db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE provider_id = ? ORDER BY created_at DESC, id DESC`, providerID)
}

// ListCustomerRatings returns every customer score left on the service's bookings.
func (db *DB) ListCustomerRatings(ctx context.Context, serviceID int64) ([]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT customer_rating FROM bookings WHERE service_id = ? AND customer_rating IS NOT NULL`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	var ratings []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

func (db *DB) AllBookings(ctx context.Context) ([]*models.ServiceBooking, error) {
	return db.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY id`)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.ServiceBooking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.ServiceBooking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}
