package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"monositi/internal/domain"
	"monositi/internal/models"
)

const roomColumns = `id, listing_id, room_number, room_type, rent, total_beds, available_beds, status,
        created_at, updated_at, version`

func scanRoom(row rowScanner) (*models.Room, error) {
	var r models.Room
	if err := row.Scan(&r.ID, &r.ListingID, &r.RoomNumber, &r.RoomType, &r.Rent, &r.TotalBeds,
		&r.AvailableBeds, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.Version); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoom inserts a room and re-derives the parent listing's occupancy.
func (db *DB) CreateRoom(ctx context.Context, room *models.Room) error {
	now := time.Now().UTC()
	room.Status = models.RoomStatusFor(room.AvailableBeds)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := rowExists(ctx, tx, "listings", room.ListingID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}

		result, err := tx.ExecContext(ctx, `
            INSERT INTO rooms (listing_id, room_number, room_type, rent, total_beds, available_beds, status,
                created_at, updated_at, version)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			room.ListingID, room.RoomNumber, room.RoomType, room.Rent, room.TotalBeds, room.AvailableBeds,
			room.Status, now, now)
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		if err := syncListingOccupancy(ctx, tx, room.ListingID, now); err != nil {
			return err
		}

		room.ID = id
		room.CreatedAt = now
		room.UpdatedAt = now
		room.Version = 1
		return nil
	})
}

func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	row := db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err != nil {
		return nil, notFound(err)
	}
	return room, nil
}

func (db *DB) ListRooms(ctx context.Context, listingID int64) ([]*models.Room, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE listing_id = ? ORDER BY room_number, id`, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// AdjustRoomBeds moves available_beds by delta in a single guarded UPDATE so
// concurrent occupants can never push the count outside [0, total_beds]. The
// room status and the parent listing's full-house state follow in the same
// transaction.
func (db *DB) AdjustRoomBeds(ctx context.Context, id int64, delta int) (*models.Room, error) {
	var room *models.Room
	now := time.Now().UTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
            UPDATE rooms SET
                available_beds = available_beds + ?,
                status = CASE WHEN available_beds + ? = 0 THEN 'full' ELSE 'available' END,
                version = version + 1,
                updated_at = ?
            WHERE id = ? AND available_beds + ? >= 0 AND available_beds + ? <= total_beds`,
			delta, delta, now, id, delta, delta)
		if err != nil {
			return fmt.Errorf("failed to adjust room beds: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if rows == 0 {
			exists, err := rowExists(ctx, tx, "rooms", id)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrCapacityExceeded
		}

		room, err = scanRoom(tx.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("failed to reload room: %w", err)
		}
		return syncListingOccupancy(ctx, tx, room.ListingID, now)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// syncListingOccupancy marks a listing fullhouse when none of its rooms has a
// free bed and flips it back to available once one frees up. Listings in any
// other status are left alone.
func syncListingOccupancy(ctx context.Context, tx *sql.Tx, listingID int64, now time.Time) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM listings WHERE id = ?`, listingID).Scan(&status)
	if err != nil {
		return notFound(err)
	}

	var free int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rooms WHERE listing_id = ? AND available_beds > 0`, listingID).Scan(&free); err != nil {
		return fmt.Errorf("failed to count free rooms: %w", err)
	}

	next := status
	switch {
	case free == 0 && status == models.ListingAvailable:
		next = models.ListingFullHouse
	case free > 0 && status == models.ListingFullHouse:
		next = models.ListingAvailable
	}
	if next == status {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE listings SET status = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		next, now, listingID); err != nil {
		return fmt.Errorf("failed to update listing occupancy: %w", err)
	}
	return nil
}
