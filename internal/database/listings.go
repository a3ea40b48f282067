package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"monositi/internal/domain"
	"monositi/internal/geo"
	"monositi/internal/models"
)

const listingColumns = `id, owner_id, kind, category, title, description, city, address, latitude, longitude,
        price, price_max, images, documents, amenities, status, verification_status, views, leads,
        created_at, updated_at, version`

// discoverableClause restricts a listings query to what public search may return.
const discoverableClause = `verification_status = 'verified' AND status IN ('active', 'available')`

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var kind, images, documents, amenities string
	if err := row.Scan(&l.ID, &l.OwnerID, &kind, &l.Category, &l.Title, &l.Description, &l.City, &l.Address,
		&l.Latitude, &l.Longitude, &l.Price, &l.PriceMax, &images, &documents, &amenities,
		&l.Status, &l.VerificationStatus, &l.Views, &l.Leads, &l.CreatedAt, &l.UpdatedAt, &l.Version); err != nil {
		return nil, err
	}
	l.Kind = models.ListingKind(kind)
	if err := decodeJSON(images, &l.Images); err != nil {
		return nil, err
	}
	if err := decodeJSON(documents, &l.Documents); err != nil {
		return nil, err
	}
	if err := decodeJSON(amenities, &l.Amenities); err != nil {
		return nil, err
	}
	return &l, nil
}

func (db *DB) CreateListing(ctx context.Context, listing *models.Listing) error {
	images, err := encodeJSON(listing.Images)
	if err != nil {
		return err
	}
	documents, err := encodeJSON(listing.Documents)
	if err != nil {
		return err
	}
	amenities, err := encodeJSON(listing.Amenities)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
        INSERT INTO listings (owner_id, kind, category, title, description, city, address, latitude, longitude,
            price, price_max, images, documents, amenities, status, verification_status, views, leads,
            created_at, updated_at, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, 1)`,
		listing.OwnerID, string(listing.Kind), listing.Category, listing.Title, listing.Description,
		listing.City, listing.Address, listing.Latitude, listing.Longitude, listing.Price, listing.PriceMax,
		images, documents, amenities, listing.Status, listing.VerificationStatus, now, now)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	listing.ID = id
	listing.CreatedAt = now
	listing.UpdatedAt = now
	listing.Version = 1
	return nil
}

func (db *DB) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	row := db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	listing, err := scanListing(row)
	if err != nil {
		return nil, notFound(err)
	}
	return listing, nil
}

func (db *DB) GetListingsByIDs(ctx context.Context, ids []int64) ([]*models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return db.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`, args...)
}

// UpdateListing writes every mutable field if listing.Version still matches
// the stored row, then advances listing.Version.
func (db *DB) UpdateListing(ctx context.Context, listing *models.Listing) error {
	images, err := encodeJSON(listing.Images)
	if err != nil {
		return err
	}
	documents, err := encodeJSON(listing.Documents)
	if err != nil {
		return err
	}
	amenities, err := encodeJSON(listing.Amenities)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
        UPDATE listings SET category = ?, title = ?, description = ?, city = ?, address = ?,
            latitude = ?, longitude = ?, price = ?, price_max = ?, images = ?, documents = ?, amenities = ?,
            status = ?, verification_status = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?`,
		listing.Category, listing.Title, listing.Description, listing.City, listing.Address,
		listing.Latitude, listing.Longitude, listing.Price, listing.PriceMax, images, documents, amenities,
		listing.Status, listing.VerificationStatus, now, listing.ID, listing.Version)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	if err := casResult(ctx, db, result, "listings", listing.ID); err != nil {
		return err
	}
	listing.Version++
	listing.UpdatedAt = now
	return nil
}

// IncrementListingMetric bumps a counter without touching the document version,
// so counters never race with owner edits.
func (db *DB) IncrementListingMetric(ctx context.Context, id int64, metric string) error {
	var column string
	switch metric {
	case models.MetricViews:
		column = "views"
	case models.MetricLeads:
		column = "leads"
	default:
		return fmt.Errorf("unknown listing metric %q", metric)
	}

	result, err := db.ExecContext(ctx, `UPDATE listings SET `+column+` = `+column+` + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment listing %s: %w", column, err)
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

func (db *DB) ListListings(ctx context.Context, filter models.ListingFilter) ([]*models.Listing, int, error) {
	where := []string{discoverableClause}
	var args []any

	if filter.City != "" {
		where = append(where, "city = ? COLLATE NOCASE")
		args = append(args, filter.City)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, filter.MaxPrice)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	page := filter.Page.Normalize()
	pageArgs := append(append([]any{}, args...), page.Size, page.Offset())
	listings, err := db.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE `+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func (db *DB) ListListingsByOwner(ctx context.Context, ownerID int64) ([]*models.Listing, error) {
	return db.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
}

func (db *DB) AllListings(ctx context.Context) ([]*models.Listing, error) {
	return db.queryListings(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY id`)
}

// NearbyListingIDs prefilters discoverable listings with a bounding box on the
// location index and keeps those inside the spherical cap.
func (db *DB) NearbyListingIDs(ctx context.Context, lat, lng, angularRadius float64) ([]int64, error) {
	box := geo.BoundingBox(lat, lng, angularRadius)

	query := `SELECT id, latitude, longitude FROM listings WHERE ` + discoverableClause +
		` AND latitude BETWEEN ? AND ?`
	args := []any{box.MinLat, box.MaxLat}
	if box.WrapsLng {
		query += ` AND (longitude >= ? OR longitude <= ?)`
	} else {
		query += ` AND longitude BETWEEN ? AND ?`
	}
	args = append(args, box.MinLng, box.MaxLng)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby listings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var pLat, pLng float64
		if err := rows.Scan(&id, &pLat, &pLng); err != nil {
			return nil, fmt.Errorf("failed to scan nearby listing: %w", err)
		}
		if geo.Within(lat, lng, angularRadius, pLat, pLng) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

func (db *DB) queryListings(ctx context.Context, query string, args ...any) ([]*models.Listing, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}
