package database

import (
	"context"
	"fmt"
	"time"

	"monositi/internal/domain"
	"monositi/internal/models"
)

const userColumns = `id, phone, email, name, role, verification_status, is_active, created_at, updated_at, version`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Phone, &u.Email, &u.Name, &role, &u.VerificationStatus,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.Version); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.Role == "" {
		user.Role = models.RoleTenant
	}
	if user.VerificationStatus == "" {
		user.VerificationStatus = models.VerificationPending
	}

	result, err := db.ExecContext(ctx, `
        INSERT INTO users (phone, email, name, role, verification_status, is_active, created_at, updated_at, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		user.Phone, user.Email, user.Name, string(user.Role), user.VerificationStatus, true, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Version = 1
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (db *DB) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone = ?`, phone)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (db *DB) UpdateUserRole(ctx context.Context, id int64, version int64, role models.Role) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET role = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		string(role), time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return casResult(ctx, db, result, "users", id)
}

func (db *DB) SetUserActive(ctx context.Context, id int64, version int64, active bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		active, time.Now().UTC(), id, version)
	if err != nil {
		return fmt.Errorf("failed to update user activity flag: %w", err)
	}
	return casResult(ctx, db, result, "users", id)
}
