package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"monositi/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, phone string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{Phone: phone, Name: "user " + phone, Role: role}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

func seedListing(t *testing.T, db *DB, ownerID int64, mutate func(*models.Listing)) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		OwnerID:            ownerID,
		Kind:               models.KindProperty,
		Title:              "Two bedroom flat",
		City:               "Indore",
		Latitude:           22.7196,
		Longitude:          75.8577,
		Price:              15000,
		Status:             models.ListingActive,
		VerificationStatus: models.VerificationVerified,
	}
	if mutate != nil {
		mutate(listing)
	}
	require.NoError(t, db.CreateListing(context.Background(), listing))
	return listing
}

func seedService(t *testing.T, db *DB, providerID int64, mutate func(*models.Service)) *models.Service {
	t.Helper()
	service := &models.Service{
		ProviderID:   providerID,
		Name:         "Deep cleaning",
		Category:     "cleaning",
		City:         "Indore",
		BasePrice:    500,
		Addons:       []models.Addon{{Name: "balcony", Price: 100}},
		ActiveStatus: true,
	}
	if mutate != nil {
		mutate(service)
	}
	require.NoError(t, db.CreateService(context.Background(), service))
	return service
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestNewDB_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Schema creation must be idempotent.
	db, err = NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}

func TestEncodeJSON_Nil(t *testing.T) {
	var tags []string
	raw, err := encodeJSON(tags)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	raw, err = encodeJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}
