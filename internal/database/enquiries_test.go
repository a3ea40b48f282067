package database

import (
	"context"
	"testing"

	"monositi/internal/domain"
	"monositi/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEnquiry_BumpsLeads(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "+919800000001", models.RoleOwner)
	listing := seedListing(t, db, owner.ID, nil)

	enquiry := &models.Enquiry{
		TargetType: models.TargetListing,
		TargetID:   listing.ID,
		OwnerID:    owner.ID,
		Name:       "Ravi",
		Phone:      "+919811111111",
		Message:    "Is it still available?",
	}
	require.NoError(t, db.CreateEnquiry(ctx, enquiry))
	assert.Equal(t, models.EnquiryNew, enquiry.Status)
	assert.Nil(t, enquiry.UserID)

	stored, err := db.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Leads)

	inbox, err := db.ListEnquiriesByOwner(ctx, owner.ID, "")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Ravi", inbox[0].Name)
}

func TestCreateEnquiry_MissingTarget(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.CreateEnquiry(ctx, &models.Enquiry{TargetType: models.TargetListing, TargetID: 7, Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = db.CreateEnquiry(ctx, &models.Enquiry{TargetType: models.TargetService, TargetID: 7, Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enquiries`).Scan(&count))
	assert.Zero(t, count)
}

func TestUpdateEnquiryStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	provider := seedUser(t, db, "+919800000002", models.RoleServiceProvider)
	customer := seedUser(t, db, "+919800000005", models.RoleTenant)
	service := seedService(t, db, provider.ID, nil)

	enquiry := &models.Enquiry{
		TargetType: models.TargetService,
		TargetID:   service.ID,
		OwnerID:    provider.ID,
		UserID:     &customer.ID,
		Name:       "Meera",
		Phone:      customer.Phone,
		Message:    "Weekend slots?",
	}
	require.NoError(t, db.CreateEnquiry(ctx, enquiry))

	require.NoError(t, db.UpdateEnquiryStatus(ctx, enquiry.ID, enquiry.Version, models.EnquiryContacted))
	assert.ErrorIs(t, db.UpdateEnquiryStatus(ctx, enquiry.ID, enquiry.Version, models.EnquiryClosed),
		domain.ErrConcurrentModification)

	contacted, err := db.ListEnquiriesByOwner(ctx, provider.ID, models.EnquiryContacted)
	require.NoError(t, err)
	require.Len(t, contacted, 1)
	require.NotNil(t, contacted[0].UserID)
	assert.Equal(t, customer.ID, *contacted[0].UserID)

	closed, err := db.ListEnquiriesByOwner(ctx, provider.ID, models.EnquiryClosed)
	require.NoError(t, err)
	assert.Empty(t, closed)
}
