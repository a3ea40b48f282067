package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/models"
	"monositi/internal/notify"
	"monositi/internal/policy"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validListingInput() ListingInput {
	return ListingInput{
		Kind:      models.KindProperty,
		Title:     "Sea facing 2BHK",
		City:      "Mumbai",
		Latitude:  floatPtr(19.07),
		Longitude: floatPtr(72.87),
		Price:     45000,
		Amenities: []string{"lift", "parking"},
	}
}

func TestListing_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)

	listing, err := env.listings.Create(ctx, owner, validListingInput())
	require.NoError(t, err)
	assert.Equal(t, models.ListingPending, listing.Status)
	assert.Equal(t, models.VerificationPending, listing.VerificationStatus)
	assert.Equal(t, owner.ID, listing.OwnerID)
	assert.Contains(t, env.recorder.seen(), events.EventListingCreated)

	in := validListingInput()
	in.Kind = models.KindMonositi
	in.Category = models.CategoryHostel
	hostel, err := env.listings.Create(ctx, owner, in)
	require.NoError(t, err)
	assert.Equal(t, models.ListingAvailable, hostel.Status)
}

type slowTelegram struct {
	delay time.Duration
}

func (s slowTelegram) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	time.Sleep(s.delay)
	return tgbotapi.Message{}, nil
}

func TestListing_CreateDoesNotWaitForAdminAlerts(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "9000000001", models.RoleOwner)

	logger := zerolog.Nop()
	notifier := notify.NewAdminNotifier(slowTelegram{delay: 2 * time.Second}, []int64{1}, 4, &logger)
	notifier.Attach(env.bus)
	runCtx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	go notifier.Run(runCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := env.listings.Create(ctx, owner, validListingInput())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestListing_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)

	cases := map[string]func(*ListingInput){
		"zero price":        func(in *ListingInput) { in.Price = 0 },
		"negative price":    func(in *ListingInput) { in.Price = -10 },
		"missing latitude":  func(in *ListingInput) { in.Latitude = nil },
		"missing longitude": func(in *ListingInput) { in.Longitude = nil },
		"latitude range":    func(in *ListingInput) { in.Latitude = floatPtr(91) },
		"missing city":      func(in *ListingInput) { in.City = "" },
		"unknown kind":      func(in *ListingInput) { in.Kind = "castle" },
		"price max below":   func(in *ListingInput) { in.PriceMax = 100 },
		"monositi category": func(in *ListingInput) { in.Kind = models.KindMonositi },
		"hostel property":   func(in *ListingInput) { in.Category = models.CategoryHostel },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validListingInput()
			mutate(&in)
			_, err := env.listings.Create(ctx, owner, in)
			assertKind(t, domain.KindValidation, err)
		})
	}
}

func TestListing_CreateRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.listings.Create(ctx, policy.Actor{}, validListingInput())
	assertKind(t, domain.KindUnauthenticated, err)

	tenant := env.user(t, "9000000002", models.RoleTenant)
	_, err = env.listings.Create(ctx, tenant, validListingInput())
	assertKind(t, domain.KindForbidden, err)

	agent := env.user(t, "9000000003", models.RoleAgent)
	_, err = env.listings.Create(ctx, agent, validListingInput())
	assert.NoError(t, err)
}

func TestListing_UpdateOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	other := env.user(t, "9000000002", models.RoleOwner)
	listing := env.listing(t, owner, nil)

	_, err := env.listings.Update(ctx, other, listing.ID, ListingUpdate{Title: strPtr("Hijacked")})
	assertKind(t, domain.KindForbidden, err)

	updated, err := env.listings.Update(ctx, owner, listing.ID, ListingUpdate{Title: strPtr("Renovated flat"), Price: floatPtr(30000)})
	require.NoError(t, err)
	assert.Equal(t, "Renovated flat", updated.Title)
	assert.Equal(t, 30000.0, updated.Price)

	// Editing a verified listing keeps its verification.
	assert.Equal(t, models.VerificationVerified, updated.VerificationStatus)

	_, err = env.listings.Update(ctx, owner, listing.ID, ListingUpdate{Price: floatPtr(0)})
	assertKind(t, domain.KindValidation, err)
}

func TestListing_HiddenListingLooksMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	other := env.user(t, "9000000002", models.RoleTenant)
	listing := env.listing(t, owner, func(l *models.Listing) { l.VerificationStatus = models.VerificationPending })

	_, err := env.listings.Get(ctx, other, listing.ID)
	assertKind(t, domain.KindNotFound, err)
	_, err = env.listings.Update(ctx, other, listing.ID, ListingUpdate{Title: strPtr("x")})
	assertKind(t, domain.KindNotFound, err)

	got, err := env.listings.Get(ctx, owner, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.ID, got.ID)

	_, err = env.listings.Get(ctx, policy.Actor{}, 9999)
	assertKind(t, domain.KindNotFound, err)
}

func TestListing_GetCountsViews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	listing := env.listing(t, owner, nil)

	got, err := env.listings.Get(ctx, policy.Actor{}, listing.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Views)

	_, err = env.listings.Get(ctx, policy.Actor{}, listing.ID)
	require.NoError(t, err)

	// Owner reads are not views.
	got, err = env.listings.Get(ctx, owner, listing.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Views)
}

func TestListing_AdminReadOfHiddenListingIsNotAView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	admin := env.user(t, "9000000009", models.RoleAdmin)
	listing := env.listing(t, owner, func(l *models.Listing) { l.VerificationStatus = models.VerificationPending })

	got, err := env.listings.Get(ctx, admin, listing.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.Views)

	stored, err := env.db.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stored.Views)
}

func TestListing_SetVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	admin := env.user(t, "9000000009", models.RoleAdmin)
	listing := env.listing(t, owner, func(l *models.Listing) { l.VerificationStatus = models.VerificationPending })

	_, err := env.listings.SetVerification(ctx, owner, listing.ID, models.VerificationVerified)
	assertKind(t, domain.KindForbidden, err)

	_, err = env.listings.SetVerification(ctx, admin, 9999, models.VerificationVerified)
	assertKind(t, domain.KindNotFound, err)

	verified, err := env.listings.SetVerification(ctx, admin, listing.ID, models.VerificationVerified)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationVerified, verified.VerificationStatus)
	assert.Contains(t, env.recorder.seen(), events.EventListingVerified)

	_, err = env.listings.SetVerification(ctx, admin, listing.ID, models.VerificationRejected)
	assertKind(t, domain.KindInvalidTransition, err)

	reset, err := env.listings.SetVerification(ctx, admin, listing.ID, models.VerificationPending)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPending, reset.VerificationStatus)

	_, err = env.listings.SetVerification(ctx, admin, listing.ID, "bogus")
	assertKind(t, domain.KindInvalidTransition, err)
}

func TestListing_SetStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	listing := env.listing(t, owner, func(l *models.Listing) { l.Status = models.ListingPending })

	_, err := env.listings.SetStatus(ctx, owner, listing.ID, models.ListingSold)
	assertKind(t, domain.KindInvalidTransition, err)

	active, err := env.listings.SetStatus(ctx, owner, listing.ID, models.ListingActive)
	require.NoError(t, err)
	assert.Equal(t, models.ListingActive, active.Status)

	rented, err := env.listings.SetStatus(ctx, owner, listing.ID, models.ListingRented)
	require.NoError(t, err)
	assert.Equal(t, models.ListingRented, rented.Status)

	hostel := env.listing(t, owner, func(l *models.Listing) {
		l.Kind = models.KindMonositi
		l.Category = models.CategoryHostel
		l.Status = models.ListingAvailable
	})
	_, err = env.listings.SetStatus(ctx, owner, hostel.ID, models.ListingFullHouse)
	assertKind(t, domain.KindInvalidTransition, err)
	booked, err := env.listings.SetStatus(ctx, owner, hostel.ID, models.ListingBooked)
	require.NoError(t, err)
	assert.Equal(t, models.ListingBooked, booked.Status)
}

func TestListing_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)

	env.listing(t, owner, nil)
	env.listing(t, owner, func(l *models.Listing) { l.City = "Pune"; l.Price = 9000 })
	env.listing(t, owner, func(l *models.Listing) { l.VerificationStatus = models.VerificationPending })
	env.listing(t, owner, func(l *models.Listing) { l.Status = models.ListingSold })

	page, err := env.listings.List(ctx, models.ListingFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, models.DefaultPageSize, page.Limit)

	page, err = env.listings.List(ctx, models.ListingFilter{City: "pune"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = env.listings.List(ctx, models.ListingFilter{MaxPrice: 10000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = env.listings.List(ctx, models.ListingFilter{MinPrice: 5, MaxPrice: 1})
	assertKind(t, domain.KindValidation, err)

	mine, err := env.listings.Mine(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, mine, 4)
}

func TestListing_AddImages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	listing := env.listing(t, owner, nil)

	updated, err := env.listings.AddImages(ctx, owner, listing.ID, []MediaFile{
		{Filename: "front.JPG", ContentType: "image/jpeg", Data: []byte("jpeg")},
	})
	require.NoError(t, err)
	require.Len(t, updated.Images, 1)
	assert.Contains(t, updated.Images[0], "https://cdn.test/listings/")
	assert.Contains(t, updated.Images[0], ".jpg")

	_, err = env.listings.AddImages(ctx, owner, listing.ID, []MediaFile{
		{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("hi")},
	})
	assertKind(t, domain.KindValidation, err)

	_, err = env.listings.AddImages(ctx, owner, listing.ID, []MediaFile{
		{Filename: "huge.png", ContentType: "image/png", Data: make([]byte, 2<<20)},
	})
	assertKind(t, domain.KindValidation, err)

	env.uploader.err = errors.New("bucket unavailable")
	_, err = env.listings.AddImages(ctx, owner, listing.ID, []MediaFile{
		{Filename: "back.png", ContentType: "image/png", Data: []byte("png")},
	})
	assertKind(t, domain.KindUpstream, err)

	stored, err := env.db.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Images, 1)
}

func hostelWithRoom(t *testing.T, env *testEnv, owner policy.Actor, beds int) (*models.Listing, *models.Room) {
	t.Helper()
	listing := env.listing(t, owner, func(l *models.Listing) {
		l.Kind = models.KindMonositi
		l.Category = models.CategoryHostel
		l.Status = models.ListingAvailable
	})
	room, err := env.listings.AddRoom(context.Background(), owner, listing.ID, RoomInput{RoomNumber: "101", TotalBeds: beds, Rent: 6000})
	require.NoError(t, err)
	return listing, room
}

func TestRooms_AddRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	other := env.user(t, "9000000002", models.RoleOwner)

	listing, room := hostelWithRoom(t, env, owner, 4)
	assert.Equal(t, 4, room.AvailableBeds)
	assert.Equal(t, models.RoomAvailable, room.Status)

	_, err := env.listings.AddRoom(ctx, other, listing.ID, RoomInput{RoomNumber: "102", TotalBeds: 2})
	assertKind(t, domain.KindForbidden, err)

	_, err = env.listings.AddRoom(ctx, owner, listing.ID, RoomInput{RoomNumber: "103", TotalBeds: 0})
	assertKind(t, domain.KindValidation, err)

	flat := env.listing(t, owner, nil)
	_, err = env.listings.AddRoom(ctx, owner, flat.ID, RoomInput{RoomNumber: "1", TotalBeds: 2})
	assertKind(t, domain.KindValidation, err)

	rooms, err := env.listings.ListRooms(ctx, policy.Actor{}, listing.ID)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestRooms_AdjustBedsKeepsBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	listing, room := hostelWithRoom(t, env, owner, 2)

	full, err := env.listings.AdjustBeds(ctx, owner, room.ID, BedsBook, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, full.AvailableBeds)
	assert.Equal(t, models.RoomFull, full.Status)

	stored, err := env.db.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingFullHouse, stored.Status)
	assert.Contains(t, env.recorder.seen(), events.EventListingStatusChanged)

	_, err = env.listings.AdjustBeds(ctx, owner, room.ID, BedsBook, 1)
	assertKind(t, domain.KindCapacity, err)

	freed, err := env.listings.AdjustBeds(ctx, owner, room.ID, BedsRelease, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, freed.AvailableBeds)
	assert.Equal(t, models.RoomAvailable, freed.Status)

	stored, err = env.db.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingAvailable, stored.Status)

	_, err = env.listings.AdjustBeds(ctx, owner, room.ID, BedsRelease, 2)
	assertKind(t, domain.KindCapacity, err)

	_, err = env.listings.AdjustBeds(ctx, owner, room.ID, BedsBook, 0)
	assertKind(t, domain.KindValidation, err)
	_, err = env.listings.AdjustBeds(ctx, owner, room.ID, "steal", 1)
	assertKind(t, domain.KindValidation, err)

	other := env.user(t, "9000000002", models.RoleOwner)
	_, err = env.listings.AdjustBeds(ctx, other, room.ID, BedsBook, 1)
	assertKind(t, domain.KindForbidden, err)
}

func TestRooms_ConcurrentBookingNeverOversells(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "9000000001", models.RoleOwner)
	_, room := hostelWithRoom(t, env, owner, 5)

	var (
		wg       sync.WaitGroup
		booked   atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.listings.AdjustBeds(ctx, owner, room.ID, BedsBook, 1)
			switch domain.KindOf(err) {
			case "":
				booked.Add(1)
			case domain.KindCapacity:
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, booked.Load())
	assert.EqualValues(t, 7, rejected.Load())

	stored, err := env.db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableBeds)
	assert.Equal(t, models.RoomFull, stored.Status)
}
