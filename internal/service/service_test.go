package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"monositi/internal/auth"
	"monositi/internal/config"
	"monositi/internal/database"
	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/models"
	"monositi/internal/policy"
	"monositi/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-0123456789"

type fakeSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (f *fakeSender) Send(_ context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes == nil {
		f.codes = make(map[string]string)
	}
	f.codes[phone] = code
	return f.err
}

func (f *fakeSender) last(phone string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[phone]
}

type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.test/" + key, nil
}

// eventRecorder collects event types published on the bus.
type eventRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *eventRecorder) handle(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

func (r *eventRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

type testEnv struct {
	db       *database.DB
	bus      *events.EventBus
	recorder *eventRecorder
	codes    *repository.MemoryCodeStore
	sender   *fakeSender
	uploader *fakeUploader
	tokens   *auth.TokenManager

	identity   *IdentityService
	users      *UserService
	listings   *ListingService
	catalog    *CatalogService
	onboarding *OnboardingService
	bookings   *BookingService
	ratings    *RatingService
	enquiries  *EnquiryService
	search     *SearchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:       db,
		bus:      events.NewEventBus(),
		recorder: &eventRecorder{},
		codes:    repository.NewMemoryCodeStore(),
		sender:   &fakeSender{},
		uploader: &fakeUploader{},
		tokens:   auth.NewTokenManager(testSecret, time.Hour, "monositi-test"),
	}
	env.bus.SubscribeAll(env.recorder.handle)

	authCfg := config.AuthConfig{
		JWTSecret:        testSecret,
		OTPTTL:           5 * time.Minute,
		OTPLength:        6,
		OTPMaxAttempts:   3,
		OTPRequestLimit:  3,
		OTPRequestWindow: time.Hour,
	}

	env.identity = NewIdentityService(db, env.codes, env.sender, env.tokens, authCfg, time.Second, &logger)
	env.users = NewUserService(db, &logger)
	env.listings = NewListingService(db, db, env.uploader, env.bus, 1<<20, &logger)
	env.catalog = NewCatalogService(db, db, &logger)
	env.onboarding = NewOnboardingService(db, db, env.bus, &logger)
	env.ratings = NewRatingService(db, db, &logger)
	env.bookings = NewBookingService(db, db, env.ratings, env.bus, &logger)
	env.bookings.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }
	env.enquiries = NewEnquiryService(db, db, db, db, env.bus, &logger)
	env.search = NewSearchService(nil, db, db, &logger)
	return env
}

func (e *testEnv) user(t *testing.T, phone string, role models.Role) policy.Actor {
	t.Helper()
	u := &models.User{Phone: phone, Name: "user " + phone, Role: role}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	return policy.ActorFor(u)
}

// listing stores a listing directly, bypassing the lifecycle, so tests can
// start from any state.
func (e *testEnv) listing(t *testing.T, owner policy.Actor, mutate func(*models.Listing)) *models.Listing {
	t.Helper()
	l := &models.Listing{
		OwnerID:            owner.ID,
		Kind:               models.KindProperty,
		Title:              "Two bedroom flat",
		City:               "Bengaluru",
		Latitude:           12.97,
		Longitude:          77.59,
		Price:              25000,
		Status:             models.ListingActive,
		VerificationStatus: models.VerificationVerified,
	}
	if mutate != nil {
		mutate(l)
	}
	require.NoError(t, e.db.CreateListing(context.Background(), l))
	return l
}

func (e *testEnv) service(t *testing.T, provider policy.Actor, mutate func(*models.Service)) *models.Service {
	t.Helper()
	s := &models.Service{
		ProviderID:       provider.ID,
		Name:             "Pipe repair",
		Category:         "Plumbing",
		City:             "Bengaluru",
		BasePrice:        400,
		Addons:           []models.Addon{{Name: "parts", Price: 150}, {Name: "weekend", Price: 100}},
		ActiveStatus:     true,
		MonositiVerified: true,
	}
	if mutate != nil {
		mutate(s)
	}
	verified := s.MonositiVerified
	require.NoError(t, e.db.CreateService(context.Background(), s))
	if verified {
		s.MonositiVerified = true
		require.NoError(t, e.db.UpdateService(context.Background(), s))
	}
	return s
}

func assertKind(t *testing.T, want domain.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, domain.KindOf(err), "error: %v", err)
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

type failingLocator struct{}

func (failingLocator) NearbyListingIDs(context.Context, float64, float64, float64) ([]int64, error) {
	return nil, errors.New("index unreachable")
}
