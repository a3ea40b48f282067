package domain

import (
	"context"
	"time"

	"monositi/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	UpdateUserRole(ctx context.Context, id int64, version int64, role models.Role) error
	SetUserActive(ctx context.Context, id int64, version int64, active bool) error
}

type ListingRepository interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	GetListingsByIDs(ctx context.Context, ids []int64) ([]*models.Listing, error)
	UpdateListing(ctx context.Context, listing *models.Listing) error
	IncrementListingMetric(ctx context.Context, id int64, metric string) error
	ListListings(ctx context.Context, filter models.ListingFilter) ([]*models.Listing, int, error)
	ListListingsByOwner(ctx context.Context, ownerID int64) ([]*models.Listing, error)
	AllListings(ctx context.Context) ([]*models.Listing, error)
}

type RoomRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	ListRooms(ctx context.Context, listingID int64) ([]*models.Room, error)
	// AdjustRoomBeds applies delta to available_beds only if the result stays
	// within [0, total_beds]; otherwise ErrCapacityExceeded.
	AdjustRoomBeds(ctx context.Context, id int64, delta int) (*models.Room, error)
}

type ServiceRepository interface {
	CreateService(ctx context.Context, service *models.Service) error
	// CreateServiceWithPromotion promotes a tenant provider to service_provider
	// and inserts the service in one unit of work.
	CreateServiceWithPromotion(ctx context.Context, service *models.Service) error
	GetService(ctx context.Context, id int64) (*models.Service, error)
	UpdateService(ctx context.Context, service *models.Service) error
	ListServices(ctx context.Context, filter models.ServiceFilter) ([]*models.Service, int, error)
	ListServicesByProvider(ctx context.Context, providerID int64) ([]*models.Service, error)
	SetServiceRating(ctx context.Context, id int64, rating float64, count int) error
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.ServiceBooking) error
	GetBooking(ctx context.Context, id int64) (*models.ServiceBooking, error)
	UpdateBookingStatus(ctx context.Context, id int64, version int64, status string) error
	// SetBookingRating writes the rating of one party ("customer" or "provider")
	// if it is still unset; ErrDuplicate otherwise. The two parties' columns are
	// guarded independently, so concurrent ratings by both parties both land.
	SetBookingRating(ctx context.Context, id int64, party string, score int, review string) error
	ListBookingsByCustomer(ctx context.Context, customerID int64) ([]*models.ServiceBooking, error)
	ListBookingsByProvider(ctx context.Context, providerID int64) ([]*models.ServiceBooking, error)
	ListCustomerRatings(ctx context.Context, serviceID int64) ([]int, error)
	AllBookings(ctx context.Context) ([]*models.ServiceBooking, error)
}

type ProviderRequestRepository interface {
	// CreateProviderRequest returns ErrDuplicate when the user already has a pending request.
	CreateProviderRequest(ctx context.Context, req *models.ProviderRequest) error
	GetProviderRequest(ctx context.Context, id int64) (*models.ProviderRequest, error)
	GetPendingProviderRequest(ctx context.Context, userID int64) (*models.ProviderRequest, error)
	// ResolveProviderRequest moves a pending request to its decided status and,
	// when promote is set, raises the user's role in the same unit of work.
	ResolveProviderRequest(ctx context.Context, req *models.ProviderRequest, promote bool) error
	ListProviderRequests(ctx context.Context, status string) ([]*models.ProviderRequest, error)
	ListProviderRequestsByUser(ctx context.Context, userID int64) ([]*models.ProviderRequest, error)
}

type EnquiryRepository interface {
	// CreateEnquiry stores the enquiry and bumps the target listing's lead counter together.
	CreateEnquiry(ctx context.Context, enquiry *models.Enquiry) error
	GetEnquiry(ctx context.Context, id int64) (*models.Enquiry, error)
	UpdateEnquiryStatus(ctx context.Context, id int64, version int64, status string) error
	ListEnquiriesByOwner(ctx context.Context, ownerID int64, status string) ([]*models.Enquiry, error)
}

// ListingLocator answers spherical containment queries. angularRadius is in radians.
type ListingLocator interface {
	NearbyListingIDs(ctx context.Context, lat, lng, angularRadius float64) ([]int64, error)
}

// ListingIndex is a secondary geospatial index kept in sync with the store.
type ListingIndex interface {
	ListingLocator
	UpsertListing(ctx context.Context, listing *models.Listing) error
	DeleteListing(ctx context.Context, id int64) error
}

// CodeStore keeps short-lived one-time codes and rate counters.
type CodeStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// TakeIfValid deletes key and reports true when it holds value and has not
	// expired. A mismatch leaves the key in place.
	TakeIfValid(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CodeSender delivers a one-time code to a phone.
type CodeSender interface {
	Send(ctx context.Context, phone, code string) error
}

// Uploader stores a file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type RatingAggregator interface {
	Recompute(ctx context.Context, serviceID int64) (float64, error)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
