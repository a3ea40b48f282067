package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/metrics"
	"monositi/internal/models"
	"monositi/internal/policy"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxListingImages     = 30
	defaultMaxUploadSize = 10 << 20
)

type ListingInput struct {
	Kind        models.ListingKind `json:"kind" validate:"required,oneof=property builder_project monositi"`
	Category    string             `json:"category" validate:"omitempty,oneof=hostel commercial land"`
	Title       string             `json:"title" validate:"required,max=200"`
	Description string             `json:"description" validate:"max=5000"`
	City        string             `json:"city" validate:"required,max=100"`
	Address     string             `json:"address" validate:"max=500"`
	Latitude    *float64           `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64           `json:"longitude" validate:"required,gte=-180,lte=180"`
	Price       float64            `json:"price" validate:"gt=0"`
	PriceMax    float64            `json:"price_max" validate:"omitempty,gtefield=Price"`
	Images      []string           `json:"images" validate:"max=30,dive,url"`
	Documents   []string           `json:"documents" validate:"dive,url"`
	Amenities   []string           `json:"amenities" validate:"dive,required,max=100"`
}

// ListingUpdate carries a partial edit; nil fields are left as they are.
type ListingUpdate struct {
	Title       *string   `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string   `json:"description" validate:"omitempty,max=5000"`
	City        *string   `json:"city" validate:"omitempty,min=1,max=100"`
	Address     *string   `json:"address" validate:"omitempty,max=500"`
	Latitude    *float64  `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64  `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Price       *float64  `json:"price" validate:"omitempty,gt=0"`
	PriceMax    *float64  `json:"price_max" validate:"omitempty,gte=0"`
	Documents   *[]string `json:"documents" validate:"omitempty,dive,url"`
	Amenities   *[]string `json:"amenities" validate:"omitempty,dive,required,max=100"`
}

type RoomInput struct {
	RoomNumber string  `json:"room_number" validate:"required,max=50"`
	RoomType   string  `json:"room_type" validate:"max=50"`
	Rent       float64 `json:"rent" validate:"gte=0"`
	TotalBeds  int     `json:"total_beds" validate:"gt=0,lte=100"`
}

// MediaFile is an uploaded file waiting to be stored.
type MediaFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Bed adjustments accepted by AdjustBeds.
const (
	BedsBook    = "book"
	BedsRelease = "release"
)

var listingCreatorRoles = map[models.Role]bool{
	models.RoleOwner: true,
	models.RoleAgent: true,
	models.RoleAdmin: true,
}

// ListingService owns the listing verification and availability lifecycle and
// the room inventory of hostel listings.
type ListingService struct {
	listings      domain.ListingRepository
	rooms         domain.RoomRepository
	uploader      domain.Uploader
	eventBus      domain.EventPublisher
	maxUploadSize int64
	policy        policy.ListingPolicy
	logger        *zerolog.Logger
}

func NewListingService(listings domain.ListingRepository, rooms domain.RoomRepository, uploader domain.Uploader, eventBus domain.EventPublisher, maxUploadSize int64, logger *zerolog.Logger) *ListingService {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &ListingService{
		listings:      listings,
		rooms:         rooms,
		uploader:      uploader,
		eventBus:      eventBus,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// Create stores a new listing owned by the actor. It starts unverified, with
// the initial availability status of its kind.
func (s *ListingService) Create(ctx context.Context, actor policy.Actor, in ListingInput) (*models.Listing, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if !listingCreatorRoles[actor.Role] {
		return nil, domain.Forbidden("role %s cannot create listings", actor.Role)
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Kind == models.KindMonositi && in.Category == "" {
		return nil, domain.Validation("category is required for monositi listings")
	}
	if in.Kind != models.KindMonositi && in.Category == models.CategoryHostel {
		return nil, domain.Validation("hostel category is only available for monositi listings")
	}

	listing := &models.Listing{
		OwnerID:            actor.ID,
		Kind:               in.Kind,
		Category:           in.Category,
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		City:               strings.TrimSpace(in.City),
		Address:            in.Address,
		Latitude:           *in.Latitude,
		Longitude:          *in.Longitude,
		Price:              in.Price,
		PriceMax:           in.PriceMax,
		Images:             in.Images,
		Documents:          in.Documents,
		Amenities:          in.Amenities,
		Status:             models.InitialListingStatus(in.Kind),
		VerificationStatus: models.VerificationPending,
	}
	if err := s.listings.CreateListing(ctx, listing); err != nil {
		return nil, domain.StoreError(err, "listing")
	}

	s.logger.Info().Int64("listing_id", listing.ID).Int64("owner_id", actor.ID).Str("kind", string(listing.Kind)).Msg("Listing created")
	publishEvent(s.logger, s.eventBus, events.EventListingCreated, listingPayload(listing))
	return listing, nil
}

// Update edits descriptive fields. A verified listing stays verified.
func (s *ListingService) Update(ctx context.Context, actor policy.Actor, id int64, in ListingUpdate) (*models.Listing, error) {
	listing, err := s.authorize(ctx, actor, id, policy.ListingUpdate)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if in.Title != nil {
		listing.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		listing.Description = *in.Description
	}
	if in.City != nil {
		listing.City = strings.TrimSpace(*in.City)
	}
	if in.Address != nil {
		listing.Address = *in.Address
	}
	if in.Latitude != nil {
		listing.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		listing.Longitude = *in.Longitude
	}
	if in.Price != nil {
		listing.Price = *in.Price
	}
	if in.PriceMax != nil {
		listing.PriceMax = *in.PriceMax
	}
	if in.Documents != nil {
		listing.Documents = *in.Documents
	}
	if in.Amenities != nil {
		listing.Amenities = *in.Amenities
	}
	if listing.PriceMax != 0 && listing.PriceMax < listing.Price {
		return nil, domain.Validation("price_max must be at least price")
	}

	if err := s.listings.UpdateListing(ctx, listing); err != nil {
		return nil, domain.StoreError(err, "listing")
	}
	publishEvent(s.logger, s.eventBus, events.EventListingUpdated, listingPayload(listing))
	return listing, nil
}

// SetStatus moves the availability status along the adjacency table of the
// listing's kind. fullhouse is derived from rooms and cannot be set.
func (s *ListingService) SetStatus(ctx context.Context, actor policy.Actor, id int64, status string) (*models.Listing, error) {
	listing, err := s.authorize(ctx, actor, id, policy.ListingSetStatus)
	if err != nil {
		return nil, err
	}
	if status == models.ListingFullHouse {
		return nil, domain.InvalidTransition("fullhouse is derived from room availability")
	}
	if !models.CanTransitionListing(listing.Kind, listing.Status, status) {
		return nil, domain.InvalidTransition("cannot move %s listing from %s to %s", listing.Kind, listing.Status, status)
	}

	from := listing.Status
	listing.Status = status
	if err := s.listings.UpdateListing(ctx, listing); err != nil {
		return nil, domain.StoreError(err, "listing")
	}

	s.logger.Info().Int64("listing_id", id).Str("from", from).Str("to", status).Msg("Listing status changed")
	publishEvent(s.logger, s.eventBus, events.EventListingStatusChanged, listingPayload(listing))
	return listing, nil
}

// SetVerification records an admin decision. Decided listings only go back to
// pending through an explicit reset.
func (s *ListingService) SetVerification(ctx context.Context, actor policy.Actor, id int64, decision string) (*models.Listing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	listing, err := s.authorize(ctx, actor, id, policy.ListingVerify)
	if err != nil {
		return nil, err
	}
	if !canTransitionVerification(listing.VerificationStatus, decision) {
		return nil, domain.InvalidTransition("cannot change verification from %s to %s", listing.VerificationStatus, decision)
	}

	listing.VerificationStatus = decision
	if err := s.listings.UpdateListing(ctx, listing); err != nil {
		return nil, domain.StoreError(err, "listing")
	}

	s.logger.Info().Int64("listing_id", id).Int64("admin_id", actor.ID).Str("decision", decision).Msg("Listing verification changed")
	publishEvent(s.logger, s.eventBus, events.EventListingVerified, listingPayload(listing))
	return listing, nil
}

func canTransitionVerification(from, to string) bool {
	switch from {
	case models.VerificationPending:
		return to == models.VerificationVerified || to == models.VerificationRejected
	case models.VerificationVerified, models.VerificationRejected:
		return to == models.VerificationPending
	}
	return false
}

// Get returns a listing the actor may see. Listings the actor may not see are
// reported as missing. Reads by anyone but the owner count as a view.
func (s *ListingService) Get(ctx context.Context, actor policy.Actor, id int64) (*models.Listing, error) {
	listing, err := s.authorize(ctx, actor, id, policy.ListingView)
	if err != nil {
		return nil, err
	}
	if listing.Discoverable() && actor.ID != listing.OwnerID {
		if err := s.listings.IncrementListingMetric(ctx, id, models.MetricViews); err != nil {
			s.logger.Warn().Err(err).Int64("listing_id", id).Msg("Failed to record listing view")
		} else {
			listing.Views++
		}
	}
	return listing, nil
}

// List returns discoverable listings matching filter.
func (s *ListingService) List(ctx context.Context, filter models.ListingFilter) (*models.PageResult[*models.Listing], error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domain.Validation("unknown listing kind %q", filter.Kind)
	}
	if filter.MinPrice < 0 || filter.MaxPrice < 0 {
		return nil, domain.Validation("price filters must not be negative")
	}
	if filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		return nil, domain.Validation("min_price must not exceed max_price")
	}
	filter.Page = filter.Page.Normalize()

	items, total, err := s.listings.ListListings(ctx, filter)
	if err != nil {
		return nil, domain.StoreError(err, "listing")
	}
	if items == nil {
		items = []*models.Listing{}
	}
	return &models.PageResult[*models.Listing]{
		Items: items,
		Total: total,
		Page:  filter.Page.Number,
		Limit: filter.Page.Size,
	}, nil
}

// Mine returns every listing owned by the actor regardless of state.
func (s *ListingService) Mine(ctx context.Context, actor policy.Actor) ([]*models.Listing, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	items, err := s.listings.ListListingsByOwner(ctx, actor.ID)
	if err != nil {
		return nil, domain.StoreError(err, "listing")
	}
	if items == nil {
		items = []*models.Listing{}
	}
	return items, nil
}

// All returns every listing for admin exports.
func (s *ListingService) All(ctx context.Context, actor policy.Actor) ([]*models.Listing, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	items, err := s.listings.AllListings(ctx)
	if err != nil {
		return nil, domain.StoreError(err, "listing")
	}
	return items, nil
}

// AddImages uploads files and appends their public URLs to the listing.
func (s *ListingService) AddImages(ctx context.Context, actor policy.Actor, id int64, files []MediaFile) (*models.Listing, error) {
	listing, err := s.authorize(ctx, actor, id, policy.ListingUploadMedia)
	if err != nil {
		return nil, err
	}
	if s.uploader == nil {
		return nil, domain.Upstream("media storage is not configured", nil)
	}
	if len(files) == 0 {
		return nil, domain.Validation("at least one image is required")
	}
	if len(listing.Images)+len(files) > maxListingImages {
		return nil, domain.Validation("a listing can hold at most %d images", maxListingImages)
	}
	for _, f := range files {
		if len(f.Data) == 0 {
			return nil, domain.Validation("image %q is empty", f.Filename)
		}
		if int64(len(f.Data)) > s.maxUploadSize {
			return nil, domain.Validation("image %q exceeds %d bytes", f.Filename, s.maxUploadSize)
		}
		if !strings.HasPrefix(f.ContentType, "image/") {
			return nil, domain.Validation("image %q has unsupported type %q", f.Filename, f.ContentType)
		}
	}

	for _, f := range files {
		key := fmt.Sprintf("listings/%d/%s%s", id, uuid.NewString(), strings.ToLower(path.Ext(f.Filename)))
		url, err := s.uploader.Upload(ctx, key, f.ContentType, f.Data)
		if err != nil {
			return nil, domain.Upstream("failed to store image", err)
		}
		listing.Images = append(listing.Images, url)
	}

	if err := s.listings.UpdateListing(ctx, listing); err != nil {
		return nil, domain.StoreError(err, "listing")
	}
	s.logger.Info().Int64("listing_id", id).Int("count", len(files)).Msg("Listing images uploaded")
	return listing, nil
}

// AddRoom adds bed inventory to a hostel listing. New rooms start with every
// bed available.
func (s *ListingService) AddRoom(ctx context.Context, actor policy.Actor, listingID int64, in RoomInput) (*models.Room, error) {
	listing, err := s.authorize(ctx, actor, listingID, policy.ListingView)
	if err != nil {
		return nil, err
	}
	if actor.ID == listing.OwnerID && !listing.HasRooms() {
		return nil, domain.Validation("rooms are only supported on monositi hostel listings")
	}
	if err := policy.Require(s.policy.AllowedActions(actor, listing), policy.ListingManageRooms); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	room := &models.Room{
		ListingID:     listingID,
		RoomNumber:    strings.TrimSpace(in.RoomNumber),
		RoomType:      in.RoomType,
		Rent:          in.Rent,
		TotalBeds:     in.TotalBeds,
		AvailableBeds: in.TotalBeds,
	}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, domain.StoreError(err, "room")
	}
	s.afterInventoryChange(ctx, listing)
	return room, nil
}

func (s *ListingService) ListRooms(ctx context.Context, actor policy.Actor, listingID int64) ([]*models.Room, error) {
	if _, err := s.authorize(ctx, actor, listingID, policy.ListingView); err != nil {
		return nil, err
	}
	rooms, err := s.rooms.ListRooms(ctx, listingID)
	if err != nil {
		return nil, domain.StoreError(err, "room")
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}
	return rooms, nil
}

// AdjustBeds books or releases n beds in one conditional update. The room can
// never leave [0, total_beds]; an out-of-range request is a capacity error.
func (s *ListingService) AdjustBeds(ctx context.Context, actor policy.Actor, roomID int64, action string, n int) (*models.Room, error) {
	if err := requireAuth(actor); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, domain.Validation("beds must be greater than 0")
	}
	var delta int
	switch action {
	case BedsBook:
		delta = -n
	case BedsRelease:
		delta = n
	default:
		return nil, domain.Validation("action must be one of [%s %s]", BedsBook, BedsRelease)
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, domain.StoreError(err, "room")
	}
	listing, err := s.authorize(ctx, actor, room.ListingID, policy.ListingManageRooms)
	if err != nil {
		return nil, err
	}

	updated, err := s.rooms.AdjustRoomBeds(ctx, roomID, delta)
	if err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			metrics.IncCapacityRejection()
			s.logger.Warn().Int64("room_id", roomID).Str("action", action).Int("beds", n).Msg("Room capacity rejected")
			return nil, domain.Capacity("room %s cannot %s %d beds", room.RoomNumber, action, n)
		}
		return nil, domain.StoreError(err, "room")
	}

	s.logger.Info().
		Int64("room_id", roomID).
		Str("action", action).
		Int("beds", n).
		Int("available_beds", updated.AvailableBeds).
		Msg("Room inventory changed")
	s.afterInventoryChange(ctx, listing)
	return updated, nil
}

// afterInventoryChange publishes a status change when room inventory moved the
// listing in or out of fullhouse.
func (s *ListingService) afterInventoryChange(ctx context.Context, before *models.Listing) {
	after, err := s.listings.GetListing(ctx, before.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("listing_id", before.ID).Msg("Failed to reload listing after inventory change")
		return
	}
	if after.Status != before.Status {
		s.logger.Info().Int64("listing_id", after.ID).Str("from", before.Status).Str("to", after.Status).Msg("Listing occupancy changed")
		publishEvent(s.logger, s.eventBus, events.EventListingStatusChanged, listingPayload(after))
	}
}

// authorize loads a listing and checks the actor may perform action on it.
// Listings the actor cannot even view are reported as not found.
func (s *ListingService) authorize(ctx context.Context, actor policy.Actor, id int64, action policy.Action) (*models.Listing, error) {
	listing, err := s.listings.GetListing(ctx, id)
	if err != nil {
		return nil, domain.StoreError(err, "listing")
	}
	allowed := s.policy.AllowedActions(actor, listing)
	if !allowed.Has(policy.ListingView) {
		return nil, domain.NotFound("listing not found")
	}
	if err := policy.Require(allowed, action); err != nil {
		if !actor.Authenticated() {
			return nil, domain.Unauthenticated("authentication required")
		}
		return nil, err
	}
	return listing, nil
}
