package service

import (
	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/models"

	"github.com/rs/zerolog"
)

// publishEvent emits a domain event. Delivery problems are logged and never
// fail the operation that produced the event.
func publishEvent(logger *zerolog.Logger, bus domain.EventPublisher, eventType string, payload interface{}) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to publish event")
	}
}

func listingPayload(l *models.Listing) events.ListingEventPayload {
	return events.ListingEventPayload{
		ListingID:          l.ID,
		OwnerID:            l.OwnerID,
		Kind:               string(l.Kind),
		Title:              l.Title,
		City:               l.City,
		Status:             l.Status,
		VerificationStatus: l.VerificationStatus,
		Latitude:           l.Latitude,
		Longitude:          l.Longitude,
	}
}

func bookingPayload(b *models.ServiceBooking, changedBy int64) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:     b.ID,
		ServiceID:     b.ServiceID,
		CustomerID:    b.CustomerID,
		ProviderID:    b.ProviderID,
		Status:        b.Status,
		ScheduledDate: b.ScheduledDate,
		TotalPrice:    b.TotalPrice,
		ChangedByID:   changedBy,
	}
}
