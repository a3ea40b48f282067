package notify

import (
	"context"
	"errors"
	"fmt"

	"monositi/internal/domain"
	"monositi/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// ErrAlertQueueFull is returned when an alert is dropped because the send
// queue is saturated.
var ErrAlertQueueFull = errors.New("admin alert queue is full")

// AdminNotifier forwards moderation-relevant events to the admin Telegram chats.
// Event handlers only enqueue; Run delivers, so a slow Telegram API never holds
// up the request that published the event.
type AdminNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	queue   chan string
	logger  *zerolog.Logger
}

func NewAdminNotifier(bot domain.TelegramSender, chatIDs []int64, queueSize int, logger *zerolog.Logger) *AdminNotifier {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &AdminNotifier{bot: bot, chatIDs: chatIDs, queue: make(chan string, queueSize), logger: logger}
}

// Run sends queued alerts until ctx is cancelled.
func (n *AdminNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if pending := len(n.queue); pending > 0 {
				n.logger.Warn().Int("pending", pending).Msg("Admin alerts dropped on shutdown")
			}
			return
		case text := <-n.queue:
			_ = n.broadcast(text)
		}
	}
}

// Attach subscribes the notifier to the events admins act on.
func (n *AdminNotifier) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventRequestSubmitted, n.onRequestSubmitted)
	bus.Subscribe(events.EventListingCreated, n.onListingCreated)
	bus.Subscribe(events.EventEnquiryCreated, n.onEnquiryCreated)
}

func (n *AdminNotifier) onRequestSubmitted(e *events.Event) error {
	var p events.ProviderRequestEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	return n.enqueue(fmt.Sprintf(
		"New provider request #%d\nUser: %d\nCategory: %s\nReview it with PATCH /provider-requests/%d/approve or /reject",
		p.RequestID, p.UserID, p.ServiceCategory, p.RequestID))
}

func (n *AdminNotifier) onListingCreated(e *events.Event) error {
	var p events.ListingEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	return n.enqueue(fmt.Sprintf(
		"Listing #%d awaits verification\n%s (%s) in %s\nOwner: %d",
		p.ListingID, p.Title, p.Kind, p.City, p.OwnerID))
}

func (n *AdminNotifier) onEnquiryCreated(e *events.Event) error {
	var p events.EnquiryEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	return n.enqueue(fmt.Sprintf("New enquiry #%d on %s #%d from %s",
		p.EnquiryID, p.TargetType, p.TargetID, p.Name))
}

func (n *AdminNotifier) enqueue(text string) error {
	select {
	case n.queue <- text:
		return nil
	default:
		n.logger.Warn().Msg("Admin alert queue full, dropping alert")
		return ErrAlertQueueFull
	}
}

func (n *AdminNotifier) broadcast(text string) error {
	var firstErr error
	for _, chatID := range n.chatIDs {
		if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send admin alert")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
