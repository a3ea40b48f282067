// Package policy decides which actions an actor may perform on an entity.
// Lifecycle services ask once per operation and never inline role checks.
package policy

import (
	"sort"

	"monositi/internal/domain"
	"monositi/internal/models"
)

// Actor is the resolved caller of an operation. The zero Actor is anonymous.
type Actor struct {
	ID   int64
	Role models.Role
}

func (a Actor) Authenticated() bool { return a.ID != 0 }

func (a Actor) IsAdmin() bool { return a.Authenticated() && a.Role == models.RoleAdmin }

// ActorFor builds an Actor from a stored user.
func ActorFor(u *models.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, Role: u.Role}
}

type Action string

const (
	ListingView        Action = "listing:view"
	ListingUpdate      Action = "listing:update"
	ListingSetStatus   Action = "listing:set_status"
	ListingVerify      Action = "listing:verify"
	ListingManageRooms Action = "listing:manage_rooms"
	ListingUploadMedia Action = "listing:upload_media"

	ServiceView            Action = "service:view"
	ServiceUpdate          Action = "service:update"
	ServiceToggleActive    Action = "service:toggle_active"
	ServiceSetAvailability Action = "service:set_availability"
	ServiceVerify          Action = "service:verify"

	BookingView     Action = "booking:view"
	BookingAccept   Action = "booking:accept"
	BookingReject   Action = "booking:reject"
	BookingComplete Action = "booking:complete"
	BookingCancel   Action = "booking:cancel"
	BookingRate     Action = "booking:rate"

	RequestView   Action = "provider_request:view"
	RequestDecide Action = "provider_request:decide"

	EnquiryView         Action = "enquiry:view"
	EnquiryUpdateStatus Action = "enquiry:update_status"
)

type ActionSet map[Action]struct{}

func newSet(actions ...Action) ActionSet {
	s := make(ActionSet, len(actions))
	s.add(actions...)
	return s
}

func (s ActionSet) add(actions ...Action) {
	for _, a := range actions {
		s[a] = struct{}{}
	}
}

func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

// List returns the actions in a stable order.
func (s ActionSet) List() []Action {
	out := make([]Action, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Policy exposes the set of actions an actor may take on an entity.
type Policy[T any] interface {
	AllowedActions(actor Actor, entity T) ActionSet
}

// Require returns a Forbidden error unless set contains action.
func Require(set ActionSet, action Action) error {
	if set.Has(action) {
		return nil
	}
	return domain.Forbidden("not allowed to perform %s", action)
}

type ListingPolicy struct{}

func (ListingPolicy) AllowedActions(actor Actor, l *models.Listing) ActionSet {
	set := newSet()
	if l.Discoverable() {
		set.add(ListingView)
	}
	if actor.Authenticated() && actor.ID == l.OwnerID {
		set.add(ListingView, ListingUpdate, ListingSetStatus, ListingUploadMedia)
		if l.HasRooms() {
			set.add(ListingManageRooms)
		}
	}
	if actor.IsAdmin() {
		set.add(ListingView, ListingVerify)
	}
	return set
}

type ServicePolicy struct{}

func (ServicePolicy) AllowedActions(actor Actor, s *models.Service) ActionSet {
	set := newSet()
	if s.ActiveStatus {
		set.add(ServiceView)
	}
	if actor.Authenticated() && actor.ID == s.ProviderID {
		set.add(ServiceView, ServiceUpdate, ServiceToggleActive, ServiceSetAvailability)
	}
	if actor.IsAdmin() {
		set.add(ServiceView, ServiceVerify)
	}
	return set
}

// BookingPolicy grants edges by party. Whether the edge exists from the current
// status is the state machine's concern, not the policy's.
type BookingPolicy struct{}

func (BookingPolicy) AllowedActions(actor Actor, b *models.ServiceBooking) ActionSet {
	set := newSet()
	if !actor.Authenticated() {
		return set
	}
	if actor.ID == b.CustomerID {
		set.add(BookingView, BookingCancel, BookingRate)
	}
	if actor.ID == b.ProviderID {
		set.add(BookingView, BookingAccept, BookingReject, BookingComplete, BookingRate)
	}
	if actor.IsAdmin() {
		set.add(BookingView)
	}
	return set
}

// BookingCapability maps a state machine action onto the capability that gates it.
func BookingCapability(action models.BookingAction) Action {
	switch action {
	case models.ActionAccept:
		return BookingAccept
	case models.ActionReject:
		return BookingReject
	case models.ActionComplete:
		return BookingComplete
	case models.ActionCancel:
		return BookingCancel
	}
	return ""
}

type ProviderRequestPolicy struct{}

func (ProviderRequestPolicy) AllowedActions(actor Actor, r *models.ProviderRequest) ActionSet {
	set := newSet()
	if actor.Authenticated() && actor.ID == r.UserID {
		set.add(RequestView)
	}
	if actor.IsAdmin() {
		set.add(RequestView, RequestDecide)
	}
	return set
}

type EnquiryPolicy struct{}

func (EnquiryPolicy) AllowedActions(actor Actor, e *models.Enquiry) ActionSet {
	set := newSet()
	if !actor.Authenticated() {
		return set
	}
	if e.UserID != nil && *e.UserID == actor.ID {
		set.add(EnquiryView)
	}
	if actor.ID == e.OwnerID || actor.IsAdmin() {
		set.add(EnquiryView, EnquiryUpdateStatus)
	}
	return set
}
