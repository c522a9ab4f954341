package booking_lifecycle_service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/repository"
	"github.com/joy095/carrental/services/driver_assignment_service"
	"github.com/joy095/carrental/utils"
	"github.com/joy095/carrental/utils/mail"
)

// Service runs the booking state machine:
//
//	pending -> confirmed   payment (system) or admin
//	pending -> cancelled   owner or admin
//	any     -> any         admin override
type Service struct {
	store  repository.Store
	mailer mail.Mailer
	now    func() time.Time
}

func New(store repository.Store, mailer mail.Mailer) *Service {
	return &Service{store: store, mailer: mailer, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates the checkout request and stores a pending booking owned by actor.
func (s *Service) Create(ctx context.Context, actor utils.Principal, in booking_models.CreateBookingInput) (*booking_models.Booking, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	booking, err := booking_models.NewBooking(actor.ID, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	logger.InfoLogger.Infof("Booking %s created for user %s (car %s)", booking.ID, actor.ID, booking.CarID)
	return booking, nil
}

// Get returns the booking if actor owns it or is an admin.
func (s *Service) Get(ctx context.Context, bookingID uuid.UUID, actor utils.Principal) (*booking_models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(booking, actor); err != nil {
		return nil, err
	}
	return booking, nil
}

func checkOwner(b *booking_models.Booking, actor utils.Principal) error {
	if actor.Role == utils.RoleUser && b.UserID != actor.ID {
		return fmt.Errorf("booking %s not found: %w", b.ID, utils.ErrNotFound)
	}
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*booking_models.Booking, error) {
	return s.store.ListBookings(ctx, repository.BookingFilter{UserID: &userID})
}

// ListAll is the admin listing, optionally narrowed to one status.
func (s *Service) ListAll(ctx context.Context, status booking_models.Status) ([]*booking_models.Booking, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown booking status %q", utils.ErrValidation, status)
	}
	return s.store.ListBookings(ctx, repository.BookingFilter{Status: status})
}

// Cancel is the user-facing cancel: own bookings only, pending only.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID, actor utils.Principal) (*booking_models.Booking, error) {
	return s.Transition(ctx, bookingID, booking_models.StatusCancelled, actor)
}

// Transition moves a booking to newStatus on behalf of actor. When the target
// is terminal and a driver is serving the booking, the driver is released in
// the same transaction; if that fails nothing is written.
func (s *Service) Transition(ctx context.Context, bookingID uuid.UUID, newStatus booking_models.Status, actor utils.Principal) (*booking_models.Booking, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown booking status %q", utils.ErrValidation, newStatus)
	}

	// Read once outside the transaction to learn which driver row to lock
	// first; the locked copy is checked against it below.
	before, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(before, actor); err != nil {
		return nil, err
	}

	var (
		booking    *booking_models.Booking
		from       booking_models.Status
		releasedID *uuid.UUID
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		releaseDriver := newStatus.IsTerminal() && before.DriverID != nil
		if releaseDriver {
			if _, err := tx.DriverForUpdate(ctx, *before.DriverID); err != nil {
				return err
			}
		}

		var err error
		booking, err = tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !sameDriver(before.DriverID, booking.DriverID) {
			return fmt.Errorf("booking %s driver changed concurrently, retry: %w", bookingID, utils.ErrInvalidState)
		}

		from = booking.Status
		if from == newStatus && actor.IsAdmin() {
			return nil
		}
		if !booking_models.CanTransition(from, newStatus, actor.Role) {
			return fmt.Errorf("cannot move booking %s from %s to %s as %s: %w", bookingID, from, newStatus, actor.Role, utils.ErrInvalidTransition)
		}

		if releaseDriver {
			driver, err := tx.DriverForUpdate(ctx, *booking.DriverID)
			if err != nil {
				return err
			}
			if driver.CurrentBookingID != nil && *driver.CurrentBookingID == booking.ID {
				if _, err := driver_assignment_service.ReleaseInTx(ctx, tx, driver.ID, s.now()); err != nil {
					return err
				}
				releasedID = &driver.ID
			}
			booking.ReleaseDriver()
		}

		booking.Status = newStatus
		return tx.UpdateBooking(ctx, booking)
	})
	if err != nil {
		logger.WarnLogger.Warnf("Transition of booking %s to %s by %s failed: %v", bookingID, newStatus, actor.Role, err)
		return nil, err
	}

	if releasedID != nil {
		logger.InfoLogger.Infof("Driver %s released by booking %s moving to %s", releasedID, bookingID, newStatus)
	}
	logger.InfoLogger.Infof("Booking %s moved from %s to %s by %s", bookingID, from, newStatus, actor.Role)
	return booking, nil
}

func sameDriver(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SendConfirmation re-sends the confirmation email synchronously so the
// admin sees delivery failures.
func (s *Service) SendConfirmation(ctx context.Context, bookingID uuid.UUID) error {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendBookingConfirmation(ctx, booking); err != nil {
		return fmt.Errorf("failed to send confirmation for booking %s: %w", bookingID, err)
	}
	logger.InfoLogger.Infof("Confirmation email for booking %s sent to %s", bookingID, booking.Email)
	return nil
}
