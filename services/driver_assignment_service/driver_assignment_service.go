package driver_assignment_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/metrics"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/models/driver_models"
	"github.com/joy095/carrental/models/incident_models"
	"github.com/joy095/carrental/repository"
	"github.com/joy095/carrental/utils"
)

// Service owns driver availability. Driver status and current booking are
// only ever changed here.
type Service struct {
	store repository.Store
	now   func() time.Time
}

func New(store repository.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Assign links an available driver to a booking. The driver row is locked
// before the booking row, and both writes commit together.
func (s *Service) Assign(ctx context.Context, driverID, bookingID uuid.UUID) (*booking_models.Booking, *driver_models.Driver, error) {
	var (
		booking *booking_models.Booking
		driver  *driver_models.Driver
	)

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		driver, err = tx.DriverForUpdate(ctx, driverID)
		if err != nil {
			return err
		}
		booking, err = tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}

		if !driver.CanTakeBooking() {
			return fmt.Errorf("driver %s is %s: %w", driverID, driver.Status, utils.ErrDriverUnavailable)
		}
		if booking.Status.IsTerminal() {
			return fmt.Errorf("booking %s is %s: %w", bookingID, booking.Status, utils.ErrInvalidTransition)
		}
		if booking.DriverAssigned {
			return fmt.Errorf("booking %s already has driver %s: %w", bookingID, booking.DriverID, utils.ErrInvalidState)
		}

		now := s.now()
		driver.Status = driver_models.StatusAssigned
		driver.CurrentBookingID = &booking.ID
		driver.BookingHistory = append(driver.BookingHistory, driver_models.HistoryEntry{
			BookingID:  booking.ID,
			AssignedAt: now,
		})
		booking.AssignDriver(driver.ID)

		if err := tx.UpdateDriver(ctx, driver); err != nil {
			return err
		}
		return tx.UpdateBooking(ctx, booking)
	})
	if err != nil {
		logger.WarnLogger.Warnf("Assign driver %s to booking %s failed: %v", driverID, bookingID, err)
		return nil, nil, err
	}

	logger.InfoLogger.Infof("Driver %s assigned to booking %s", driverID, bookingID)
	return booking, driver, nil
}

// Complete ends the driver's current assignment and makes them available.
func (s *Service) Complete(ctx context.Context, driverID uuid.UUID) (*driver_models.Driver, error) {
	var driver *driver_models.Driver
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		driver, err = ReleaseInTx(ctx, tx, driverID, s.now())
		return err
	})
	if err != nil {
		logger.WarnLogger.Warnf("Complete assignment for driver %s failed: %v", driverID, err)
		return nil, err
	}

	logger.InfoLogger.Infof("Driver %s completed assignment and is available", driverID)
	return driver, nil
}

// ReleaseInTx closes the driver's open history entry, resets them to
// available and clears the current booking's driver link, inside an
// existing transaction. The driver row is locked before the booking row. A
// missing open entry is recorded as an InconsistentHistory incident and does
// not fail the release.
func ReleaseInTx(ctx context.Context, tx repository.Tx, driverID uuid.UUID, now time.Time) (*driver_models.Driver, error) {
	driver, err := tx.DriverForUpdate(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if driver.Status != driver_models.StatusAssigned || driver.CurrentBookingID == nil {
		return nil, fmt.Errorf("driver %s is %s with no current booking: %w", driverID, driver.Status, utils.ErrInvalidState)
	}

	bookingID := *driver.CurrentBookingID
	if entry := driver.OpenEntryFor(bookingID); entry != nil {
		completedAt := now
		entry.CompletedAt = &completedAt
	} else {
		detail := fmt.Sprintf("driver %s had no open history entry for current booking %s", driverID, bookingID)
		logger.ErrorLogger.Errorf("[%s] %s: %s", utils.KindInconsistentHistory, utils.ErrInconsistentHistory, detail)

		inc := incident_models.New(incident_models.KindInconsistentHistory, &bookingID, &driver.ID, detail)
		if err := tx.RecordIncident(ctx, inc); err != nil {
			return nil, err
		}
		metrics.TrackIncident(string(incident_models.KindInconsistentHistory))
	}

	driver.Status = driver_models.StatusAvailable
	driver.CurrentBookingID = nil
	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return nil, err
	}

	booking, err := tx.BookingForUpdate(ctx, bookingID)
	if errors.Is(err, utils.ErrNotFound) {
		logger.WarnLogger.Warnf("Driver %s released from missing booking %s", driverID, bookingID)
		return driver, nil
	}
	if err != nil {
		return nil, err
	}
	if booking.DriverID != nil && *booking.DriverID == driverID {
		booking.ReleaseDriver()
		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return nil, err
		}
	}
	return driver, nil
}

// SetStatus lets an admin move a driver between available, on-leave and
// inactive. Assignment state is never set or cleared here.
func (s *Service) SetStatus(ctx context.Context, driverID uuid.UUID, status driver_models.Status) (*driver_models.Driver, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown driver status %q", utils.ErrValidation, status)
	}
	if status == driver_models.StatusAssigned {
		return nil, fmt.Errorf("%w: drivers become assigned only through assignment", utils.ErrInvalidState)
	}

	var driver *driver_models.Driver
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		driver, err = tx.DriverForUpdate(ctx, driverID)
		if err != nil {
			return err
		}
		if driver.Status == driver_models.StatusAssigned {
			return fmt.Errorf("driver %s is on booking %s: %w", driverID, driver.CurrentBookingID, utils.ErrInvalidState)
		}

		driver.Status = status
		driver.IsActive = status != driver_models.StatusInactive
		return tx.UpdateDriver(ctx, driver)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoLogger.Infof("Driver %s status set to %s", driverID, status)
	return driver, nil
}

// AddReview stores userID's review of the driver, replacing any earlier one.
// Only users whose completed booking the driver served may review.
func (s *Service) AddReview(ctx context.Context, driverID, userID uuid.UUID, rating int, comment string) (*driver_models.Driver, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", utils.ErrValidation)
	}

	completed, err := s.store.ListBookings(ctx, repository.BookingFilter{
		UserID: &userID,
		Status: booking_models.StatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	var driver *driver_models.Driver
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		driver, err = tx.DriverForUpdate(ctx, driverID)
		if err != nil {
			return err
		}

		eligible := false
		for _, b := range completed {
			if driver.HasServed(b.ID) {
				eligible = true
				break
			}
		}
		if !eligible {
			return fmt.Errorf("%w: you can only review drivers from your completed bookings", utils.ErrForbidden)
		}

		driver.UpsertReview(driver_models.Review{
			UserID:  userID,
			Rating:  rating,
			Comment: strings.TrimSpace(comment),
			Date:    s.now(),
		})
		return tx.UpdateDriver(ctx, driver)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoLogger.Infof("User %s reviewed driver %s (%d stars, new rating %.2f)", userID, driverID, rating, driver.Rating)
	return driver, nil
}

func (s *Service) CreateDriver(ctx context.Context, in driver_models.CreateDriverInput) (*driver_models.Driver, error) {
	driver, err := driver_models.NewDriver(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateDriver(ctx, driver); err != nil {
		return nil, err
	}
	logger.InfoLogger.Infof("Driver %s created", driver.ID)
	return driver, nil
}

func (s *Service) GetDriver(ctx context.Context, driverID uuid.UUID) (*driver_models.Driver, error) {
	return s.store.GetDriver(ctx, driverID)
}

// ListDrivers returns all drivers, or only active drivers in status.
func (s *Service) ListDrivers(ctx context.Context, status driver_models.Status) ([]*driver_models.Driver, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown driver status %q", utils.ErrValidation, status)
	}
	return s.store.ListDrivers(ctx, status)
}
