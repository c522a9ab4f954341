package driver_assignment_service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/models/driver_models"
	"github.com/joy095/carrental/models/incident_models"
	"github.com/joy095/carrental/repository"
	"github.com/joy095/carrental/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	return New(store).WithClock(func() time.Time { return fixedNow }), store
}

func addBooking(t *testing.T, store *repository.MemoryStore, userID uuid.UUID, status booking_models.Status) *booking_models.Booking {
	t.Helper()
	b := &booking_models.Booking{
		ID:            uuid.New(),
		UserID:        userID,
		CarID:         uuid.New(),
		Status:        status,
		PaymentStatus: booking_models.PaymentPending,
		PaymentMethod: booking_models.PaymentMethodCOD,
		TotalAmount:   5000,
		NeedsDriver:   true,
		CreatedAt:     fixedNow,
		UpdatedAt:     fixedNow,
	}
	require.NoError(t, store.CreateBooking(context.Background(), b))
	return b
}

func addDriver(t *testing.T, svc *Service, license string) *driver_models.Driver {
	t.Helper()
	d, err := svc.CreateDriver(context.Background(), driver_models.CreateDriverInput{
		Name:          "Driver " + license,
		LicenseNumber: license,
		Phone:         "9800000000",
		Email:         "driver@example.com",
		Experience:    3,
	})
	require.NoError(t, err)
	return d
}

func TestAssign(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	driver := addDriver(t, svc, "L-1")
	booking := addBooking(t, store, uuid.New(), booking_models.StatusConfirmed)

	gotBooking, gotDriver, err := svc.Assign(ctx, driver.ID, booking.ID)
	require.NoError(t, err)

	assert.Equal(t, driver_models.StatusAssigned, gotDriver.Status)
	require.NotNil(t, gotDriver.CurrentBookingID)
	assert.Equal(t, booking.ID, *gotDriver.CurrentBookingID)
	require.NotNil(t, gotBooking.DriverID)
	assert.Equal(t, driver.ID, *gotBooking.DriverID)
	assert.True(t, gotBooking.DriverAssigned)

	stored, err := store.GetDriver(ctx, driver.ID)
	require.NoError(t, err)
	require.Len(t, stored.BookingHistory, 1)
	assert.Equal(t, booking.ID, stored.BookingHistory[0].BookingID)
	assert.True(t, stored.BookingHistory[0].AssignedAt.Equal(fixedNow))
	assert.Nil(t, stored.BookingHistory[0].CompletedAt)
}

func TestAssignErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingDriver", func(t *testing.T) {
		svc, store := newService(t)
		booking := addBooking(t, store, uuid.New(), booking_models.StatusPending)
		_, _, err := svc.Assign(ctx, uuid.New(), booking.ID)
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("MissingBooking", func(t *testing.T) {
		svc, _ := newService(t)
		driver := addDriver(t, svc, "L-1")
		_, _, err := svc.Assign(ctx, driver.ID, uuid.New())
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("DriverOnLeave", func(t *testing.T) {
		svc, store := newService(t)
		driver := addDriver(t, svc, "L-1")
		_, err := svc.SetStatus(ctx, driver.ID, driver_models.StatusOnLeave)
		require.NoError(t, err)
		booking := addBooking(t, store, uuid.New(), booking_models.StatusPending)

		_, _, err = svc.Assign(ctx, driver.ID, booking.ID)
		assert.ErrorIs(t, err, utils.ErrDriverUnavailable)
	})

	t.Run("DriverAlreadyAssigned", func(t *testing.T) {
		svc, store := newService(t)
		driver := addDriver(t, svc, "L-1")
		first := addBooking(t, store, uuid.New(), booking_models.StatusPending)
		second := addBooking(t, store, uuid.New(), booking_models.StatusPending)
		_, _, err := svc.Assign(ctx, driver.ID, first.ID)
		require.NoError(t, err)

		_, _, err = svc.Assign(ctx, driver.ID, second.ID)
		assert.ErrorIs(t, err, utils.ErrDriverUnavailable)
	})

	t.Run("CancelledBooking", func(t *testing.T) {
		svc, store := newService(t)
		driver := addDriver(t, svc, "L-1")
		booking := addBooking(t, store, uuid.New(), booking_models.StatusCancelled)

		_, _, err := svc.Assign(ctx, driver.ID, booking.ID)
		assert.ErrorIs(t, err, utils.ErrInvalidTransition)

		stored, err := store.GetDriver(ctx, driver.ID)
		require.NoError(t, err)
		assert.Equal(t, driver_models.StatusAvailable, stored.Status, "nothing written on failure")
		assert.Empty(t, stored.BookingHistory)
	})

	t.Run("BookingAlreadyHasDriver", func(t *testing.T) {
		svc, store := newService(t)
		first := addDriver(t, svc, "L-1")
		second := addDriver(t, svc, "L-2")
		booking := addBooking(t, store, uuid.New(), booking_models.StatusPending)
		_, _, err := svc.Assign(ctx, first.ID, booking.ID)
		require.NoError(t, err)

		_, _, err = svc.Assign(ctx, second.ID, booking.ID)
		assert.ErrorIs(t, err, utils.ErrInvalidState)
	})
}

func TestConcurrentAssignOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	driver := addDriver(t, svc, "L-1")

	const n = 8
	bookings := make([]*booking_models.Booking, n)
	for i := range bookings {
		bookings[i] = addBooking(t, store, uuid.New(), booking_models.StatusPending)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Assign(ctx, driver.ID, bookings[i].ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, utils.ErrDriverUnavailable)
	}
	assert.Equal(t, 1, wins)

	stored, err := store.GetDriver(ctx, driver.ID)
	require.NoError(t, err)
	assert.Len(t, stored.BookingHistory, 1)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	driver := addDriver(t, svc, "L-1")
	booking := addBooking(t, store, uuid.New(), booking_models.StatusConfirmed)
	_, _, err := svc.Assign(ctx, driver.ID, booking.ID)
	require.NoError(t, err)

	later := fixedNow.Add(3 * time.Hour)
	svc.WithClock(func() time.Time { return later })

	got, err := svc.Complete(ctx, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, driver_models.StatusAvailable, got.Status)
	assert.Nil(t, got.CurrentBookingID)
	require.Len(t, got.BookingHistory, 1)
	require.NotNil(t, got.BookingHistory[0].CompletedAt)
	assert.True(t, got.BookingHistory[0].CompletedAt.Equal(later))

	released, err := store.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Nil(t, released.DriverID)
	assert.False(t, released.DriverAssigned)

	_, err = svc.Complete(ctx, driver.ID)
	assert.ErrorIs(t, err, utils.ErrInvalidState, "nothing left to complete")

	_, err = svc.Complete(ctx, uuid.New())
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestCompleteThenAssignReplacement(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	first := addDriver(t, svc, "L-1")
	second := addDriver(t, svc, "L-2")
	booking := addBooking(t, store, uuid.New(), booking_models.StatusActive)

	_, _, err := svc.Assign(ctx, first.ID, booking.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, first.ID)
	require.NoError(t, err)

	gotBooking, gotDriver, err := svc.Assign(ctx, second.ID, booking.ID)
	require.NoError(t, err)
	require.NotNil(t, gotBooking.DriverID)
	assert.Equal(t, second.ID, *gotBooking.DriverID)
	assert.Equal(t, driver_models.StatusAssigned, gotDriver.Status)

	stored, err := store.GetDriver(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, driver_models.StatusAvailable, stored.Status)
	assert.True(t, stored.HasServed(booking.ID))
}

func TestCompleteThenReassignElsewhere(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	driver := addDriver(t, svc, "L-1")
	firstBooking := addBooking(t, store, uuid.New(), booking_models.StatusConfirmed)
	secondBooking := addBooking(t, store, uuid.New(), booking_models.StatusConfirmed)

	_, _, err := svc.Assign(ctx, driver.ID, firstBooking.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, driver.ID)
	require.NoError(t, err)
	_, _, err = svc.Assign(ctx, driver.ID, secondBooking.ID)
	require.NoError(t, err)

	linked, err := store.ListBookings(ctx, repository.BookingFilter{})
	require.NoError(t, err)
	var holders []uuid.UUID
	for _, b := range linked {
		if b.DriverID != nil && *b.DriverID == driver.ID {
			holders = append(holders, b.ID)
		}
		assert.Equal(t, b.DriverID != nil, b.DriverAssigned, "booking %s", b.ID)
	}
	assert.Equal(t, []uuid.UUID{secondBooking.ID}, holders)

	old, err := store.GetBooking(ctx, firstBooking.ID)
	require.NoError(t, err)
	assert.Nil(t, old.DriverID)
	assert.False(t, old.DriverAssigned)
}

func TestCompleteWithoutOpenEntryRecordsIncident(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	bookingID := uuid.New()

	// Assigned driver whose history lost the open entry.
	broken := &driver_models.Driver{
		ID:               uuid.New(),
		Name:             "Broken",
		LicenseNumber:    "L-X",
		Status:           driver_models.StatusAssigned,
		CurrentBookingID: &bookingID,
		IsActive:         true,
		CreatedAt:        fixedNow,
	}
	require.NoError(t, store.CreateDriver(ctx, broken))

	got, err := svc.Complete(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, driver_models.StatusAvailable, got.Status)
	assert.Nil(t, got.CurrentBookingID)

	incidents, err := store.ListIncidents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, incident_models.KindInconsistentHistory, incidents[0].Kind)
	require.NotNil(t, incidents[0].BookingID)
	assert.Equal(t, bookingID, *incidents[0].BookingID)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	driver := addDriver(t, svc, "L-1")

	got, err := svc.SetStatus(ctx, driver.ID, driver_models.StatusInactive)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = svc.SetStatus(ctx, driver.ID, driver_models.StatusAvailable)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = svc.SetStatus(ctx, driver.ID, driver_models.StatusAssigned)
	assert.ErrorIs(t, err, utils.ErrInvalidState)

	_, err = svc.SetStatus(ctx, driver.ID, "sleeping")
	assert.ErrorIs(t, err, utils.ErrValidation)

	booking := addBooking(t, store, uuid.New(), booking_models.StatusPending)
	_, _, err = svc.Assign(ctx, driver.ID, booking.ID)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, driver.ID, driver_models.StatusOnLeave)
	assert.ErrorIs(t, err, utils.ErrInvalidState)
}

func TestAddReview(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	driver := addDriver(t, svc, "L-1")
	userID := uuid.New()
	booking := addBooking(t, store, userID, booking_models.StatusConfirmed)

	_, _, err := svc.Assign(ctx, driver.ID, booking.ID)
	require.NoError(t, err)

	_, err = svc.AddReview(ctx, driver.ID, userID, 5, "great")
	assert.ErrorIs(t, err, utils.ErrForbidden, "booking not completed yet")

	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.BookingForUpdate(ctx, booking.ID)
		if err != nil {
			return err
		}
		b.Status = booking_models.StatusCompleted
		return tx.UpdateBooking(ctx, b)
	}))

	_, err = svc.AddReview(ctx, driver.ID, userID, 6, "")
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = svc.AddReview(ctx, driver.ID, uuid.New(), 4, "never rode")
	assert.ErrorIs(t, err, utils.ErrForbidden)

	got, err := svc.AddReview(ctx, driver.ID, userID, 5, "  great  ")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, got.Rating, 1e-9)
	assert.Equal(t, "great", got.Reviews[0].Comment)

	got, err = svc.AddReview(ctx, driver.ID, userID, 3, "changed my mind")
	require.NoError(t, err)
	assert.Len(t, got.Reviews, 1)
	assert.InDelta(t, 3.0, got.Rating, 1e-9)
}

func TestListDrivers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	addDriver(t, svc, "L-1")
	off := addDriver(t, svc, "L-2")
	_, err := svc.SetStatus(ctx, off.ID, driver_models.StatusOnLeave)
	require.NoError(t, err)

	available, err := svc.ListDrivers(ctx, driver_models.StatusAvailable)
	require.NoError(t, err)
	assert.Len(t, available, 1)

	_, err = svc.ListDrivers(ctx, "unknown")
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = svc.CreateDriver(ctx, driver_models.CreateDriverInput{
		Name: "Dup", LicenseNumber: "L-1", Phone: "1", Email: "d@example.com",
	})
	assert.ErrorIs(t, err, utils.ErrValidation)
}
