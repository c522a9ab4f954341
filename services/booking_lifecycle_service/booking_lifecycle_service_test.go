package booking_lifecycle_service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/models/driver_models"
	"github.com/joy095/carrental/models/incident_models"
	"github.com/joy095/carrental/repository"
	"github.com/joy095/carrental/services/driver_assignment_service"
	"github.com/joy095/carrental/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMailer struct {
	mu   sync.Mutex
	sent int
	err  error
}

func (m *stubMailer) SendBookingConfirmation(_ context.Context, _ *booking_models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent++
	return nil
}

var admin = utils.Principal{ID: uuid.New(), Role: utils.RoleAdmin}

func setup(t *testing.T) (*Service, *driver_assignment_service.Service, *repository.MemoryStore, *stubMailer) {
	t.Helper()
	store := repository.NewMemoryStore()
	mailer := &stubMailer{}
	return New(store, mailer), driver_assignment_service.New(store), store, mailer
}

func bookingInput() booking_models.CreateBookingInput {
	start := time.Now().Add(24 * time.Hour).UTC()
	return booking_models.CreateBookingInput{
		CarID:         uuid.New(),
		StartDate:     start,
		EndDate:       start.Add(72 * time.Hour),
		Address:       "Thamel, Kathmandu",
		Email:         "rider@example.com",
		Contact:       "9800000000",
		PickupCoords:  &booking_models.Coordinates{Lat: 27.71, Lng: 85.31},
		DropoffCoords: &booking_models.Coordinates{Lat: 27.67, Lng: 85.43},
		TotalAmount:   18000,
		NeedsDriver:   true,
		DriverPrice:   3000,
	}
}

func newUser() utils.Principal {
	return utils.Principal{ID: uuid.New(), Role: utils.RoleUser}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, _, store, _ := setup(t)
	user := newUser()

	b, err := svc.Create(ctx, user, bookingInput())
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusPending, b.Status)
	assert.Equal(t, user.ID, b.UserID)

	stored, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasSeparateLocations)

	in := bookingInput()
	in.TotalAmount = -1
	_, err = svc.Create(ctx, user, in)
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnerCancelsPending", func(t *testing.T) {
		svc, _, _, _ := setup(t)
		user := newUser()
		b, err := svc.Create(ctx, user, bookingInput())
		require.NoError(t, err)

		got, err := svc.Cancel(ctx, b.ID, user)
		require.NoError(t, err)
		assert.Equal(t, booking_models.StatusCancelled, got.Status)

		_, err = svc.Cancel(ctx, b.ID, user)
		assert.ErrorIs(t, err, utils.ErrInvalidTransition, "already cancelled")
	})

	t.Run("OtherUserSeesNotFound", func(t *testing.T) {
		svc, _, _, _ := setup(t)
		b, err := svc.Create(ctx, newUser(), bookingInput())
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, b.ID, newUser())
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("ConfirmedCannotBeCancelledByUser", func(t *testing.T) {
		svc, _, _, _ := setup(t)
		user := newUser()
		b, err := svc.Create(ctx, user, bookingInput())
		require.NoError(t, err)
		_, err = svc.Transition(ctx, b.ID, booking_models.StatusConfirmed, utils.SystemPrincipal)
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, b.ID, user)
		assert.ErrorIs(t, err, utils.ErrInvalidTransition)
	})
}

func TestTransitionRoles(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setup(t)
	user := newUser()
	b, err := svc.Create(ctx, user, bookingInput())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, b.ID, booking_models.StatusConfirmed, user)
	assert.ErrorIs(t, err, utils.ErrInvalidTransition, "users cannot confirm")

	_, err = svc.Transition(ctx, b.ID, booking_models.StatusCancelled, utils.SystemPrincipal)
	assert.ErrorIs(t, err, utils.ErrInvalidTransition, "payment only confirms")

	got, err := svc.Transition(ctx, b.ID, booking_models.StatusConfirmed, utils.SystemPrincipal)
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusConfirmed, got.Status)

	got, err = svc.Transition(ctx, b.ID, booking_models.StatusActive, admin)
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusActive, got.Status)

	got, err = svc.Transition(ctx, b.ID, booking_models.StatusActive, admin)
	require.NoError(t, err, "same status is a no-op for admins")
	assert.Equal(t, booking_models.StatusActive, got.Status)

	_, err = svc.Transition(ctx, b.ID, "archived", admin)
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = svc.Transition(ctx, uuid.New(), booking_models.StatusActive, admin)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestTerminalTransitionReleasesDriver(t *testing.T) {
	ctx := context.Background()

	for _, target := range []booking_models.Status{booking_models.StatusCompleted, booking_models.StatusCancelled} {
		t.Run(string(target), func(t *testing.T) {
			svc, drivers, store, _ := setup(t)
			b, err := svc.Create(ctx, newUser(), bookingInput())
			require.NoError(t, err)
			d, err := drivers.CreateDriver(ctx, driver_models.CreateDriverInput{
				Name: "Hari", LicenseNumber: "L-1", Phone: "1", Email: "hari@example.com",
			})
			require.NoError(t, err)
			_, _, err = drivers.Assign(ctx, d.ID, b.ID)
			require.NoError(t, err)

			got, err := svc.Transition(ctx, b.ID, target, admin)
			require.NoError(t, err)
			assert.Equal(t, target, got.Status)
			assert.Nil(t, got.DriverID)
			assert.False(t, got.DriverAssigned)

			stored, err := store.GetBooking(ctx, b.ID)
			require.NoError(t, err)
			assert.Nil(t, stored.DriverID)
			assert.False(t, stored.DriverAssigned)

			driver, err := store.GetDriver(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, driver_models.StatusAvailable, driver.Status)
			assert.Nil(t, driver.CurrentBookingID)
			require.Len(t, driver.BookingHistory, 1)
			assert.NotNil(t, driver.BookingHistory[0].CompletedAt)
		})
	}
}

func TestTerminalTransitionAbortsWhenReleaseFails(t *testing.T) {
	ctx := context.Background()
	svc, _, store, _ := setup(t)
	b, err := svc.Create(ctx, newUser(), bookingInput())
	require.NoError(t, err)

	// The booking points at a driver record that no longer exists.
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.BookingForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		booking.AssignDriver(uuid.New())
		return tx.UpdateBooking(ctx, booking)
	}))

	_, err = svc.Transition(ctx, b.ID, booking_models.StatusCompleted, admin)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	got, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusPending, got.Status, "nothing persisted")
}

func TestTerminalTransitionHealsMissingHistory(t *testing.T) {
	ctx := context.Background()
	svc, _, store, _ := setup(t)
	b, err := svc.Create(ctx, newUser(), bookingInput())
	require.NoError(t, err)

	driver := &driver_models.Driver{
		ID:               uuid.New(),
		Name:             "Sita",
		LicenseNumber:    "L-2",
		Status:           driver_models.StatusAssigned,
		CurrentBookingID: &b.ID,
		IsActive:         true,
	}
	require.NoError(t, store.CreateDriver(ctx, driver))
	require.NoError(t, store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.BookingForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		booking.AssignDriver(driver.ID)
		return tx.UpdateBooking(ctx, booking)
	}))

	_, err = svc.Transition(ctx, b.ID, booking_models.StatusCompleted, admin)
	require.NoError(t, err)

	incidents, err := store.ListIncidents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, incident_models.KindInconsistentHistory, incidents[0].Kind)

	got, err := store.GetDriver(ctx, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, driver_models.StatusAvailable, got.Status)
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setup(t)
	alice, bob := newUser(), newUser()
	a, err := svc.Create(ctx, alice, bookingInput())
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, bookingInput())
	require.NoError(t, err)

	_, err = svc.Get(ctx, a.ID, alice)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, a.ID, bob)
	assert.ErrorIs(t, err, utils.ErrNotFound)
	_, err = svc.Get(ctx, a.ID, admin)
	assert.NoError(t, err)

	mine, err := svc.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := svc.ListAll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Cancel(ctx, a.ID, alice)
	require.NoError(t, err)
	cancelled, err := svc.ListAll(ctx, booking_models.StatusCancelled)
	require.NoError(t, err)
	assert.Len(t, cancelled, 1)

	_, err = svc.ListAll(ctx, "bogus")
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestSendConfirmation(t *testing.T) {
	ctx := context.Background()
	svc, _, _, mailer := setup(t)
	b, err := svc.Create(ctx, newUser(), bookingInput())
	require.NoError(t, err)

	require.NoError(t, svc.SendConfirmation(ctx, b.ID))
	assert.Equal(t, 1, mailer.sent)

	mailer.err = errors.New("smtp down")
	assert.Error(t, svc.SendConfirmation(ctx, b.ID))

	assert.ErrorIs(t, svc.SendConfirmation(ctx, uuid.New()), utils.ErrNotFound)
}
