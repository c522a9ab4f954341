package booking_models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() CreateBookingInput {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return CreateBookingInput{
		CarID:       uuid.New(),
		StartDate:   start,
		EndDate:     start.Add(48 * time.Hour),
		Address:     "Lakeside, Pokhara",
		Email:       "rider@example.com",
		Contact:     "9800000000",
		Location:    &Coordinates{Lat: 28.2096, Lng: 83.9856},
		TotalAmount: 12500,
	}
}

func TestCreateBookingInputValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		in := validInput()
		assert.NoError(t, in.Validate())
	})

	t.Run("EndBeforeStart", func(t *testing.T) {
		in := validInput()
		in.EndDate = in.StartDate.Add(-time.Hour)
		assert.True(t, errors.Is(in.Validate(), utils.ErrValidation))
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		in := validInput()
		in.TotalAmount = 0
		assert.True(t, errors.Is(in.Validate(), utils.ErrValidation))
	})

	t.Run("BothLocationSchemes", func(t *testing.T) {
		in := validInput()
		in.PickupCoords = &Coordinates{Lat: 27.7, Lng: 85.3}
		in.DropoffCoords = &Coordinates{Lat: 27.6, Lng: 85.4}
		assert.True(t, errors.Is(in.Validate(), utils.ErrValidation))
	})

	t.Run("NoLocation", func(t *testing.T) {
		in := validInput()
		in.Location = nil
		assert.True(t, errors.Is(in.Validate(), utils.ErrValidation))
	})

	t.Run("PickupWithoutDropoff", func(t *testing.T) {
		in := validInput()
		in.Location = nil
		in.PickupCoords = &Coordinates{Lat: 27.7, Lng: 85.3}
		assert.True(t, errors.Is(in.Validate(), utils.ErrValidation))
	})

	t.Run("UnknownPaymentMethod", func(t *testing.T) {
		in := validInput()
		in.PaymentMethod = "cheque"
		assert.True(t, errors.Is(in.Validate(), utils.ErrValidation))
	})
}

func TestNewBooking(t *testing.T) {
	userID := uuid.New()

	t.Run("SingleLocation", func(t *testing.T) {
		b, err := NewBooking(userID, validInput())
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, b.ID)
		assert.Equal(t, userID, b.UserID)
		assert.Equal(t, StatusPending, b.Status)
		assert.Equal(t, PaymentPending, b.PaymentStatus)
		assert.Equal(t, PaymentMethodCOD, b.PaymentMethod)
		assert.False(t, b.HasSeparateLocations)
		assert.NotNil(t, b.Location)
		assert.False(t, b.DriverAssigned)
		assert.Nil(t, b.DriverID)
	})

	t.Run("SeparateLocationsGetDefaultAddresses", func(t *testing.T) {
		in := validInput()
		in.Location = nil
		in.PickupCoords = &Coordinates{Lat: 27.7, Lng: 85.3}
		in.DropoffCoords = &Coordinates{Lat: 27.6, Lng: 85.4}
		in.PaymentMethod = PaymentMethodGateway

		b, err := NewBooking(userID, in)
		require.NoError(t, err)

		assert.True(t, b.HasSeparateLocations)
		assert.Nil(t, b.Location)
		assert.Equal(t, "Pickup location", b.PickupAddress)
		assert.Equal(t, "Dropoff location", b.DropoffAddress)
		assert.Equal(t, PaymentMethodGateway, b.PaymentMethod)
	})
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		role utils.Role
		want bool
	}{
		{"SystemConfirmsPending", StatusPending, StatusConfirmed, utils.RoleSystem, true},
		{"SystemCannotConfirmCancelled", StatusCancelled, StatusConfirmed, utils.RoleSystem, false},
		{"SystemCannotCancel", StatusPending, StatusCancelled, utils.RoleSystem, false},
		{"UserCancelsPending", StatusPending, StatusCancelled, utils.RoleUser, true},
		{"UserCannotCancelConfirmed", StatusConfirmed, StatusCancelled, utils.RoleUser, false},
		{"UserCannotConfirm", StatusPending, StatusConfirmed, utils.RoleUser, false},
		{"AdminOverride", StatusCompleted, StatusActive, utils.RoleAdmin, true},
		{"AdminUnknownTarget", StatusPending, Status("archived"), utils.RoleAdmin, false},
		{"UnknownRole", StatusPending, StatusCancelled, utils.Role("guest"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to, tc.role))
		})
	}
}

func TestAssignDriverKeepsFlagInStep(t *testing.T) {
	b, err := NewBooking(uuid.New(), validInput())
	require.NoError(t, err)

	driverID := uuid.New()
	b.AssignDriver(driverID)

	require.NotNil(t, b.DriverID)
	assert.Equal(t, driverID, *b.DriverID)
	assert.True(t, b.DriverAssigned)

	b.ReleaseDriver()
	assert.Nil(t, b.DriverID)
	assert.False(t, b.DriverAssigned)
}

func TestCloneIsDeep(t *testing.T) {
	b, err := NewBooking(uuid.New(), validInput())
	require.NoError(t, err)
	pidx := "pidx-1"
	b.GatewayPidx = &pidx
	b.PaymentDetails = []byte(`{"a":1}`)

	c := b.Clone()
	c.Location.Lat = 0
	*c.GatewayPidx = "other"
	c.PaymentDetails[0] = '['

	assert.Equal(t, 28.2096, b.Location.Lat)
	assert.Equal(t, "pidx-1", *b.GatewayPidx)
	assert.Equal(t, `{"a":1}`, string(b.PaymentDetails))
}

func TestAmountInPaisa(t *testing.T) {
	b := &Booking{TotalAmount: 1234.56}
	assert.Equal(t, int64(123456), b.AmountInPaisa())

	b.TotalAmount = 0.29
	assert.Equal(t, int64(29), b.AmountInPaisa())
}
