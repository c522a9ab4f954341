package booking_models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joy095/carrental/utils"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "cod"
	PaymentMethodGateway PaymentMethod = "gateway"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentInitiated PaymentStatus = "initiated"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Coordinates is a lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Booking is a reservation of a car, optionally with a driver, for a date range.
type Booking struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	CarID  uuid.UUID `json:"car_id"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	Address string `json:"address"`
	Email   string `json:"email"`
	Contact string `json:"contact"`

	// Exactly one of Location or the Pickup/Dropoff pair is set, chosen by
	// HasSeparateLocations.
	Location             *Coordinates `json:"location,omitempty"`
	HasSeparateLocations bool         `json:"has_separate_locations"`
	PickupCoords         *Coordinates `json:"pickup_coords,omitempty"`
	DropoffCoords        *Coordinates `json:"dropoff_coords,omitempty"`
	PickupAddress        string       `json:"pickup_address,omitempty"`
	DropoffAddress       string       `json:"dropoff_address,omitempty"`

	TotalAmount float64 `json:"total_amount"`
	Status      Status  `json:"status"`

	NeedsDriver    bool       `json:"needs_driver"`
	DriverPrice    float64    `json:"driver_price"`
	DriverID       *uuid.UUID `json:"driver_id,omitempty"`
	DriverAssigned bool       `json:"driver_assigned"`

	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	TransactionID  *string         `json:"transaction_id,omitempty"`
	GatewayPidx    *string         `json:"gateway_pidx,omitempty"`
	PaymentDetails json.RawMessage `json:"payment_details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateBookingInput is the checkout request after binding.
type CreateBookingInput struct {
	CarID     uuid.UUID `json:"car_id" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`

	Address string `json:"address" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Contact string `json:"contact" validate:"required"`

	Location       *Coordinates `json:"location" validate:"omitempty"`
	PickupCoords   *Coordinates `json:"pickup_coords" validate:"omitempty"`
	DropoffCoords  *Coordinates `json:"dropoff_coords" validate:"omitempty"`
	PickupAddress  string       `json:"pickup_address"`
	DropoffAddress string       `json:"dropoff_address"`

	TotalAmount   float64       `json:"total_amount" validate:"gt=0"`
	NeedsDriver   bool          `json:"needs_driver"`
	DriverPrice   float64       `json:"driver_price" validate:"gte=0"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"omitempty,oneof=cod gateway"`
}

var validate = validator.New()

// Validate checks the tagged rules plus the location exclusivity rule.
func (in *CreateBookingInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}

	single := in.Location != nil
	separate := in.PickupCoords != nil || in.DropoffCoords != nil
	switch {
	case single && separate:
		return fmt.Errorf("%w: location and pickup/dropoff are mutually exclusive", utils.ErrValidation)
	case !single && (in.PickupCoords == nil || in.DropoffCoords == nil):
		return fmt.Errorf("%w: missing location information", utils.ErrValidation)
	}
	return nil
}

// NewBooking builds a pending booking for userID from a validated input.
func NewBooking(userID uuid.UUID, in CreateBookingInput) (*Booking, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for booking: %w", err)
	}

	method := in.PaymentMethod
	if method == "" {
		method = PaymentMethodCOD
	}

	now := time.Now().UTC()
	b := &Booking{
		ID:            id,
		UserID:        userID,
		CarID:         in.CarID,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Address:       in.Address,
		Email:         in.Email,
		Contact:       in.Contact,
		TotalAmount:   in.TotalAmount,
		Status:        StatusPending,
		NeedsDriver:   in.NeedsDriver,
		DriverPrice:   in.DriverPrice,
		PaymentMethod: method,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if in.Location != nil {
		loc := *in.Location
		b.Location = &loc
	} else {
		pickup, dropoff := *in.PickupCoords, *in.DropoffCoords
		b.HasSeparateLocations = true
		b.PickupCoords = &pickup
		b.DropoffCoords = &dropoff
		b.PickupAddress = in.PickupAddress
		b.DropoffAddress = in.DropoffAddress
		if b.PickupAddress == "" {
			b.PickupAddress = "Pickup location"
		}
		if b.DropoffAddress == "" {
			b.DropoffAddress = "Dropoff location"
		}
	}
	return b, nil
}

// IsTerminal reports whether the status ends the normal flow.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether role may move a booking from one status to
// another. Admins may override anything; the system (payment) only confirms
// pending bookings; users only cancel pending ones.
func CanTransition(from, to Status, role utils.Role) bool {
	if !to.Valid() {
		return false
	}
	switch role {
	case utils.RoleAdmin:
		return true
	case utils.RoleSystem:
		return from == StatusPending && to == StatusConfirmed
	case utils.RoleUser:
		return from == StatusPending && to == StatusCancelled
	}
	return false
}

// AssignDriver links driverID, keeping DriverAssigned in step with DriverID.
func (b *Booking) AssignDriver(driverID uuid.UUID) {
	id := driverID
	b.DriverID = &id
	b.DriverAssigned = true
}

// ReleaseDriver drops the driver link. The driver's booking history keeps
// the record of who served the booking.
func (b *Booking) ReleaseDriver() {
	b.DriverID = nil
	b.DriverAssigned = false
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.Location != nil {
		v := *b.Location
		c.Location = &v
	}
	if b.PickupCoords != nil {
		v := *b.PickupCoords
		c.PickupCoords = &v
	}
	if b.DropoffCoords != nil {
		v := *b.DropoffCoords
		c.DropoffCoords = &v
	}
	if b.DriverID != nil {
		v := *b.DriverID
		c.DriverID = &v
	}
	if b.TransactionID != nil {
		v := *b.TransactionID
		c.TransactionID = &v
	}
	if b.GatewayPidx != nil {
		v := *b.GatewayPidx
		c.GatewayPidx = &v
	}
	if b.PaymentDetails != nil {
		c.PaymentDetails = append(json.RawMessage(nil), b.PaymentDetails...)
	}
	return &c
}

// AmountInPaisa converts the rupee total into the gateway's minor unit.
func (b *Booking) AmountInPaisa() int64 {
	return int64(b.TotalAmount*100 + 0.5)
}
