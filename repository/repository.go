package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/models/driver_models"
	"github.com/joy095/carrental/models/incident_models"
	"github.com/joy095/carrental/models/payment_models"
)

// BookingFilter narrows ListBookings. Zero values mean "any".
type BookingFilter struct {
	UserID        *uuid.UUID
	Status        booking_models.Status
	PaymentStatus booking_models.PaymentStatus
	UpdatedBefore time.Time
	Limit         int

	// OldestFirst orders by updated_at ascending instead of newest created.
	OldestFirst bool
}

// Tx is one atomic unit of work. Rows returned by the *ForUpdate methods stay
// locked against other transactions until the unit commits or rolls back,
// so "check current state, then write" inside a Tx is a conditional update.
type Tx interface {
	BookingForUpdate(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error)
	BookingByPidxForUpdate(ctx context.Context, pidx string) (*booking_models.Booking, error)
	DriverForUpdate(ctx context.Context, id uuid.UUID) (*driver_models.Driver, error)

	UpdateBooking(ctx context.Context, b *booking_models.Booking) error
	UpdateDriver(ctx context.Context, d *driver_models.Driver) error
	RecordIncident(ctx context.Context, inc *incident_models.Incident) error
}

// Store is the transactional document store behind the services. Lookups
// that miss return an error wrapping utils.ErrNotFound.
type Store interface {
	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateBooking(ctx context.Context, b *booking_models.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error)
	GetBookingByPidx(ctx context.Context, pidx string) (*booking_models.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]*booking_models.Booking, error)

	CreateDriver(ctx context.Context, d *driver_models.Driver) error
	GetDriver(ctx context.Context, id uuid.UUID) (*driver_models.Driver, error)
	ListDrivers(ctx context.Context, status driver_models.Status) ([]*driver_models.Driver, error)

	ListIncidents(ctx context.Context, limit int) ([]*incident_models.Incident, error)
	RecordWebhookEvent(ctx context.Context, ev *payment_models.WebhookEvent) error
}
