package driver_models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joy095/carrental/utils"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusAssigned  Status = "assigned"
	StatusOnLeave   Status = "on-leave"
	StatusInactive  Status = "inactive"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusOnLeave, StatusInactive:
		return true
	}
	return false
}

// HistoryEntry records one assignment. Entries are append-only and frozen
// once CompletedAt is set.
type HistoryEntry struct {
	ID          int64      `json:"id,omitempty"`
	BookingID   uuid.UUID  `json:"booking_id"`
	AssignedAt  time.Time  `json:"assigned_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Review struct {
	UserID  uuid.UUID `json:"user_id"`
	Rating  int       `json:"rating"`
	Comment string    `json:"comment"`
	Date    time.Time `json:"date"`
}

type Driver struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	LicenseNumber string    `json:"license_number"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	DateOfBirth   time.Time `json:"date_of_birth"`
	Experience    int       `json:"experience"`
	LicenseImage  string    `json:"license_image"`
	ProfileImage  string    `json:"profile_image"`

	Status           Status         `json:"status"`
	CurrentBookingID *uuid.UUID     `json:"current_booking_id,omitempty"`
	BookingHistory   []HistoryEntry `json:"booking_history"`
	Reviews          []Review       `json:"reviews"`
	Rating           float64        `json:"rating"`
	IsActive         bool           `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateDriverInput struct {
	Name          string    `json:"name" validate:"required"`
	LicenseNumber string    `json:"license_number" validate:"required"`
	Phone         string    `json:"phone" validate:"required"`
	Email         string    `json:"email" validate:"required,email"`
	Address       string    `json:"address"`
	DateOfBirth   time.Time `json:"date_of_birth"`
	Experience    int       `json:"experience" validate:"gte=0"`
	LicenseImage  string    `json:"license_image"`
	ProfileImage  string    `json:"profile_image"`
}

var validate = validator.New()

// NewDriver validates in and returns an available, active driver.
func NewDriver(in CreateDriverInput) (*Driver, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for driver: %w", err)
	}

	now := time.Now().UTC()
	return &Driver{
		ID:            id,
		Name:          in.Name,
		LicenseNumber: in.LicenseNumber,
		Phone:         in.Phone,
		Email:         in.Email,
		Address:       in.Address,
		DateOfBirth:   in.DateOfBirth,
		Experience:    in.Experience,
		LicenseImage:  in.LicenseImage,
		ProfileImage:  in.ProfileImage,
		Status:        StatusAvailable,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CanTakeBooking is the availability check used by assignment.
func (d *Driver) CanTakeBooking() bool {
	return d.Status == StatusAvailable && d.IsActive
}

// OpenEntryFor returns the unfinished history entry for bookingID, or nil.
func (d *Driver) OpenEntryFor(bookingID uuid.UUID) *HistoryEntry {
	for i := range d.BookingHistory {
		e := &d.BookingHistory[i]
		if e.BookingID == bookingID && e.CompletedAt == nil {
			return e
		}
	}
	return nil
}

// HasServed reports whether bookingID appears anywhere in the history.
func (d *Driver) HasServed(bookingID uuid.UUID) bool {
	for _, e := range d.BookingHistory {
		if e.BookingID == bookingID {
			return true
		}
	}
	return false
}

// UpsertReview replaces the user's earlier review, if any, and recomputes
// the rating as the mean of all stored reviews.
func (d *Driver) UpsertReview(r Review) {
	replaced := false
	for i := range d.Reviews {
		if d.Reviews[i].UserID == r.UserID {
			d.Reviews[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		d.Reviews = append(d.Reviews, r)
	}
	d.RecomputeRating()
}

func (d *Driver) RecomputeRating() {
	if len(d.Reviews) == 0 {
		d.Rating = 0
		return
	}
	total := 0
	for _, r := range d.Reviews {
		total += r.Rating
	}
	d.Rating = float64(total) / float64(len(d.Reviews))
}

func (d *Driver) Clone() *Driver {
	if d == nil {
		return nil
	}
	c := *d
	if d.CurrentBookingID != nil {
		v := *d.CurrentBookingID
		c.CurrentBookingID = &v
	}
	c.BookingHistory = make([]HistoryEntry, len(d.BookingHistory))
	for i, e := range d.BookingHistory {
		c.BookingHistory[i] = e
		if e.CompletedAt != nil {
			v := *e.CompletedAt
			c.BookingHistory[i].CompletedAt = &v
		}
	}
	c.Reviews = append([]Review(nil), d.Reviews...)
	return &c
}
