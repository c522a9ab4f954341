package incident_models

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindInconsistentHistory Kind = "InconsistentHistory"
	KindPaymentConflict     Kind = "PaymentConflict"
	KindAmountMismatch      Kind = "AmountMismatch"
)

// Incident is an absorbed inconsistency kept for operator review.
type Incident struct {
	ID        int64      `json:"id"`
	Kind      Kind       `json:"kind"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	DriverID  *uuid.UUID `json:"driver_id,omitempty"`
	Detail    string     `json:"detail"`
	CreatedAt time.Time  `json:"created_at"`
}

func New(kind Kind, bookingID, driverID *uuid.UUID, detail string) *Incident {
	return &Incident{
		Kind:      kind,
		BookingID: bookingID,
		DriverID:  driverID,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}
