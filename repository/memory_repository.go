package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/models/driver_models"
	"github.com/joy095/carrental/models/incident_models"
	"github.com/joy095/carrental/models/payment_models"
	"github.com/joy095/carrental/utils"
)

// MemoryStore keeps everything in process. Transactions are serialised by a
// single mutex and write to a staging area that is applied only on commit.
type MemoryStore struct {
	mu sync.Mutex

	bookings      map[uuid.UUID]*booking_models.Booking
	drivers       map[uuid.UUID]*driver_models.Driver
	incidents     []*incident_models.Incident
	webhookEvents []*payment_models.WebhookEvent
	nextHistoryID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[uuid.UUID]*booking_models.Booking),
		drivers:  make(map[uuid.UUID]*driver_models.Driver),
	}
}

type memoryTx struct {
	store     *MemoryStore
	bookings  map[uuid.UUID]*booking_models.Booking
	drivers   map[uuid.UUID]*driver_models.Driver
	incidents []*incident_models.Incident
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:    s,
		bookings: make(map[uuid.UUID]*booking_models.Booking),
		drivers:  make(map[uuid.UUID]*driver_models.Driver),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, b := range tx.bookings {
		s.bookings[id] = b
	}
	for id, d := range tx.drivers {
		for i := range d.BookingHistory {
			if d.BookingHistory[i].ID == 0 {
				s.nextHistoryID++
				d.BookingHistory[i].ID = s.nextHistoryID
			}
		}
		s.drivers[id] = d
	}
	for _, inc := range tx.incidents {
		inc.ID = int64(len(s.incidents) + 1)
		s.incidents = append(s.incidents, inc)
	}
	return nil
}

func (t *memoryTx) BookingForUpdate(_ context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		return b.Clone(), nil
	}
	b, ok := t.store.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, utils.ErrNotFound)
	}
	return b.Clone(), nil
}

func (t *memoryTx) BookingByPidxForUpdate(ctx context.Context, pidx string) (*booking_models.Booking, error) {
	for id, b := range t.bookings {
		if b.GatewayPidx != nil && *b.GatewayPidx == pidx {
			return t.BookingForUpdate(ctx, id)
		}
	}
	for id, b := range t.store.bookings {
		if b.GatewayPidx != nil && *b.GatewayPidx == pidx {
			return t.BookingForUpdate(ctx, id)
		}
	}
	return nil, fmt.Errorf("booking with pidx %s: %w", pidx, utils.ErrNotFound)
}

func (t *memoryTx) DriverForUpdate(_ context.Context, id uuid.UUID) (*driver_models.Driver, error) {
	if d, ok := t.drivers[id]; ok {
		return d.Clone(), nil
	}
	d, ok := t.store.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %s: %w", id, utils.ErrNotFound)
	}
	return d.Clone(), nil
}

func (t *memoryTx) UpdateBooking(_ context.Context, b *booking_models.Booking) error {
	if _, ok := t.store.bookings[b.ID]; !ok {
		return fmt.Errorf("booking %s: %w", b.ID, utils.ErrNotFound)
	}
	b.UpdatedAt = time.Now().UTC()
	t.bookings[b.ID] = b.Clone()
	return nil
}

func (t *memoryTx) UpdateDriver(_ context.Context, d *driver_models.Driver) error {
	current, ok := t.store.drivers[d.ID]
	if !ok {
		return fmt.Errorf("driver %s: %w", d.ID, utils.ErrNotFound)
	}
	if err := checkHistoryAppendOnly(current, d); err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()
	t.drivers[d.ID] = d.Clone()
	return nil
}

func (t *memoryTx) RecordIncident(_ context.Context, inc *incident_models.Incident) error {
	c := *inc
	t.incidents = append(t.incidents, &c)
	return nil
}

// checkHistoryAppendOnly rejects rewrites of completed history entries and
// removal of existing ones, mirroring the Postgres update rules.
func checkHistoryAppendOnly(before, after *driver_models.Driver) error {
	if len(after.BookingHistory) < len(before.BookingHistory) {
		return fmt.Errorf("driver %s: booking history entries cannot be removed", after.ID)
	}
	for i, old := range before.BookingHistory {
		cur := after.BookingHistory[i]
		if cur.BookingID != old.BookingID || !cur.AssignedAt.Equal(old.AssignedAt) {
			return fmt.Errorf("driver %s: booking history entry %d was rewritten", after.ID, i)
		}
		if old.CompletedAt != nil && (cur.CompletedAt == nil || !cur.CompletedAt.Equal(*old.CompletedAt)) {
			return fmt.Errorf("driver %s: completed history entry %d is immutable", after.ID, i)
		}
	}
	return nil
}

func (s *MemoryStore) CreateBooking(_ context.Context, b *booking_models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[b.ID]; exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	s.bookings[b.ID] = b.Clone()
	return nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, utils.ErrNotFound)
	}
	return b.Clone(), nil
}

func (s *MemoryStore) GetBookingByPidx(_ context.Context, pidx string) (*booking_models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bookings {
		if b.GatewayPidx != nil && *b.GatewayPidx == pidx {
			return b.Clone(), nil
		}
	}
	return nil, fmt.Errorf("booking with pidx %s: %w", pidx, utils.ErrNotFound)
}

func (s *MemoryStore) ListBookings(_ context.Context, f BookingFilter) ([]*booking_models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*booking_models.Booking
	for _, b := range s.bookings {
		if f.UserID != nil && b.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.PaymentStatus != "" && b.PaymentStatus != f.PaymentStatus {
			continue
		}
		if !f.UpdatedBefore.IsZero() && !b.UpdatedAt.Before(f.UpdatedBefore) {
			continue
		}
		out = append(out, b.Clone())
	}

	if f.OldestFirst {
		sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateDriver(_ context.Context, d *driver_models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.drivers {
		if existing.LicenseNumber == d.LicenseNumber {
			return fmt.Errorf("%w: driver with this license number already exists", utils.ErrValidation)
		}
	}
	s.drivers[d.ID] = d.Clone()
	return nil
}

func (s *MemoryStore) GetDriver(_ context.Context, id uuid.UUID) (*driver_models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %s: %w", id, utils.ErrNotFound)
	}
	return d.Clone(), nil
}

func (s *MemoryStore) ListDrivers(_ context.Context, status driver_models.Status) ([]*driver_models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*driver_models.Driver
	for _, d := range s.drivers {
		if status != "" && (d.Status != status || !d.IsActive) {
			continue
		}
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListIncidents(_ context.Context, limit int) ([]*incident_models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*incident_models.Incident, 0, len(s.incidents))
	for i := len(s.incidents) - 1; i >= 0; i-- {
		c := *s.incidents[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) RecordWebhookEvent(_ context.Context, ev *payment_models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *ev
	c.ID = int64(len(s.webhookEvents) + 1)
	s.webhookEvents = append(s.webhookEvents, &c)
	return nil
}

// WebhookEvents returns the recorded deliveries in arrival order.
func (s *MemoryStore) WebhookEvents() []payment_models.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]payment_models.WebhookEvent, len(s.webhookEvents))
	for i, ev := range s.webhookEvents {
		out[i] = *ev
	}
	return out
}
