package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/models/driver_models"
	"github.com/joy095/carrental/models/incident_models"
	"github.com/joy095/carrental/models/payment_models"
	"github.com/joy095/carrental/utils"
)

//go:embed schema.sql
var schemaSQL string

// rowQuerier is the read subset shared by *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the production Store on top of a pgx pool.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schemaSQL); err != nil {
		logger.ErrorLogger.Errorf("[SCHEMA_FAIL] Failed to apply schema: %v", err)
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.InfoLogger.Info("Database schema is up to date")
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		logger.ErrorLogger.Errorf("[TX_BEGIN_FAIL] %v", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		logger.ErrorLogger.Errorf("[TX_COMMIT_FAIL] %v", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const bookingColumns = `id, user_id, car_id, start_date, end_date, address, email, contact,
	location, has_separate_locations, pickup_coords, dropoff_coords, pickup_address, dropoff_address,
	total_amount, status, needs_driver, driver_price, driver_id, driver_assigned,
	payment_method, payment_status, transaction_id, gateway_pidx, payment_details,
	created_at, updated_at`

func scanBooking(row pgx.Row) (*booking_models.Booking, error) {
	var b booking_models.Booking
	var details []byte
	err := row.Scan(
		&b.ID, &b.UserID, &b.CarID, &b.StartDate, &b.EndDate, &b.Address, &b.Email, &b.Contact,
		&b.Location, &b.HasSeparateLocations, &b.PickupCoords, &b.DropoffCoords, &b.PickupAddress, &b.DropoffAddress,
		&b.TotalAmount, &b.Status, &b.NeedsDriver, &b.DriverPrice, &b.DriverID, &b.DriverAssigned,
		&b.PaymentMethod, &b.PaymentStatus, &b.TransactionID, &b.GatewayPidx, &details,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		b.PaymentDetails = details
	}
	return &b, nil
}

func getBooking(ctx context.Context, q rowQuerier, where string, arg any, lock bool) (*booking_models.Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where
	if lock {
		sql += ` FOR UPDATE`
	}

	b, err := scanBooking(q.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("booking (%v): %w", arg, utils.ErrNotFound)
	}
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to load booking %v: %v", arg, err)
		return nil, fmt.Errorf("database error loading booking: %w", err)
	}
	return b, nil
}

func (t *postgresTx) BookingForUpdate(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	return getBooking(ctx, t.tx, `id = $1`, id, true)
}

func (t *postgresTx) BookingByPidxForUpdate(ctx context.Context, pidx string) (*booking_models.Booking, error) {
	return getBooking(ctx, t.tx, `gateway_pidx = $1`, pidx, true)
}

func (t *postgresTx) DriverForUpdate(ctx context.Context, id uuid.UUID) (*driver_models.Driver, error) {
	return loadDriver(ctx, t.tx, id, true)
}

func (t *postgresTx) UpdateBooking(ctx context.Context, b *booking_models.Booking) error {
	b.UpdatedAt = time.Now().UTC()
	tag, err := t.tx.Exec(ctx,
		`UPDATE bookings SET
			status = $1, driver_id = $2, driver_assigned = $3,
			payment_method = $4, payment_status = $5, transaction_id = $6,
			gateway_pidx = $7, payment_details = $8, updated_at = $9
		 WHERE id = $10`,
		b.Status, b.DriverID, b.DriverAssigned,
		b.PaymentMethod, b.PaymentStatus, b.TransactionID,
		b.GatewayPidx, nullableJSON(b.PaymentDetails), b.UpdatedAt, b.ID)
	if err != nil {
		logger.ErrorLogger.Errorf("[TX_EXEC_FAIL] Update booking %s: %v", b.ID, err)
		return fmt.Errorf("database error updating booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, utils.ErrNotFound)
	}
	return nil
}

func (t *postgresTx) UpdateDriver(ctx context.Context, d *driver_models.Driver) error {
	d.UpdatedAt = time.Now().UTC()
	tag, err := t.tx.Exec(ctx,
		`UPDATE drivers SET
			status = $1, current_booking_id = $2, rating = $3, is_active = $4, updated_at = $5
		 WHERE id = $6`,
		d.Status, d.CurrentBookingID, d.Rating, d.IsActive, d.UpdatedAt, d.ID)
	if err != nil {
		logger.ErrorLogger.Errorf("[TX_EXEC_FAIL] Update driver %s: %v", d.ID, err)
		return fmt.Errorf("database error updating driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("driver %s: %w", d.ID, utils.ErrNotFound)
	}

	for i := range d.BookingHistory {
		e := &d.BookingHistory[i]
		if e.ID == 0 {
			err := t.tx.QueryRow(ctx,
				`INSERT INTO driver_booking_history (driver_id, booking_id, assigned_at, completed_at)
				 VALUES ($1, $2, $3, $4) RETURNING id`,
				d.ID, e.BookingID, e.AssignedAt, e.CompletedAt).Scan(&e.ID)
			if err != nil {
				logger.ErrorLogger.Errorf("[TX_EXEC_FAIL] Insert history for driver %s: %v", d.ID, err)
				return fmt.Errorf("database error appending driver history: %w", err)
			}
			continue
		}
		if e.CompletedAt != nil {
			// Completed entries are frozen; only an open row can be closed.
			if _, err := t.tx.Exec(ctx,
				`UPDATE driver_booking_history SET completed_at = $1
				 WHERE id = $2 AND driver_id = $3 AND completed_at IS NULL`,
				e.CompletedAt, e.ID, d.ID); err != nil {
				logger.ErrorLogger.Errorf("[TX_EXEC_FAIL] Close history %d for driver %s: %v", e.ID, d.ID, err)
				return fmt.Errorf("database error closing driver history: %w", err)
			}
		}
	}

	for _, r := range d.Reviews {
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO driver_reviews (driver_id, user_id, rating, comment, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (driver_id, user_id)
			 DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, created_at = EXCLUDED.created_at`,
			d.ID, r.UserID, r.Rating, r.Comment, r.Date); err != nil {
			logger.ErrorLogger.Errorf("[TX_EXEC_FAIL] Upsert review for driver %s: %v", d.ID, err)
			return fmt.Errorf("database error saving review: %w", err)
		}
	}
	return nil
}

func (t *postgresTx) RecordIncident(ctx context.Context, inc *incident_models.Incident) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO incidents (kind, booking_id, driver_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		inc.Kind, inc.BookingID, inc.DriverID, inc.Detail, inc.CreatedAt).Scan(&inc.ID)
	if err != nil {
		logger.ErrorLogger.Errorf("[TX_EXEC_FAIL] Record %s incident: %v", inc.Kind, err)
		return fmt.Errorf("database error recording incident: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateBooking(ctx context.Context, b *booking_models.Booking) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		         $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		b.ID, b.UserID, b.CarID, b.StartDate, b.EndDate, b.Address, b.Email, b.Contact,
		b.Location, b.HasSeparateLocations, b.PickupCoords, b.DropoffCoords, b.PickupAddress, b.DropoffAddress,
		b.TotalAmount, b.Status, b.NeedsDriver, b.DriverPrice, b.DriverID, b.DriverAssigned,
		b.PaymentMethod, b.PaymentStatus, b.TransactionID, b.GatewayPidx, nullableJSON(b.PaymentDetails),
		b.CreatedAt, b.UpdatedAt)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert booking %s: %v", b.ID, err)
		return fmt.Errorf("database error creating booking: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	return getBooking(ctx, s.DB, `id = $1`, id, false)
}

func (s *PostgresStore) GetBookingByPidx(ctx context.Context, pidx string) (*booking_models.Booking, error) {
	return getBooking(ctx, s.DB, `gateway_pidx = $1`, pidx, false)
}

func (s *PostgresStore) ListBookings(ctx context.Context, f BookingFilter) ([]*booking_models.Booking, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}
	if !f.UpdatedBefore.IsZero() {
		add("updated_at < $%d", f.UpdatedBefore)
	}

	sql := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	if f.OldestFirst {
		sql += ` ORDER BY updated_at ASC`
	} else {
		sql += ` ORDER BY created_at DESC`
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query bookings: %v", err)
		return nil, fmt.Errorf("database error listing bookings: %w", err)
	}
	defer rows.Close()

	var out []*booking_models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			logger.ErrorLogger.Errorf("Failed to scan booking row: %v", err)
			return nil, fmt.Errorf("error reading bookings: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		logger.ErrorLogger.Errorf("Row iteration error for bookings: %v", err)
		return nil, fmt.Errorf("error reading bookings: %w", err)
	}
	return out, nil
}

const driverColumns = `id, name, license_number, phone, email, address, date_of_birth, experience,
	license_image, profile_image, status, current_booking_id, rating, is_active, created_at, updated_at`

func scanDriver(row pgx.Row) (*driver_models.Driver, error) {
	var d driver_models.Driver
	var dob *time.Time
	err := row.Scan(
		&d.ID, &d.Name, &d.LicenseNumber, &d.Phone, &d.Email, &d.Address, &dob, &d.Experience,
		&d.LicenseImage, &d.ProfileImage, &d.Status, &d.CurrentBookingID, &d.Rating, &d.IsActive,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dob != nil {
		d.DateOfBirth = *dob
	}
	return &d, nil
}

func loadDriver(ctx context.Context, q rowQuerier, id uuid.UUID, lock bool) (*driver_models.Driver, error) {
	sql := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}

	d, err := scanDriver(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("driver %s: %w", id, utils.ErrNotFound)
	}
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to load driver %s: %v", id, err)
		return nil, fmt.Errorf("database error loading driver: %w", err)
	}

	if err := loadDriverChildren(ctx, q, d); err != nil {
		return nil, err
	}
	return d, nil
}

func loadDriverChildren(ctx context.Context, q rowQuerier, d *driver_models.Driver) error {
	rows, err := q.Query(ctx,
		`SELECT id, booking_id, assigned_at, completed_at
		 FROM driver_booking_history WHERE driver_id = $1 ORDER BY id ASC`, d.ID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query history for driver %s: %v", d.ID, err)
		return fmt.Errorf("database error loading driver history: %w", err)
	}
	d.BookingHistory = nil
	for rows.Next() {
		var e driver_models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.AssignedAt, &e.CompletedAt); err != nil {
			rows.Close()
			return fmt.Errorf("error reading driver history: %w", err)
		}
		d.BookingHistory = append(d.BookingHistory, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error reading driver history: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT user_id, rating, comment, created_at
		 FROM driver_reviews WHERE driver_id = $1 ORDER BY created_at ASC`, d.ID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query reviews for driver %s: %v", d.ID, err)
		return fmt.Errorf("database error loading driver reviews: %w", err)
	}
	defer rows.Close()
	d.Reviews = nil
	for rows.Next() {
		var r driver_models.Review
		if err := rows.Scan(&r.UserID, &r.Rating, &r.Comment, &r.Date); err != nil {
			return fmt.Errorf("error reading driver reviews: %w", err)
		}
		d.Reviews = append(d.Reviews, r)
	}
	return rows.Err()
}

func (s *PostgresStore) CreateDriver(ctx context.Context, d *driver_models.Driver) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO drivers (`+driverColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		d.ID, d.Name, d.LicenseNumber, d.Phone, d.Email, d.Address, d.DateOfBirth, d.Experience,
		d.LicenseImage, d.ProfileImage, d.Status, d.CurrentBookingID, d.Rating, d.IsActive,
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "drivers_license_number_key") {
			return fmt.Errorf("%w: driver with this license number already exists", utils.ErrValidation)
		}
		logger.ErrorLogger.Errorf("Failed to insert driver %s: %v", d.ID, err)
		return fmt.Errorf("database error creating driver: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDriver(ctx context.Context, id uuid.UUID) (*driver_models.Driver, error) {
	return loadDriver(ctx, s.DB, id, false)
}

func (s *PostgresStore) ListDrivers(ctx context.Context, status driver_models.Status) ([]*driver_models.Driver, error) {
	sql := `SELECT ` + driverColumns + ` FROM drivers`
	var args []any
	if status != "" {
		sql += ` WHERE status = $1 AND is_active`
		args = append(args, status)
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query drivers: %v", err)
		return nil, fmt.Errorf("database error listing drivers: %w", err)
	}

	var out []*driver_models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("error reading drivers: %w", err)
		}
		out = append(out, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading drivers: %w", err)
	}

	for _, d := range out {
		if err := loadDriverChildren(ctx, s.DB, d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) ListIncidents(ctx context.Context, limit int) ([]*incident_models.Incident, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.Query(ctx,
		`SELECT id, kind, booking_id, driver_id, detail, created_at
		 FROM incidents ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query incidents: %v", err)
		return nil, fmt.Errorf("database error listing incidents: %w", err)
	}
	defer rows.Close()

	var out []*incident_models.Incident
	for rows.Next() {
		var inc incident_models.Incident
		if err := rows.Scan(&inc.ID, &inc.Kind, &inc.BookingID, &inc.DriverID, &inc.Detail, &inc.CreatedAt); err != nil {
			return nil, fmt.Errorf("error reading incidents: %w", err)
		}
		out = append(out, &inc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecordWebhookEvent(ctx context.Context, ev *payment_models.WebhookEvent) error {
	err := s.DB.QueryRow(ctx,
		`INSERT INTO webhook_events (gateway, pidx, status, raw_payload, received_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		ev.Gateway, ev.Pidx, ev.Status, string(ev.RawPayload), ev.ReceivedAt).Scan(&ev.ID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to log webhook event: %v", err)
		return fmt.Errorf("database error recording webhook event: %w", err)
	}
	return nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
