package payment_reconciliation_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/clients"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/metrics"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/models/incident_models"
	"github.com/joy095/carrental/models/payment_models"
	"github.com/joy095/carrental/repository"
	"github.com/joy095/carrental/utils"
	"github.com/joy095/carrental/utils/mail"
	"github.com/joy095/carrental/utils/ttlstore"
)

// Outcome says what an incoming payment observation did to the booking.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomePaymentRecorded  Outcome = "payment_recorded"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeConflict         Outcome = "conflict"
	OutcomeRefunded         Outcome = "refunded"
	OutcomeFailed           Outcome = "failed"
	OutcomePending          Outcome = "pending"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeUnknownPidx      Outcome = "unknown_pidx"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
)

// settled reports whether the outcome is final for the observation that
// produced it. Pending, ignored and unknown-session outcomes may change when
// the same observation arrives again.
func (o Outcome) settled() bool {
	switch o {
	case OutcomePending, OutcomeIgnored, OutcomeUnknownPidx:
		return false
	}
	return true
}

// A delivery is claimed with claimMarker while it is processed. The claim
// holds off retries for at most webhookClaimTTL.
const (
	claimMarker     = "processing"
	webhookClaimTTL = 5 * time.Minute
)

// Result is returned by every entry point.
type Result struct {
	Booking       *booking_models.Booking      `json:"booking,omitempty"`
	GatewayStatus payment_models.GatewayStatus `json:"gateway_status,omitempty"`
	Outcome       Outcome                      `json:"outcome"`
}

type Config struct {
	ReturnURL  string
	WebsiteURL string
	Currency   string
	DedupeTTL  time.Duration
}

// Service converges verify, webhook and lookup observations onto one
// idempotent booking transition. Gateway calls are made outside any
// repository transaction.
type Service struct {
	store    repository.Store
	gateway  clients.PaymentGateway
	gateways map[string]clients.PaymentGateway
	dedupe   ttlstore.Store
	mailer   mail.Mailer
	cfg      Config
	now      func() time.Time
}

// New wires the service. gateway serves initiate, verify and lookup; extra
// gateways are only accepted on the webhook path.
func New(store repository.Store, gateway clients.PaymentGateway, dedupe ttlstore.Store, mailer mail.Mailer, cfg Config, extra ...clients.PaymentGateway) *Service {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	s := &Service{
		store:    store,
		gateway:  gateway,
		gateways: map[string]clients.PaymentGateway{gateway.Name(): gateway},
		dedupe:   dedupe,
		mailer:   mailer,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, g := range extra {
		s.gateways[g.Name()] = g
	}
	return s
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GatewayName is the primary gateway's name.
func (s *Service) GatewayName() string { return s.gateway.Name() }

// SignatureHeader names the header gatewayName signs its webhooks with.
func (s *Service) SignatureHeader(gatewayName string) string {
	if gw, ok := s.gateways[gatewayName]; ok {
		return gw.SignatureHeader()
	}
	return ""
}

// loadOwned reads a booking and hides bookings the actor does not own.
func loadOwned(b *booking_models.Booking, actor utils.Principal) error {
	if actor.Role == utils.RoleUser && b.UserID != actor.ID {
		return fmt.Errorf("booking %s not found or does not belong to you: %w", b.ID, utils.ErrNotFound)
	}
	return nil
}

// Initiate opens a gateway payment session for a pending booking.
func (s *Service) Initiate(ctx context.Context, bookingID uuid.UUID, actor utils.Principal, returnURL string) (*payment_models.InitiateResponse, *booking_models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if err := loadOwned(booking, actor); err != nil {
		return nil, nil, err
	}
	if err := canInitiate(booking); err != nil {
		return nil, nil, err
	}

	if returnURL == "" {
		returnURL = s.cfg.ReturnURL
	}
	name := fmt.Sprintf("Car Rental booking (%s)", booking.ID)
	session, err := s.gateway.Initiate(ctx, payment_models.InitiateRequest{
		ReturnURL:         returnURL,
		WebsiteURL:        s.cfg.WebsiteURL,
		AmountPaisa:       booking.AmountInPaisa(),
		Currency:          s.cfg.Currency,
		PurchaseOrderID:   booking.ID.String(),
		PurchaseOrderName: name,
		CustomerName:      "Customer",
		CustomerEmail:     booking.Email,
		CustomerPhone:     booking.Contact,
	})
	if err != nil {
		logger.ErrorLogger.Errorf("Payment initiation for booking %s failed: %v", bookingID, err)
		return nil, nil, err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		booking, err = tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := canInitiate(booking); err != nil {
			return err
		}

		pidx := session.Pidx
		booking.GatewayPidx = &pidx
		booking.PaymentMethod = booking_models.PaymentMethodGateway
		booking.PaymentStatus = booking_models.PaymentInitiated
		booking.PaymentDetails = session.Raw
		return tx.UpdateBooking(ctx, booking)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.InfoLogger.Infof("Payment session %s initiated for booking %s (%d paisa)", session.Pidx, bookingID, booking.AmountInPaisa())
	return session, booking, nil
}

func canInitiate(b *booking_models.Booking) error {
	if b.Status != booking_models.StatusPending {
		return fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, utils.ErrInvalidState)
	}
	if b.PaymentStatus == booking_models.PaymentCompleted || b.PaymentStatus == booking_models.PaymentRefunded {
		return fmt.Errorf("booking %s payment is already %s: %w", b.ID, b.PaymentStatus, utils.ErrInvalidState)
	}
	return nil
}

// OnVerifySync verifies a payment token directly with the gateway for the
// booking's own amount. A decline returns ErrGatewayRejected and a transport
// failure ErrGatewayUnavailable; neither touches the booking.
func (s *Service) OnVerifySync(ctx context.Context, bookingID uuid.UUID, actor utils.Principal, token string) (*Result, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := loadOwned(booking, actor); err != nil {
		return nil, err
	}
	if booking.PaymentStatus == booking_models.PaymentCompleted {
		return &Result{Booking: booking, GatewayStatus: payment_models.GatewayCompleted, Outcome: OutcomeAlreadyCompleted}, nil
	}

	amountPaisa := booking.AmountInPaisa()
	verified, err := s.gateway.Verify(ctx, token, amountPaisa)
	if err != nil {
		logger.WarnLogger.Warnf("Payment verification for booking %s failed: %v", bookingID, err)
		return nil, err
	}
	if !verified.Success {
		logger.WarnLogger.Warnf("Payment verification for booking %s was declined", bookingID)
		return nil, fmt.Errorf("verification declined for booking %s: %w", bookingID, utils.ErrGatewayRejected)
	}

	ev := &payment_models.GatewayEvent{
		Status:        payment_models.GatewayCompleted,
		TransactionID: verified.TransactionID,
		TotalAmount:   amountPaisa,
		Raw:           verified.Raw,
	}

	var outcome Outcome
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		booking, err = tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		outcome, err = s.complete(ctx, tx, booking, ev)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(booking, outcome, "verify")
	res := &Result{Booking: booking, GatewayStatus: ev.Status, Outcome: outcome}
	if err := rejectMismatch(res); err != nil {
		return nil, err
	}
	return res, nil
}

// OnWebhook handles one gateway delivery. The only error a caller must
// surface is ErrUnauthorized for a bad signature; everything else is for
// logging, since the gateway is always acknowledged.
func (s *Service) OnWebhook(ctx context.Context, gatewayName, signature string, body []byte) (*Result, error) {
	gw, ok := s.gateways[gatewayName]
	if !ok {
		metrics.TrackWebhook(gatewayName, "", "unknown_gateway")
		return &Result{Outcome: OutcomeIgnored}, fmt.Errorf("webhook for unknown gateway %q: %w", gatewayName, utils.ErrNotFound)
	}

	if !gw.VerifyWebhookSignature(body, signature) {
		logger.WarnLogger.Warnf("Rejected %s webhook with invalid signature", gatewayName)
		metrics.TrackWebhook(gatewayName, "", "bad_signature")
		return nil, fmt.Errorf("invalid webhook signature: %w", utils.ErrUnauthorized)
	}

	ev, parseErr := gw.ParseWebhook(body)

	audit := &payment_models.WebhookEvent{
		Gateway:    gatewayName,
		RawPayload: append([]byte(nil), body...),
		ReceivedAt: s.now(),
	}
	if ev != nil {
		audit.Pidx = ev.Pidx
		audit.Status = string(ev.Status)
	}
	if err := s.store.RecordWebhookEvent(ctx, audit); err != nil {
		logger.ErrorLogger.Errorf("Failed to log webhook event: %v", err)
	}

	if parseErr != nil {
		logger.WarnLogger.Warnf("Ignoring malformed %s webhook: %v", gatewayName, parseErr)
		metrics.TrackWebhook(gatewayName, "", "malformed")
		return &Result{Outcome: OutcomeIgnored}, fmt.Errorf("%w: %v", utils.ErrValidation, parseErr)
	}

	key := dedupeKey(gatewayName, ev)
	claimed, err := s.dedupe.SetNX(ctx, key, claimMarker, webhookClaimTTL)
	if err != nil {
		logger.WarnLogger.Warnf("Webhook dedupe claim failed, processing anyway: %v", err)
		claimed = true
	}
	if !claimed {
		earlier, err := s.dedupe.Get(ctx, key)
		if err != nil && !errors.Is(err, ttlstore.ErrNotFound) {
			logger.WarnLogger.Warnf("Webhook dedupe read failed: %v", err)
		}
		logger.InfoLogger.Infof("Duplicate %s webhook for pidx %s (%s) skipped, earlier outcome %q", gatewayName, ev.Pidx, ev.Status, earlier)
		metrics.TrackWebhook(gatewayName, string(ev.Status), string(OutcomeDuplicate))
		return &Result{GatewayStatus: ev.Status, Outcome: OutcomeDuplicate}, nil
	}

	res, err := s.applyWebhook(ctx, gw, ev)
	if err != nil {
		s.release(ctx, key)
		logger.ErrorLogger.Errorf("Processing %s webhook for pidx %s failed: %v", gatewayName, ev.Pidx, err)
		metrics.TrackWebhook(gatewayName, string(ev.Status), "error")
		return nil, err
	}

	if res.Outcome.settled() {
		if err := s.dedupe.Set(ctx, key, string(res.Outcome), s.cfg.DedupeTTL); err != nil {
			logger.WarnLogger.Warnf("Failed to remember webhook %s: %v", key, err)
		}
	} else {
		s.release(ctx, key)
	}
	metrics.TrackWebhook(gatewayName, string(ev.Status), string(res.Outcome))
	s.afterCommit(res.Booking, res.Outcome, "webhook")
	return res, nil
}

func dedupeKey(gateway string, ev *payment_models.GatewayEvent) string {
	return fmt.Sprintf("webhook:%s:%s:%s:%s", gateway, ev.Pidx, ev.Status, ev.TransactionID)
}

// release drops a webhook claim so the same delivery is processed again.
func (s *Service) release(ctx context.Context, key string) {
	if err := s.dedupe.Delete(ctx, key); err != nil {
		logger.WarnLogger.Warnf("Failed to release webhook claim %s: %v", key, err)
	}
}

// applyWebhook applies one parsed delivery. Completions and refunds are only
// hints: the session is looked up with the gateway and that answer is
// applied instead of the delivery body.
func (s *Service) applyWebhook(ctx context.Context, gw clients.PaymentGateway, ev *payment_models.GatewayEvent) (*Result, error) {
	if ev.Status != payment_models.GatewayCompleted && !ev.Status.IsRefund() {
		return s.applyByPidx(ctx, ev, false)
	}

	_, err := s.store.GetBookingByPidx(ctx, ev.Pidx)
	if errors.Is(err, utils.ErrNotFound) {
		logger.WarnLogger.Warnf("No booking matches payment session %s (%s)", ev.Pidx, ev.Status)
		return &Result{GatewayStatus: ev.Status, Outcome: OutcomeUnknownPidx}, nil
	}
	if err != nil {
		return nil, err
	}

	confirmed, err := gw.Lookup(ctx, ev.Pidx)
	if err != nil {
		return nil, fmt.Errorf("confirming %s webhook for pidx %s: %w", ev.Status, ev.Pidx, err)
	}
	if confirmed.Status != ev.Status {
		logger.WarnLogger.Warnf("Webhook for pidx %s says %s but %s lookup says %s", ev.Pidx, ev.Status, gw.Name(), confirmed.Status)
	}
	confirmed.Pidx = ev.Pidx
	return s.applyByPidx(ctx, confirmed, false)
}

// OnLookup polls the gateway for pidx and applies the answer. Unlike the
// webhook path it also records explicit terminal failures.
func (s *Service) OnLookup(ctx context.Context, pidx string, actor utils.Principal) (*Result, error) {
	booking, err := s.store.GetBookingByPidx(ctx, pidx)
	if err != nil {
		return nil, err
	}
	if err := loadOwned(booking, actor); err != nil {
		return nil, err
	}

	ev, err := s.gateway.Lookup(ctx, pidx)
	if err != nil {
		logger.WarnLogger.Warnf("Payment lookup for pidx %s failed: %v", pidx, err)
		return nil, err
	}
	ev.Pidx = pidx

	res, err := s.applyByPidx(ctx, ev, true)
	if err != nil {
		return nil, err
	}
	s.afterCommit(res.Booking, res.Outcome, "lookup")
	if err := rejectMismatch(res); err != nil {
		return nil, err
	}
	return res, nil
}

// rejectMismatch turns an amount mismatch into ErrGatewayRejected for callers
// that answer the user directly.
func rejectMismatch(res *Result) error {
	if res.Outcome != OutcomeAmountMismatch {
		return nil
	}
	return fmt.Errorf("payment amount does not match booking %s: %w", res.Booking.ID, utils.ErrGatewayRejected)
}

// applyByPidx runs the transition for ev in one transaction. An unknown pidx
// is not an error.
func (s *Service) applyByPidx(ctx context.Context, ev *payment_models.GatewayEvent, recordFailures bool) (*Result, error) {
	res := &Result{GatewayStatus: ev.Status}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.BookingByPidxForUpdate(ctx, ev.Pidx)
		if errors.Is(err, utils.ErrNotFound) {
			res.Outcome = OutcomeUnknownPidx
			return nil
		}
		if err != nil {
			return err
		}
		res.Booking = booking

		switch {
		case ev.Status == payment_models.GatewayCompleted:
			res.Outcome, err = s.complete(ctx, tx, booking, ev)
			return err

		case ev.Status.IsRefund():
			if booking.PaymentStatus == booking_models.PaymentRefunded {
				res.Outcome = OutcomeRefunded
				return nil
			}
			booking.PaymentStatus = booking_models.PaymentRefunded
			booking.PaymentDetails = ev.Raw
			res.Outcome = OutcomeRefunded
			return tx.UpdateBooking(ctx, booking)

		case recordFailures && ev.Status.IsTerminalFailure():
			if booking.PaymentStatus != booking_models.PaymentPending && booking.PaymentStatus != booking_models.PaymentInitiated {
				res.Outcome = OutcomeIgnored
				return nil
			}
			booking.PaymentStatus = booking_models.PaymentFailed
			booking.PaymentDetails = ev.Raw
			res.Outcome = OutcomeFailed
			return tx.UpdateBooking(ctx, booking)

		case ev.Status == payment_models.GatewayPending || ev.Status == payment_models.GatewayInitiated:
			res.Outcome = OutcomePending
			return nil
		}

		res.Outcome = OutcomeIgnored
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Outcome == OutcomeUnknownPidx {
		logger.WarnLogger.Warnf("No booking matches payment session %s (%s)", ev.Pidx, ev.Status)
	}
	return res, nil
}

// complete is the one payment-completed transition shared by all entry
// points. It must run inside tx with booking locked.
func (s *Service) complete(ctx context.Context, tx repository.Tx, booking *booking_models.Booking, ev *payment_models.GatewayEvent) (Outcome, error) {
	switch booking.PaymentStatus {
	case booking_models.PaymentCompleted:
		return OutcomeAlreadyCompleted, nil
	case booking_models.PaymentRefunded:
		logger.WarnLogger.Warnf("Ignoring completion for already refunded booking %s", booking.ID)
		return OutcomeIgnored, nil
	}

	if expected := booking.AmountInPaisa(); ev.TotalAmount != 0 && ev.TotalAmount != expected {
		detail := fmt.Sprintf("gateway reported %d paisa paid for booking %s which costs %d", ev.TotalAmount, booking.ID, expected)
		logger.ErrorLogger.Errorf("[%s] %s: %s", utils.KindGatewayRejected, utils.ErrGatewayRejected, detail)

		bookingID := booking.ID
		if err := tx.RecordIncident(ctx, incident_models.New(incident_models.KindAmountMismatch, &bookingID, booking.DriverID, detail)); err != nil {
			return "", err
		}
		return OutcomeAmountMismatch, nil
	}

	booking.PaymentStatus = booking_models.PaymentCompleted
	booking.PaymentMethod = booking_models.PaymentMethodGateway
	if ev.TransactionID != "" {
		txn := ev.TransactionID
		booking.TransactionID = &txn
	}
	if len(ev.Raw) > 0 {
		booking.PaymentDetails = ev.Raw
	}

	outcome := OutcomePaymentRecorded
	switch booking.Status {
	case booking_models.StatusPending:
		booking.Status = booking_models.StatusConfirmed
		outcome = OutcomeConfirmed
	case booking_models.StatusCancelled:
		detail := fmt.Sprintf("payment %s completed for cancelled booking %s", ev.TransactionID, booking.ID)
		logger.ErrorLogger.Errorf("[%s] %s: %s", utils.KindPaymentConflict, utils.ErrPaymentConflict, detail)

		bookingID := booking.ID
		if err := tx.RecordIncident(ctx, incident_models.New(incident_models.KindPaymentConflict, &bookingID, booking.DriverID, detail)); err != nil {
			return "", err
		}
		outcome = OutcomeConflict
	}

	if err := tx.UpdateBooking(ctx, booking); err != nil {
		return "", err
	}
	return outcome, nil
}

// afterCommit runs side effects that must only follow a committed change.
func (s *Service) afterCommit(booking *booking_models.Booking, outcome Outcome, source string) {
	switch outcome {
	case OutcomeConfirmed:
		logger.InfoLogger.Infof("Booking %s confirmed by %s payment", booking.ID, source)
		mail.SendAsync(s.mailer, booking)
	case OutcomeConflict:
		metrics.TrackIncident(string(incident_models.KindPaymentConflict))
	case OutcomeAmountMismatch:
		metrics.TrackIncident(string(incident_models.KindAmountMismatch))
	case OutcomeRefunded, OutcomeFailed, OutcomePaymentRecorded:
		logger.InfoLogger.Infof("Booking %s payment is now %s (%s)", booking.ID, booking.PaymentStatus, source)
	}
}

// SweepStale re-runs the lookup for bookings stuck at initiated for longer
// than olderThan, least recently touched first. It returns how many were
// checked.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.store.ListBookings(ctx, repository.BookingFilter{
		PaymentStatus: booking_models.PaymentInitiated,
		UpdatedBefore: s.now().Add(-olderThan),
		Limit:         limit,
		OldestFirst:   true,
	})
	if err != nil {
		return 0, err
	}

	checked := 0
	for _, b := range stale {
		if ctx.Err() != nil {
			return checked, ctx.Err()
		}
		if b.GatewayPidx == nil {
			continue
		}
		checked++

		res, err := s.OnLookup(ctx, *b.GatewayPidx, utils.SystemPrincipal)
		if err != nil {
			metrics.PaymentSweepRuns.WithLabelValues("error").Inc()
			logger.WarnLogger.Warnf("Sweep lookup for booking %s failed: %v", b.ID, err)
			s.touch(ctx, b.ID)
			continue
		}
		metrics.PaymentSweepRuns.WithLabelValues(string(res.Outcome)).Inc()
		if !res.Outcome.settled() {
			s.touch(ctx, b.ID)
		}
	}
	return checked, nil
}

// touch moves a still-initiated booking to the back of the sweep order.
func (s *Service) touch(ctx context.Context, bookingID uuid.UUID) {
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.PaymentStatus != booking_models.PaymentInitiated {
			return nil
		}
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		logger.WarnLogger.Warnf("Failed to touch swept booking %s: %v", bookingID, err)
	}
}
