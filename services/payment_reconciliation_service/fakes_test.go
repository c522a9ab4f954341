package payment_reconciliation_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/joy095/carrental/clients"
	"github.com/joy095/carrental/models/booking_models"
	"github.com/joy095/carrental/models/payment_models"
	"github.com/joy095/carrental/utils"
)

const fakeSecret = "whsec_test"

// fakeGateway answers from canned state and counts calls.
type fakeGateway struct {
	mu sync.Mutex

	initiatePidx string
	lookup       map[string]*payment_models.GatewayEvent
	lookupErr    error
	verify       *payment_models.VerifyResult
	verifyErr    error
	unsigned     bool

	lookupCalls  int
	verifyCalls  int
	verifyAmount int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		initiatePidx: "pidx-fake-1",
		lookup:       make(map[string]*payment_models.GatewayEvent),
	}
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) Initiate(_ context.Context, in payment_models.InitiateRequest) (*payment_models.InitiateResponse, error) {
	if in.AmountPaisa <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", utils.ErrGatewayRejected)
	}
	return &payment_models.InitiateResponse{
		Pidx:       f.initiatePidx,
		PaymentURL: "https://pay.example/" + f.initiatePidx,
		Raw:        json.RawMessage(`{"pidx":"` + f.initiatePidx + `"}`),
	}, nil
}

func (f *fakeGateway) Verify(_ context.Context, token string, amountPaisa int64) (*payment_models.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	f.verifyAmount = amountPaisa
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verify, nil
}

func (f *fakeGateway) Lookup(_ context.Context, pidx string) (*payment_models.GatewayEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	ev, ok := f.lookup[pidx]
	if !ok {
		return nil, fmt.Errorf("%w: unknown pidx", utils.ErrGatewayRejected)
	}
	c := *ev
	return &c, nil
}

func (f *fakeGateway) setLookup(pidx string, status payment_models.GatewayStatus, txn string) {
	f.setLookupAmount(pidx, status, txn, 0)
}

// setLookupAmount also reports amountPaisa as the session total; zero means
// the gateway does not report one.
func (f *fakeGateway) setLookupAmount(pidx string, status payment_models.GatewayStatus, txn string, amountPaisa int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookup[pidx] = &payment_models.GatewayEvent{
		Pidx:          pidx,
		Status:        status,
		TransactionID: txn,
		TotalAmount:   amountPaisa,
		Raw:           json.RawMessage(fmt.Sprintf(`{"pidx":%q,"status":%q}`, pidx, status)),
	}
}

func (f *fakeGateway) lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupCalls
}

func (f *fakeGateway) SignatureHeader() string { return "X-Fake-Signature" }

// VerifyWebhookSignature accepts everything when unsigned is set, like a
// gateway client without a webhook secret.
func (f *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if f.unsigned {
		return true
	}
	return signature == clients.SignWebhook(body, fakeSecret)
}

func (f *fakeGateway) ParseWebhook(body []byte) (*payment_models.GatewayEvent, error) {
	var ev payment_models.GatewayEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	if ev.Pidx == "" {
		return nil, errors.New("missing pidx")
	}
	ev.Raw = append(json.RawMessage(nil), body...)
	return &ev, nil
}

// recordingMailer remembers which bookings were confirmed.
type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) SendBookingConfirmation(_ context.Context, b *booking_models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, b.ID.String())
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
