package payment_models

import (
	"encoding/json"
	"time"
)

// GatewayStatus is the payment status vocabulary reported by the gateway.
// Razorpay states are normalised onto the same values.
type GatewayStatus string

const (
	GatewayCompleted         GatewayStatus = "Completed"
	GatewayPending           GatewayStatus = "Pending"
	GatewayInitiated         GatewayStatus = "Initiated"
	GatewayRefunded          GatewayStatus = "Refunded"
	GatewayPartiallyRefunded GatewayStatus = "Partially refunded"
	GatewayExpired           GatewayStatus = "Expired"
	GatewayUserCanceled      GatewayStatus = "User canceled"
	GatewayFailed            GatewayStatus = "Failed"
)

func (s GatewayStatus) IsRefund() bool {
	return s == GatewayRefunded || s == GatewayPartiallyRefunded
}

// IsTerminalFailure reports statuses after which the session can never be paid.
func (s GatewayStatus) IsTerminalFailure() bool {
	return s == GatewayExpired || s == GatewayUserCanceled || s == GatewayFailed
}

// GatewayEvent is one observation of a payment session, whether it came from
// a webhook delivery or a lookup call.
type GatewayEvent struct {
	Pidx          string          `json:"pidx"`
	Status        GatewayStatus   `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	TotalAmount   int64           `json:"total_amount,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// VerifyResult is the answer to a direct verification call.
type VerifyResult struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id"`
	Raw           json.RawMessage `json:"-"`
}

type InitiateRequest struct {
	ReturnURL         string
	WebsiteURL        string
	AmountPaisa       int64
	Currency          string
	PurchaseOrderID   string
	PurchaseOrderName string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
}

type InitiateResponse struct {
	Pidx       string          `json:"pidx"`
	PaymentURL string          `json:"payment_url,omitempty"`
	ExpiresAt  string          `json:"expires_at,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// WebhookEvent is the audit record written for every delivery.
type WebhookEvent struct {
	ID         int64           `json:"id"`
	Gateway    string          `json:"gateway"`
	Pidx       string          `json:"pidx"`
	Status     string          `json:"status"`
	RawPayload json.RawMessage `json:"raw_payload"`
	ReceivedAt time.Time       `json:"received_at"`
}
