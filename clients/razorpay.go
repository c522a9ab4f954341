package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/models/payment_models"
	"github.com/joy095/carrental/utils"
	"github.com/razorpay/razorpay-go"
	rzputils "github.com/razorpay/razorpay-go/utils"
)

const razorpayName = "razorpay"

// RazorpayClientWrapper is the slice of the Razorpay SDK the gateway uses.
// It exists so tests can stand in for the SDK.
type RazorpayClientWrapper interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	FetchOrder(orderID string) (map[string]interface{}, error)
	FetchOrderPayments(orderID string) (map[string]interface{}, error)
	FetchPayment(paymentID string) (map[string]interface{}, error)
}

// razorpaySDK implements RazorpayClientWrapper using the actual Razorpay SDK.
type razorpaySDK struct {
	client *razorpay.Client
}

func (r *razorpaySDK) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return r.client.Order.Create(data, nil)
}

func (r *razorpaySDK) FetchOrder(orderID string) (map[string]interface{}, error) {
	return r.client.Order.Fetch(orderID, nil, nil)
}

func (r *razorpaySDK) FetchOrderPayments(orderID string) (map[string]interface{}, error) {
	return r.client.Order.Payments(orderID, nil, nil)
}

func (r *razorpaySDK) FetchPayment(paymentID string) (map[string]interface{}, error) {
	return r.client.Payment.Fetch(paymentID, nil, nil)
}

// RazorpayClient implements PaymentGateway on Razorpay orders. The order id
// plays the role of the session pidx and the payment id is the transaction id.
type RazorpayClient struct {
	API           RazorpayClientWrapper
	WebhookSecret string
	Currency      string
}

// NewRazorpayClient initializes the underlying SDK client with the key pair.
func NewRazorpayClient(keyID, keySecret, webhookSecret, currency string) *RazorpayClient {
	return &RazorpayClient{
		API:           &razorpaySDK{client: razorpay.NewClient(keyID, keySecret)},
		WebhookSecret: webhookSecret,
		Currency:      currency,
	}
}

func (r *RazorpayClient) Name() string { return razorpayName }

// classify maps SDK errors onto the gateway error kinds. Transport failures
// are retryable; anything the API answered is a rejection.
func classify(op string, err error) error {
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		logger.ErrorLogger.Errorf("Razorpay %s unreachable: %v", op, err)
		return fmt.Errorf("%w: %v", utils.ErrGatewayUnavailable, err)
	}
	logger.WarnLogger.Warnf("Razorpay %s rejected: %v", op, err)
	return fmt.Errorf("%w: %v", utils.ErrGatewayRejected, err)
}

func (r *RazorpayClient) Initiate(_ context.Context, in payment_models.InitiateRequest) (res *payment_models.InitiateResponse, err error) {
	defer func(start time.Time) { err = track(razorpayName, "initiate", start, err) }(time.Now())

	currency := in.Currency
	if currency == "" {
		currency = r.Currency
	}

	order, err := r.API.CreateOrder(map[string]interface{}{
		"amount":   in.AmountPaisa,
		"currency": currency,
		"receipt":  in.PurchaseOrderID,
		"notes": map[string]interface{}{
			"booking_id": in.PurchaseOrderID,
			"name":       in.PurchaseOrderName,
			"email":      in.CustomerEmail,
		},
	})
	if err != nil {
		return nil, classify("create order", err)
	}

	orderID, _ := order["id"].(string)
	if orderID == "" {
		return nil, fmt.Errorf("%w: razorpay did not return an order id", utils.ErrGatewayRejected)
	}
	raw, _ := json.Marshal(order)
	return &payment_models.InitiateResponse{Pidx: orderID, Raw: raw}, nil
}

// Verify treats token as a Razorpay payment id. Only a captured payment of
// the expected amount counts as success.
func (r *RazorpayClient) Verify(_ context.Context, token string, amountPaisa int64) (res *payment_models.VerifyResult, err error) {
	defer func(start time.Time) { err = track(razorpayName, "verify", start, err) }(time.Now())

	payment, err := r.API.FetchPayment(token)
	if err != nil {
		return nil, classify("fetch payment", err)
	}

	raw, _ := json.Marshal(payment)
	status, _ := payment["status"].(string)
	amount := int64(number(payment["amount"]))

	return &payment_models.VerifyResult{
		Success:       status == "captured" && (amountPaisa == 0 || amount == amountPaisa),
		TransactionID: token,
		Raw:           raw,
	}, nil
}

func (r *RazorpayClient) Lookup(_ context.Context, pidx string) (ev *payment_models.GatewayEvent, err error) {
	defer func(start time.Time) { err = track(razorpayName, "lookup", start, err) }(time.Now())

	order, err := r.API.FetchOrder(pidx)
	if err != nil {
		return nil, classify("fetch order", err)
	}
	raw, _ := json.Marshal(order)

	ev = &payment_models.GatewayEvent{
		Pidx:        pidx,
		TotalAmount: int64(number(order["amount"])),
		Raw:         raw,
	}

	status, _ := order["status"].(string)
	if status != "paid" {
		ev.Status = payment_models.GatewayPending
		if status == "created" {
			ev.Status = payment_models.GatewayInitiated
		}
		return ev, nil
	}

	payments, err := r.API.FetchOrderPayments(pidx)
	if err != nil {
		return nil, classify("fetch order payments", err)
	}
	ev.Status = payment_models.GatewayCompleted
	items, _ := payments["items"].([]interface{})
	for _, item := range items {
		p, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		pStatus, _ := p["status"].(string)
		if pStatus != "captured" && pStatus != "refunded" {
			continue
		}
		ev.TransactionID, _ = p["id"].(string)
		ev.Status = paymentStatus(p)
		break
	}
	return ev, nil
}

// paymentStatus maps a Razorpay payment entity onto the gateway vocabulary.
func paymentStatus(p map[string]interface{}) payment_models.GatewayStatus {
	status, _ := p["status"].(string)
	refunded := number(p["amount_refunded"])
	switch {
	case status == "refunded" || (refunded > 0 && refunded >= number(p["amount"])):
		return payment_models.GatewayRefunded
	case refunded > 0:
		return payment_models.GatewayPartiallyRefunded
	case status == "captured":
		return payment_models.GatewayCompleted
	case status == "failed":
		return payment_models.GatewayFailed
	}
	return payment_models.GatewayPending
}

func (r *RazorpayClient) SignatureHeader() string { return "X-Razorpay-Signature" }

func (r *RazorpayClient) VerifyWebhookSignature(body []byte, signature string) bool {
	if r.WebhookSecret == "" {
		return true
	}
	return rzputils.VerifyWebhookSignature(string(body), signature, r.WebhookSecret)
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity map[string]interface{} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity map[string]interface{} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func (r *RazorpayClient) ParseWebhook(body []byte) (*payment_models.GatewayEvent, error) {
	var hook razorpayWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("invalid razorpay webhook payload: %w", err)
	}

	payment := hook.Payload.Payment.Entity
	orderID, _ := payment["order_id"].(string)
	if orderID == "" {
		orderID, _ = hook.Payload.Order.Entity["id"].(string)
	}
	if orderID == "" {
		return nil, errors.New("razorpay webhook without order id")
	}

	ev := &payment_models.GatewayEvent{
		Pidx:        orderID,
		TotalAmount: int64(number(payment["amount"])),
		Raw:         append(json.RawMessage(nil), body...),
	}
	ev.TransactionID, _ = payment["id"].(string)

	switch hook.Event {
	case "payment.captured", "order.paid":
		ev.Status = payment_models.GatewayCompleted
	case "refund.processed", "payment.refunded":
		ev.Status = paymentStatus(payment)
		if !ev.Status.IsRefund() {
			ev.Status = payment_models.GatewayRefunded
		}
	case "payment.failed":
		ev.Status = payment_models.GatewayFailed
	default:
		ev.Status = payment_models.GatewayStatus(hook.Event)
	}
	return ev, nil
}

// number reads a JSON number decoded into interface{}.
func number(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
