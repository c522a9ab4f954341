package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/models/payment_models"
	"github.com/joy095/carrental/utils"
)

const khaltiName = "khalti"

// KhaltiClient implements PaymentGateway against the Khalti ePayment API.
type KhaltiClient struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

// NewKhaltiClient returns a client for baseURL, e.g.
// "https://dev.khalti.com/api/v2" (sandbox) or "https://khalti.com/api/v2".
func NewKhaltiClient(baseURL, secretKey, webhookSecret string, timeout time.Duration) *KhaltiClient {
	return &KhaltiClient{
		SecretKey:     secretKey,
		WebhookSecret: webhookSecret,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTPClient:    &http.Client{Timeout: timeout},
	}
}

func (k *KhaltiClient) Name() string { return khaltiName }

type khaltiCustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type khaltiProductDetail struct {
	Identity   string `json:"identity"`
	Name       string `json:"name"`
	TotalPrice int64  `json:"total_price"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

type khaltiInitiateRequest struct {
	ReturnURL         string                `json:"return_url"`
	WebsiteURL        string                `json:"website_url"`
	Amount            int64                 `json:"amount"`
	PurchaseOrderID   string                `json:"purchase_order_id"`
	PurchaseOrderName string                `json:"purchase_order_name"`
	CustomerInfo      khaltiCustomerInfo    `json:"customer_info"`
	ProductDetails    []khaltiProductDetail `json:"product_details"`
}

type khaltiLookupResponse struct {
	Pidx          string  `json:"pidx"`
	TotalAmount   int64   `json:"total_amount"`
	Status        string  `json:"status"`
	TransactionID *string `json:"transaction_id"`
	Fee           int64   `json:"fee"`
	Refunded      bool    `json:"refunded"`
}

// makeRequest posts payload and decodes the JSON answer into out. It returns
// the raw body so callers can keep it as payment details.
func (k *KhaltiClient) makeRequest(ctx context.Context, path string, payload, out any) (json.RawMessage, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal khalti request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+k.SecretKey)

	resp, err := k.HTTPClient.Do(req)
	if err != nil {
		logger.ErrorLogger.Errorf("Khalti request %s failed: %v", path, err)
		return nil, fmt.Errorf("%w: %v", utils.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", utils.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		logger.ErrorLogger.Errorf("Khalti %s returned %d: %s", path, resp.StatusCode, body)
		return body, fmt.Errorf("%w: khalti returned %d", utils.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		logger.WarnLogger.Warnf("Khalti %s rejected request with %d: %s", path, resp.StatusCode, body)
		return body, fmt.Errorf("%w: %s", utils.ErrGatewayRejected, khaltiDetail(body, resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return body, fmt.Errorf("%w: failed to decode khalti response: %v", utils.ErrGatewayUnavailable, err)
		}
	}
	return body, nil
}

// khaltiDetail extracts the "detail" message Khalti puts on 4xx answers.
func khaltiDetail(body []byte, status int) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("khalti returned %d", status)
}

func (k *KhaltiClient) Initiate(ctx context.Context, in payment_models.InitiateRequest) (res *payment_models.InitiateResponse, err error) {
	defer func(start time.Time) { err = track(khaltiName, "initiate", start, err) }(time.Now())

	payload := khaltiInitiateRequest{
		ReturnURL:         in.ReturnURL,
		WebsiteURL:        in.WebsiteURL,
		Amount:            in.AmountPaisa,
		PurchaseOrderID:   in.PurchaseOrderID,
		PurchaseOrderName: in.PurchaseOrderName,
		CustomerInfo: khaltiCustomerInfo{
			Name:  in.CustomerName,
			Email: in.CustomerEmail,
			Phone: in.CustomerPhone,
		},
		ProductDetails: []khaltiProductDetail{{
			Identity:   in.PurchaseOrderID,
			Name:       in.PurchaseOrderName,
			TotalPrice: in.AmountPaisa,
			Quantity:   1,
			UnitPrice:  in.AmountPaisa,
		}},
	}

	var out payment_models.InitiateResponse
	raw, err := k.makeRequest(ctx, "/epayment/initiate/", payload, &out)
	if err != nil {
		return nil, err
	}
	if out.Pidx == "" {
		return nil, fmt.Errorf("%w: khalti did not return a pidx", utils.ErrGatewayRejected)
	}
	out.Raw = raw
	return &out, nil
}

func (k *KhaltiClient) Verify(ctx context.Context, token string, amountPaisa int64) (res *payment_models.VerifyResult, err error) {
	defer func(start time.Time) { err = track(khaltiName, "verify", start, err) }(time.Now())

	var out struct {
		Idx string `json:"idx"`
	}
	raw, err := k.makeRequest(ctx, "/payment/verify/", map[string]any{
		"token":  token,
		"amount": amountPaisa,
	}, &out)
	if err != nil {
		return nil, err
	}

	return &payment_models.VerifyResult{
		Success:       out.Idx != "",
		TransactionID: out.Idx,
		Raw:           raw,
	}, nil
}

func (k *KhaltiClient) Lookup(ctx context.Context, pidx string) (ev *payment_models.GatewayEvent, err error) {
	defer func(start time.Time) { err = track(khaltiName, "lookup", start, err) }(time.Now())

	var out khaltiLookupResponse
	raw, err := k.makeRequest(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx}, &out)
	if err != nil {
		return nil, err
	}

	ev = &payment_models.GatewayEvent{
		Pidx:        out.Pidx,
		Status:      payment_models.GatewayStatus(out.Status),
		TotalAmount: out.TotalAmount,
		Raw:         raw,
	}
	if ev.Pidx == "" {
		ev.Pidx = pidx
	}
	if out.TransactionID != nil {
		ev.TransactionID = *out.TransactionID
	}
	return ev, nil
}

func (k *KhaltiClient) SignatureHeader() string { return "X-Webhook-Signature" }

func (k *KhaltiClient) VerifyWebhookSignature(body []byte, signature string) bool {
	if k.WebhookSecret == "" {
		return true
	}
	return hmacMatches(body, signature, k.WebhookSecret)
}

func (k *KhaltiClient) ParseWebhook(body []byte) (*payment_models.GatewayEvent, error) {
	var payload struct {
		Pidx          string  `json:"pidx"`
		Status        string  `json:"status"`
		TransactionID *string `json:"transaction_id"`
		TotalAmount   int64   `json:"total_amount"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid khalti webhook payload: %w", err)
	}
	if payload.Pidx == "" {
		return nil, errors.New("khalti webhook without pidx")
	}

	ev := &payment_models.GatewayEvent{
		Pidx:        payload.Pidx,
		Status:      payment_models.GatewayStatus(payload.Status),
		TotalAmount: payload.TotalAmount,
		Raw:         append(json.RawMessage(nil), body...),
	}
	if payload.TransactionID != nil {
		ev.TransactionID = *payload.TransactionID
	}
	return ev, nil
}
