package clients

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/joy095/carrental/metrics"
	"github.com/joy095/carrental/models/payment_models"
	"github.com/joy095/carrental/utils"
)

// PaymentGateway is the port the reconciliation service talks to. Errors
// wrap utils.ErrGatewayUnavailable (transport failure, timeout, 5xx) or
// utils.ErrGatewayRejected (the gateway answered and said no).
type PaymentGateway interface {
	Name() string
	Initiate(ctx context.Context, req payment_models.InitiateRequest) (*payment_models.InitiateResponse, error)
	Verify(ctx context.Context, token string, amountPaisa int64) (*payment_models.VerifyResult, error)
	Lookup(ctx context.Context, pidx string) (*payment_models.GatewayEvent, error)

	// SignatureHeader names the request header carrying the webhook signature.
	SignatureHeader() string
	// VerifyWebhookSignature reports whether body was signed by the gateway.
	// Gateways without a configured secret accept every body.
	VerifyWebhookSignature(body []byte, signature string) bool
	ParseWebhook(body []byte) (*payment_models.GatewayEvent, error)
}

// track records a gateway call in the metrics and passes err through.
func track(gateway, operation string, start time.Time, err error) error {
	outcome := "ok"
	switch {
	case errors.Is(err, utils.ErrGatewayUnavailable):
		outcome = "unavailable"
	case errors.Is(err, utils.ErrGatewayRejected):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	}
	metrics.TrackGatewayRequest(gateway, operation, outcome, time.Since(start))
	return err
}

// hmacMatches compares signature against HMAC-SHA256(body, secret), accepting
// hex or base64 encodings.
func hmacMatches(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)

	if hmac.Equal([]byte(signature), []byte(hex.EncodeToString(sum))) {
		return true
	}
	return hmac.Equal([]byte(signature), []byte(base64.StdEncoding.EncodeToString(sum)))
}

// SignWebhook produces the hex signature a gateway would send for body.
func SignWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
