package payment_controller

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/services/payment_reconciliation_service"
	"github.com/joy095/carrental/utils"
)

// maxWebhookBody caps how much of a webhook delivery is read.
const maxWebhookBody = 1 << 20

type PaymentController struct {
	Payments        *payment_reconciliation_service.Service
	FrontendBaseURL string
}

func NewPaymentController(payments *payment_reconciliation_service.Service, frontendBaseURL string) *PaymentController {
	return &PaymentController{Payments: payments, FrontendBaseURL: strings.TrimRight(frontendBaseURL, "/")}
}

type initiateRequest struct {
	BookingID uuid.UUID `json:"bookingId" binding:"required"`
	ReturnURL string    `json:"returnUrl"`
}

func (pc *PaymentController) Initiate(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "bookingId is required"})
		return
	}

	session, booking, err := pc.Payments.Initiate(c.Request.Context(), req.BookingID, principal, req.ReturnURL)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"pidx":        session.Pidx,
		"payment_url": session.PaymentURL,
		"expires_at":  session.ExpiresAt,
		"booking":     booking,
	})
}

type verifyRequest struct {
	BookingID uuid.UUID `json:"bookingId" binding:"required"`
	Token     string    `json:"token" binding:"required"`
}

func (pc *PaymentController) Verify(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "bookingId and token are required"})
		return
	}

	res, err := pc.Payments.OnVerifySync(c.Request.Context(), req.BookingID, principal, req.Token)
	if err != nil {
		if utils.IsRetryable(err) {
			c.Header("Retry-After", "30")
		}
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "outcome": res.Outcome, "booking": res.Booking})
}

type lookupRequest struct {
	Pidx string `json:"pidx" binding:"required"`
}

func (pc *PaymentController) Lookup(c *gin.Context) {
	principal, err := utils.GetPrincipal(c)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": utils.KindValidation, "message": "pidx is required"})
		return
	}

	res, err := pc.Payments.OnLookup(c.Request.Context(), req.Pidx, principal)
	if err != nil {
		if utils.IsRetryable(err) {
			c.Header("Retry-After", "30")
		}
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  res.GatewayStatus,
		"outcome": res.Outcome,
		"booking": res.Booking,
	})
}

// Webhook acknowledges every delivery with 200 so the gateway stops
// retrying; only a forged signature is refused.
func (pc *PaymentController) Webhook(c *gin.Context) {
	gateway := c.Param("gateway")

	bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to read %s webhook body: %v", gateway, err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	signature := c.GetHeader(pc.Payments.SignatureHeader(gateway))
	res, err := pc.Payments.OnWebhook(c.Request.Context(), gateway, signature, bodyBytes)
	if errors.Is(err, utils.ErrUnauthorized) {
		utils.RespondError(c, err)
		return
	}
	if err != nil {
		logger.WarnLogger.Warnf("%s webhook acknowledged with error: %v", gateway, err)
	}

	resp := gin.H{"received": true}
	if res != nil {
		resp["outcome"] = res.Outcome
	}
	c.JSON(http.StatusOK, resp)
}

// PaymentReturn forwards the gateway's browser redirect to the frontend
// confirmation page with the query string intact.
func (pc *PaymentController) PaymentReturn(c *gin.Context) {
	target := pc.FrontendBaseURL + "/user/payment-confirmation"
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}
	c.Redirect(http.StatusFound, target)
}
