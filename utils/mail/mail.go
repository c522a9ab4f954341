package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/joy095/carrental/config"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/models/booking_models"
	gomail "gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const bookingConfirmationTemplate = "booking_confirmation.html"

// Mailer sends the transactional emails of the booking flow.
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, b *booking_models.Booking) error
}

type confirmationData struct {
	BookingID      string
	StartDate      string
	EndDate        string
	Location       string
	TotalAmount    float64
	PaymentMethod  string
	PaymentStatus  string
	NeedsDriver    bool
	DriverAssigned bool
	Year           int
}

func newConfirmationData(b *booking_models.Booking) confirmationData {
	location := b.Address
	if b.HasSeparateLocations {
		location = fmt.Sprintf("%s to %s", b.PickupAddress, b.DropoffAddress)
	}
	return confirmationData{
		BookingID:      b.ID.String(),
		StartDate:      b.StartDate.Format("02 Jan 2006"),
		EndDate:        b.EndDate.Format("02 Jan 2006"),
		Location:       location,
		TotalAmount:    b.TotalAmount,
		PaymentMethod:  string(b.PaymentMethod),
		PaymentStatus:  string(b.PaymentStatus),
		NeedsDriver:    b.NeedsDriver,
		DriverAssigned: b.DriverAssigned,
		Year:           time.Now().Year(),
	}
}

// RenderBookingConfirmation returns the HTML body of the confirmation email.
func RenderBookingConfirmation(b *booking_models.Booking) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, bookingConfirmationTemplate, newConfirmationData(b)); err != nil {
		logger.ErrorLogger.Errorf("Failed to execute email template %s: %v", bookingConfirmationTemplate, err)
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return body.String(), nil
}

// SMTPMailer delivers through an SMTP relay with gomail.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewFromEnv builds an SMTPMailer from SMTP_* variables. When SMTP_HOST is
// unset it returns a LogMailer so local runs do not need a relay.
func NewFromEnv() Mailer {
	host := config.GetEnv("SMTP_HOST", "")
	if host == "" {
		logger.WarnLogger.Warn("SMTP_HOST not set, confirmation emails will only be logged")
		return LogMailer{}
	}

	port, err := strconv.Atoi(config.GetEnv("SMTP_PORT", "587"))
	if err != nil {
		logger.ErrorLogger.Errorf("Invalid SMTP port: %v, using 587", err)
		port = 587
	}

	return &SMTPMailer{
		Host:     host,
		Port:     port,
		Username: config.GetEnv("SMTP_USERNAME", ""),
		Password: config.GetEnv("SMTP_PASSWORD", ""),
		From:     config.GetEnv("FROM_EMAIL", "no-reply@localhost"),
	}
}

func (m *SMTPMailer) SendBookingConfirmation(_ context.Context, b *booking_models.Booking) error {
	body, err := RenderBookingConfirmation(b)
	if err != nil {
		return err
	}
	return m.send(b.Email, "Booking Confirmation", body)
}

func (m *SMTPMailer) send(toEmail, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	dialer.TLSConfig = &tls.Config{ServerName: m.Host}

	logger.InfoLogger.Infof("Attempting to connect to SMTP server: %s:%d", m.Host, m.Port)
	if err := dialer.DialAndSend(msg); err != nil {
		logger.ErrorLogger.Errorf("Failed to send email to %s: %v", toEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoLogger.Infof("Successfully sent email to %s", toEmail)
	return nil
}

// LogMailer renders the message and logs it instead of sending it.
type LogMailer struct{}

func (LogMailer) SendBookingConfirmation(_ context.Context, b *booking_models.Booking) error {
	if _, err := RenderBookingConfirmation(b); err != nil {
		return err
	}
	logger.InfoLogger.Infof("Booking confirmation for %s would be sent to %s", b.ID, b.Email)
	return nil
}

// SendAsync fires the confirmation in the background; failures are logged only.
func SendAsync(m Mailer, b *booking_models.Booking) {
	if m == nil || b == nil {
		return
	}
	snapshot := b.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.SendBookingConfirmation(ctx, snapshot); err != nil {
			logger.ErrorLogger.Errorf("Confirmation email for booking %s failed: %v", snapshot.ID, err)
		}
	}()
}
