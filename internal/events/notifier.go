package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"appointease/pkg/kafka"
	"appointease/pkg/logger"
	"appointease/pkg/model"
)

const webhookTimeout = 10 * time.Second

// WebhookPayload is POSTed to the configured webhook for every event.
type WebhookPayload struct {
	Event       model.EventType    `json:"event"`
	Timestamp   time.Time          `json:"timestamp"`
	Appointment *model.Appointment `json:"appointment,omitempty"`
	Slot        *model.Slot        `json:"slot,omitempty"`
	Suggested   []model.Slot       `json:"suggested_slots,omitempty"`
}

// Email is a rendered plain-text message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	Log *logger.Logger
}

func (m LogMailer) Send(_ context.Context, email Email) error {
	m.Log.Info("Email", "to", email.To, "subject", email.Subject, "body", email.Body)
	return nil
}

// Notifier turns consumed events into notifications: emails go to the
// Mailer and every event except verification codes is forwarded to the
// webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	mailer     Mailer
	log        *logger.Logger
}

func NewNotifier(webhookURL string, client *http.Client, log *logger.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     client,
		mailer:     LogMailer{Log: log},
		log:        log,
	}
}

// WithMailer replaces the default LogMailer.
func (n *Notifier) WithMailer(m Mailer) *Notifier {
	n.mailer = m
	return n
}

// Handle is a kafka.MessageHandler. Undecodable messages are permanent
// failures; webhook outages are transient so the consumer retries them.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	var event model.Event
	if err := msg.DecodeValue(&event); err != nil {
		return kafka.NewPermanentError("decode event", err)
	}

	var err error
	switch event.Type {
	case model.EventAppointmentCreated:
		err = n.sendConfirmation(ctx, event)
	case model.EventAppointmentCancelled:
		if event.Appointment != nil {
			n.log.Info("Cancellation notice",
				"to", event.Appointment.Customer.Email,
				"strong_id", event.Appointment.StrongID,
			)
		}
	case model.EventOtpIssued:
		// the code only ever travels by email
		return n.sendVerificationCode(ctx, event)
	}
	if err != nil {
		return err
	}

	if n.webhookURL == "" {
		return nil
	}
	return n.postWebhook(ctx, event)
}

func (n *Notifier) sendConfirmation(ctx context.Context, event model.Event) error {
	appt := event.Appointment
	if appt == nil {
		n.log.Warn("Created event without appointment", "event_type", event.Type)
		return nil
	}
	err := n.mailer.Send(ctx, Email{
		To:      appt.Customer.Email,
		Subject: fmt.Sprintf("Appointment confirmed: %s", appt.StrongID),
		Body:    RenderConfirmation(appt),
	})
	if err != nil {
		return kafka.NewTransientError("send confirmation", err)
	}
	return nil
}

func (n *Notifier) sendVerificationCode(ctx context.Context, event model.Event) error {
	if event.Email == "" || event.Code == "" {
		return kafka.NewPermanentError("send verification code", fmt.Errorf("otp event without email or code"))
	}
	err := n.mailer.Send(ctx, Email{
		To:      event.Email,
		Subject: "Your verification code",
		Body:    RenderVerificationCode(event.Code, event.ExpiresAt),
	})
	if err != nil {
		return kafka.NewTransientError("send verification code", err)
	}
	n.log.Info("Verification code sent", "to", event.Email)
	return nil
}

// RenderVerificationCode is the plain-text body carrying a one-time code.
func RenderVerificationCode(code string, expiresAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your verification code is %s.\n", code)
	if !expiresAt.IsZero() {
		fmt.Fprintf(&b, "It expires at %s.\n", expiresAt.UTC().Format(time.RFC1123))
	}
	b.WriteString("If you did not request it, ignore this email.\n")
	return b.String()
}

// RenderConfirmation is the plain-text confirmation email body.
func RenderConfirmation(appt *model.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", appt.Customer.Name)
	fmt.Fprintf(&b, "Your appointment %s is confirmed.\n", appt.StrongID)
	fmt.Fprintf(&b, "Date: %s\nTime: %s\n", appt.Date, appt.Time)
	fmt.Fprintf(&b, "Staff member: #%d\nService: #%d\n\n", appt.EmployeeID, appt.ServiceID)
	b.WriteString("Keep this reference to manage or cancel your booking.\n")
	return b.String()
}

func (n *Notifier) postWebhook(ctx context.Context, event model.Event) error {
	body, err := json.Marshal(WebhookPayload{
		Event:       event.Type,
		Timestamp:   event.OccurredAt,
		Appointment: event.Appointment,
		Slot:        event.Slot,
		Suggested:   event.SuggestedSlots,
	})
	if err != nil {
		return kafka.NewPermanentError("encode webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return kafka.NewPermanentError("build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Appointease-Event", string(event.Type))

	resp, err := n.client.Do(req)
	if err != nil {
		return kafka.NewTransientError("post webhook", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return kafka.NewTransientError("post webhook", fmt.Errorf("webhook returned status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return kafka.NewPermanentError("post webhook", fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
	n.log.Debug("Webhook delivered", "event_type", event.Type, "status", resp.StatusCode)
	return nil
}
