package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medassist/triage/internal/domain/risk"
)

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Notifier formats alerts and dispatches them to the on-call recipients.
// Delivery is best effort: failures are logged and never propagated into the
// alert path.
type Notifier struct {
	email      EmailSender
	sms        SMSSender
	recipients []string // email addresses
	phones     []string // SMS numbers, CRITICAL only
	logger     zerolog.Logger
}

// NewNotifier creates a notifier. Either sender may be nil to disable that
// channel.
func NewNotifier(email EmailSender, sms SMSSender, recipients, phones []string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		email:      email,
		sms:        sms,
		recipients: recipients,
		phones:     phones,
		logger:     logger,
	}
}

// Notify fans an alert out. SMS is reserved for CRITICAL alerts; email goes
// out for everything WARNING and above.
func (n *Notifier) Notify(ctx context.Context, alert Alert) {
	subject := fmt.Sprintf("[%s] Alert for patient %s", alert.Level, alert.PatientID)
	body := fmt.Sprintf("%s\n\n%s\n\n%s", alert.Urgency, alert.Message, risk.Disclaimer)

	if n.email != nil && (alert.Level == LevelCritical || alert.Level == LevelWarning) {
		for _, to := range n.recipients {
			if err := n.email.SendEmail(ctx, to, subject, body); err != nil {
				n.logger.Warn().Err(err).Str("to", to).Str("alert_id", alert.ID).Msg("alert email failed")
			}
		}
	}
	if n.sms != nil && alert.Level == LevelCritical {
		text := fmt.Sprintf("%s patient %s: %s. %s", alert.Level, alert.PatientID, alert.Message, risk.Disclaimer)
		for _, to := range n.phones {
			if err := n.sms.SendSMS(ctx, to, text); err != nil {
				n.logger.Warn().Err(err).Str("to", to).Str("alert_id", alert.ID).Msg("alert sms failed")
			}
		}
	}
}

// LogEmailSender writes would-be emails to the structured log. Used until a
// real delivery gateway is wired in.
type LogEmailSender struct {
	Logger zerolog.Logger
}

func (s *LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("alert email")
	return nil
}

// LogSMSSender writes would-be SMS messages to the structured log.
type LogSMSSender struct {
	Logger zerolog.Logger
}

func (s *LogSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("to", to).Str("body", body).Msg("alert sms")
	return nil
}

// ---------------------------------------------------------------------------
// Mock senders (test doubles)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
