package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP. It implements service.Notifier.
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendInstallmentReminder sends a reminder for an upcoming or overdue
// installment. Identity lives outside this system, so the recipient address
// comes from configuration; without one the reminder is logged and dropped.
func (s *Sender) SendInstallmentReminder(ctx context.Context, userID string, installment *models.Installment, liability *models.Liability, overdue bool) error {
	to := s.cfg.NotifyEmail
	if to == "" {
		s.logger.Debugf("No notify address configured, skipping reminder for user %s", userID)
		return nil
	}

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	if overdue {
		e.Subject = "Overdue Installment Notification"
	} else {
		e.Subject = "Upcoming Installment Reminder"
	}

	// Format email body
	body := fmt.Sprintf("Liability: %s\n\n", liability.Description)
	if overdue {
		body += fmt.Sprintf(
			"Installment %d of %s was due on %s and is now overdue.\n"+
				"Please make the payment as soon as possible.\n",
			installment.Sequence, installment.Amount.StringFixed(2),
			installment.DueDate.Format("2006-01-02"),
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that installment %d of %s is due on %s.\n"+
				"Please ensure sufficient funds are available in your account.\n",
			installment.Sequence, installment.Amount.StringFixed(2),
			installment.DueDate.Format("2006-01-02"),
		)
	}
	body += "\nBest regards,\nFinLink"
	e.Text = []byte(body)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
