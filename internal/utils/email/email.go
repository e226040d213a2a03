package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/taimuradam/sugar-app/internal/config"
)

// Sender handles sending emails via SMTP
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

// SendRateSyncAlert notifies the operator that the periodic KIBOR sync
// has been failing repeatedly.
func (s *Sender) SendRateSyncAlert(to string, failures int, lastErr error) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "KIBOR Rate Sync Failing"

	body := fmt.Sprintf(
		"The scheduled KIBOR rate sync has failed %d times in a row.\n"+
			"Last failure at %s:\n\n%v\n\n"+
			"Ledger queries will fall back to placeholder rates until rates are synced.\n",
		failures, time.Now().Format("2006-01-02 15:04:05"), lastErr,
	)
	body += "\nBest regards,\nSugar App"
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
