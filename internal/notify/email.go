package notify

import (
	"time"

	"github.com/rs/zerolog"
	gomail "gopkg.in/mail.v2"
)

// EmailConfig holds SMTP settings for run reports.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	ToEmail    string
	Enabled    bool
}

// EmailSender delivers plain-text run reports over SMTP.
type EmailSender struct {
	cfg EmailConfig
	log zerolog.Logger
}

// NewEmailSender creates a sender with the given SMTP configuration.
func NewEmailSender(cfg EmailConfig, log zerolog.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, log: log}
}

// Send delivers one email. A disabled sender is a silent no-op.
func (s *EmailSender) Send(subject, body string) error {
	if !s.cfg.Enabled {
		return nil
	}

	message := gomail.NewMessage()
	message.SetHeader("From", s.cfg.FromEmail)
	message.SetHeader("To", s.cfg.ToEmail)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", body)

	dialer := gomail.NewDialer(s.cfg.SMTPServer, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second

	if err := dialer.DialAndSend(message); err != nil {
		s.log.Error().Str("to", s.cfg.ToEmail).Str("subject", subject).Err(err).Msg("failed to send email")
		return err
	}

	s.log.Info().Str("subject", subject).Msg("email sent")
	return nil
}
