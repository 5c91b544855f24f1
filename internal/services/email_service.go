package services

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type EmailService interface {
	Send(to, subject, htmlBody string) error
}

type emailService struct {
	dialer  *gomail.Dialer
	from    string
	replyTo string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail, replyTo string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer:  dialer,
		from:    fromEmail,
		replyTo: replyTo,
	}
}

func (s *emailService) Send(to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, "AI Task Manager")
	m.SetHeader("To", to)
	if s.replyTo != "" {
		m.SetHeader("Reply-To", s.replyTo)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send %q email: %w", subject, err)
	}
	return nil
}
