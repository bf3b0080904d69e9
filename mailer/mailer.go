package mailer

import (
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Mailer is the delivery boundary: one resolved email out, one delivery id
// back. A transport or API rejection comes back as an error.
type Mailer interface {
	Send(to, subject, htmlBody string) (string, error)
}

// SMTPMailer delivers through a single transactional SMTP account.
type SMTPMailer struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

func NewSMTPMailer(host string, port int, username, password, fromName, fromEmail string) *SMTPMailer {
	return &SMTPMailer{
		Host:      host,
		Port:      port,
		Username:  username,
		Password:  password,
		FromName:  fromName,
		FromEmail: fromEmail,
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody string) (string, error) {
	deliveryID := uuid.NewString()

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", deliveryID, m.Host))
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	dialer.TLSConfig = &tls.Config{ServerName: m.Host}

	if err := dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("smtp delivery to %s failed: %w", to, err)
	}
	return deliveryID, nil
}
