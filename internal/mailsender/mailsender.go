package mailsender

import (
	"supervision_auth/internal/lib/verification"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (m *Mailer) Send(to, purpose, link string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", m.Username)
	msg.SetHeader("Subject", subjectFor(purpose))

	msg.SetBody("text/plain", link)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	return dialer.DialAndSend(msg)
}

func subjectFor(purpose string) string {
	switch purpose {
	case verification.PurposePasswordReset:
		return "Сброс пароля"
	case verification.PurposeEmailVerification:
		return "Подтверждение почты"
	default:
		return "Уведомление платформы"
	}
}
