package mailer

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

// Mailer отправляет служебные письма через SMTP. Если SMTP_HOST не задан
// (локальная разработка), письма только логируются.
type Mailer struct {
	Host     string
	Port     string
	From     string
	Password string
	AppURL   string
}

func FromEnv() *Mailer {
	return &Mailer{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     getenvDefault("SMTP_PORT", "587"),
		From:     os.Getenv("SMTP_FROM"),
		Password: os.Getenv("SMTP_PASSWORD"),
		AppURL:   getenvDefault("APP_URL", "http://localhost:8080"),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (m *Mailer) send(to []string, subject, htmlBody string) error {
	if m.Host == "" {
		log.Printf("SMTP not configured, skipping email to %v (subject: %s)", to, subject)
		return nil
	}

	msg := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n"
	msg += fmt.Sprintf("From: Speak Master <%s>\r\n", m.From)
	msg += fmt.Sprintf("To: %s\r\n", strings.Join(to, ","))
	msg += fmt.Sprintf("Subject: %s\r\n\r\n", subject)
	msg += htmlBody

	auth := smtp.PlainAuth("", m.From, m.Password, m.Host)
	if err := smtp.SendMail(m.Host+":"+m.Port, auth, m.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email to %v: %w", to, err)
	}
	return nil
}

// SendPasswordReset отправляет письмо со ссылкой на сброс пароля.
func (m *Mailer) SendPasswordReset(email, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", m.AppURL, token)
	body := wrapTemplate("Password Reset",
		fmt.Sprintf(`<p>We received a request to reset your password.</p>
			<p><a class="btn" href="%s">Reset password</a></p>
			<p>If you did not request this, you can safely ignore this email.
			The link expires in one hour.</p>`, link))
	return m.send([]string{email}, "Reset your Speak Master password", body)
}

func wrapTemplate(title, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; }
			.header { background-color: #4CAF50; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; }
			.content { padding: 40px 30px; color: #333333; line-height: 1.6; }
			.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; }
			.btn { display: inline-block; padding: 12px 24px; background-color: #4CAF50; color: #FFFFFF; text-decoration: none; border-radius: 4px; font-weight: bold; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header"><h1>SPEAK MASTER</h1></div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">You are receiving this email because of your Speak Master account.</div>
		</div>
	</body>
	</html>
	`, title, bodyContent)
}
