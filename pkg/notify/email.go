package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailNotifier delivers alerts over SMTP, either implicit TLS or
// STARTTLS depending on UseTLS.
type EmailNotifier struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	To            []string
	UseTLS        bool
	TLSSkipVerify bool
	SubjectPrefix string
	Timeout       time.Duration
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, title, text string) error {
	subject := title
	if e.SubjectPrefix != "" {
		subject = e.SubjectPrefix + " " + title
	}
	msg := buildEmailMessage(e.From, e.To, subject, text)
	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	auth := smtp.PlainAuth("", e.Username, e.Password, e.Host)

	dialer := net.Dialer{Timeout: e.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if e.UseTLS {
		tlsCfg := &tls.Config{
			ServerName:         e.Host,
			InsecureSkipVerify: e.TLSSkipVerify,
		}
		tlsConn := tls.Client(conn, tlsCfg)
		if err := tlsConn.Handshake(); err != nil {
			return err
		}
		c, err := smtp.NewClient(tlsConn, e.Host)
		if err != nil {
			return err
		}
		defer c.Quit()
		if e.Username != "" {
			if err := c.Auth(auth); err != nil {
				return err
			}
		}
		return sendMail(c, e.From, e.To, []byte(msg))
	}

	c, err := smtp.NewClient(conn, e.Host)
	if err != nil {
		return err
	}
	defer c.Quit()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{
			ServerName:         e.Host,
			InsecureSkipVerify: e.TLSSkipVerify,
		}
		if err := c.StartTLS(tlsCfg); err != nil {
			return err
		}
	}
	if e.Username != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	return sendMail(c, e.From, e.To, []byte(msg))
}

func buildEmailMessage(from string, to []string, subject, body string) string {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>%s</title>
  <style>
    body { font-family: -apple-system,BlinkMacSystemFont,Segoe UI,Roboto,Helvetica,Arial,sans-serif; margin: 20px; color: #333; }
    .card { border-radius: 10px; border: 1px solid #f5c6cb; background-color: #fdecea; padding: 16px 20px; margin-bottom: 20px; }
    .card h2 { margin: 0 0 8px 0; }
    .content { background: #f8f9fa; border-radius: 6px; padding: 12px 16px; white-space: pre-wrap; font-family: Menlo,Consolas,monospace; }
  </style>
</head>
<body>
  <div class="card">
    <h2>%s</h2>
  </div>
  <div class="content">%s</div>
</body>
</html>
`, html.EscapeString(subject), html.EscapeString(subject), textToHTML(body))

	headers := []string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody
}

func textToHTML(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\n':
			b.WriteString("<br>")
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func sendMail(c *smtp.Client, from string, to []string, msg []byte) error {
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}
