package service

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strings"
)

// MailService delivers magic-link emails through a plain SMTP relay
// (a mailhog-style sidecar in development). Delivery failures surface
// to the issuing request as internal errors.
type MailService struct {
	host      string
	port      int
	from      string
	serverURL string
}

func NewMailService(host string, port int, from string, serverURL string) *MailService {
	return &MailService{
		host:      host,
		port:      port,
		from:      from,
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

func (s *MailService) SendMagicLink(ctx context.Context, email string, token string) error {
	link := fmt.Sprintf("%s/auth?token=%s", s.serverURL, url.QueryEscape(token))

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	msg.WriteString("Subject: Your Magic Link\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "<p>Click <a href=%q>here</a> to log in.</p>\r\n", link)

	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	if err := smtp.SendMail(addr, nil, s.from, []string{email}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send magic link email: %w", err)
	}

	return nil
}
