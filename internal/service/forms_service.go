package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/responseable/onboarding/internal/models"
)

// EmailSender delivers one email message.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogEmailSender logs messages instead of delivering them. Used when SMTP is
// not configured.
type LogEmailSender struct{}

// Send logs the message envelope at info level.
func (LogEmailSender) Send(_ context.Context, to, subject, _ string) error {
	slog.Info("Email delivery skipped, SMTP not configured", "to", to, "subject", subject)
	return nil
}

// SMTPEmailSender delivers mail over an implicit-TLS SMTP connection.
type SMTPEmailSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Send dials the SMTP server over TLS, authenticates, and submits the
// message as HTML mail.
func (s *SMTPEmailSender) Send(_ context.Context, to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.Host})
	if err != nil {
		return fmt.Errorf("failed to dial smtp server: %w", err)
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer client.Close()

	if s.Username != "" {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(s.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}

	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write smtp message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish smtp message: %w", err)
	}

	return client.Quit()
}

// FormsService builds prefilled form links and emails them to drivers.
type FormsService struct {
	formID    string
	sender    EmailSender
	rateLimit *rate.Limiter
}

// NewFormsService creates a forms service. ratePerSecond bounds outbound
// email throughput.
func NewFormsService(formID string, sender EmailSender, ratePerSecond int) *FormsService {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &FormsService{
		formID:    formID,
		sender:    sender,
		rateLimit: rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
	}
}

// PrefilledFormLink builds a Typeform URL carrying the prefill values in the
// URL fragment. Keys are emitted in sorted order for stable links.
func (s *FormsService) PrefilledFormLink(formID string, prefill map[string]string) string {
	link := "https://form.typeform.com/to/" + formID

	keys := make([]string, 0, len(prefill))
	for k, v := range prefill {
		if strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return link
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(prefill[k]))
	}

	return link + "#" + strings.Join(pairs, "&")
}

// QRCodeURL returns an image URL encoding the given link as a QR code.
func (s *FormsService) QRCodeURL(link string) string {
	return "https://api.qrserver.com/v1/create-qr-code/?size=220x220&data=" + url.QueryEscape(link)
}

// SendAdditionalDetailsForm emails the driver a link to the additional-details
// form, prefilled with what we already know about them.
func (s *FormsService) SendAdditionalDetailsForm(ctx context.Context, driver *models.Driver) error {
	prefill := map[string]string{
		"first_name":   driver.FirstName,
		"last_name":    driver.LastName,
		"email":        driver.Email,
		"phone_number": driver.Phone,
		"monday_id":    driver.ID,
	}

	link := s.PrefilledFormLink(s.formID, prefill)
	body := s.invitationBody(driver, link)

	if err := s.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if err := s.sender.Send(ctx, driver.Email, "Driver Application Follow-up", body); err != nil {
		return fmt.Errorf("failed to send form invitation: %w", err)
	}

	slog.Info("Sent additional details form", "driver_id", driver.ID)

	return nil
}

func (s *FormsService) invitationBody(driver *models.Driver, link string) string {
	name := strings.TrimSpace(driver.FirstName)
	if name == "" {
		name = "there"
	}

	safeName := html.EscapeString(name)
	safeLink := html.EscapeString(link)
	qr := html.EscapeString(s.QRCodeURL(link))

	return fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>Thanks for your application. To move forward we need a few more details from you.</p>
<p><a href="%s">Complete the additional details form</a></p>
<p>Or scan this code on your phone:</p>
<p><img src="%s" alt="Form QR code" width="220" height="220"></p>
<p>The Onboarding Team</p>
</body></html>`, safeName, safeLink, qr)
}
