// Package mail delivers the daily queue export by email over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"

	"github.com/matchrelay/matchrelay/internal/config"
	"github.com/matchrelay/matchrelay/internal/queue"
)

// Mailer implements queue.Mailer over SMTP.
type Mailer struct {
	cfg    config.ExportConfig
	logger *slog.Logger
}

// NewMailer creates an SMTP mailer from the export configuration.
func NewMailer(log *slog.Logger, cfg config.ExportConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		logger: log.With(slog.String("component", "mail")),
	}
}

// SendExport emails the report as a .jsonl attachment.
func (m *Mailer) SendExport(ctx context.Context, report queue.Report) error {
	if !m.cfg.MailConfigured() {
		return fmt.Errorf("mail delivery not configured (smtp_host, from, to)")
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(m.cfg.To); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(fmt.Sprintf("%s %s (UTC)", config.DefaultExportSubject, report.Day))
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"Attached is the JSONL export for %s UTC.\nSessions: %d\n\nFormat per line: {start, end, dur}\\t<end_ts>\n",
		report.Day, report.Count))
	if err := msg.AttachReader(report.Day+".jsonl", bytes.NewReader([]byte(report.Lines))); err != nil {
		return fmt.Errorf("mail attachment: %w", err)
	}

	opts := []gomail.Option{gomail.WithPort(m.cfg.SMTPPort)}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password))
	}
	client, err := gomail.NewClient(m.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send export: %w", err)
	}
	m.logger.Info("export sent",
		slog.String("day", report.Day), slog.Int("sessions", report.Count))
	return nil
}
