package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/telecare/consult-gate/internal/config"
)

//go:embed templates/*
var templateFS embed.FS

const maxRetries = 3

// Mailer is the transport used to deliver a rendered message
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// EmailService defines the interface for sending emails
type EmailService interface {
	SendInvitation(ctx context.Context, to, inviteURL string, expiresAt time.Time) error
}

// NewMailer creates a mailer from config. Provider "ses" uses AWS SES; anything else is a no-op.
func NewMailer(cfg config.MailConfig) (Mailer, error) {
	switch cfg.Provider {
	case "ses":
		if cfg.FromAddress == "" {
			return nil, fmt.Errorf("MAIL_FROM is required for the ses provider")
		}
		awsCfg := aws.Config{
			Region: cfg.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			),
		}
		return &sesMailer{
			client:      ses.NewFromConfig(awsCfg),
			fromAddress: cfg.FromAddress,
			fromName:    cfg.FromName,
		}, nil
	case "noop", "":
		return &noopMailer{}, nil
	default:
		slog.Warn("Unknown mail provider, using noop", "provider", cfg.Provider)
		return &noopMailer{}, nil
	}
}

type sesMailer struct {
	client      *ses.Client
	fromAddress string
	fromName    string
}

func (s *sesMailer) Send(ctx context.Context, to, subject, html, text string) error {
	source := s.fromAddress
	if s.fromName != "" {
		source = fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}
	input := &ses.SendEmailInput{
		Source: aws.String(source),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
			},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := s.client.SendEmail(ctx, input)
		if err == nil {
			slog.Info("Email sent via SES", "message_id", aws.ToString(result.MessageId), "attempt", attempt)
			return nil
		}
		lastErr = err
		slog.Error("Failed to send email", "attempt", attempt, "max_retries", maxRetries, "error", err)

		// Wait before retrying (exponential backoff: 1s, 2s)
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * time.Second):
			}
		}
	}
	return fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, lastErr)
}

type noopMailer struct{}

func (n *noopMailer) Send(_ context.Context, _, subject, _, _ string) error {
	slog.Warn("Mail provider not configured, skipping email send", "subject", subject)
	return nil
}

type emailServiceImpl struct {
	mailer Mailer
	html   *htmltemplate.Template
	text   *texttemplate.Template
}

// NewEmailService creates a new email service instance
func NewEmailService(mailer Mailer) (EmailService, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &emailServiceImpl{mailer: mailer, html: html, text: text}, nil
}

type invitationEmailData struct {
	InviteURL string
	ExpiresAt string
}

// SendInvitation renders and delivers the invite link
func (s *emailServiceImpl) SendInvitation(ctx context.Context, to, inviteURL string, expiresAt time.Time) error {
	data := invitationEmailData{
		InviteURL: inviteURL,
		ExpiresAt: expiresAt.UTC().Format("2 Jan 2006 15:04 MST"),
	}

	var html, text bytes.Buffer
	if err := s.html.ExecuteTemplate(&html, "invitation.html", data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	if err := s.text.ExecuteTemplate(&text, "invitation.txt", data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return s.mailer.Send(ctx, to, "Your video consultation invitation", html.String(), text.String())
}
