package email

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telecare/consult-gate/internal/config"
)

type recordingMailer struct {
	to, subject, html, text string
}

func (m *recordingMailer) Send(_ context.Context, to, subject, html, text string) error {
	m.to, m.subject, m.html, m.text = to, subject, html, text
	return nil
}

func TestEmailService_SendInvitation(t *testing.T) {
	mailer := &recordingMailer{}
	svc, err := NewEmailService(mailer)
	require.NoError(t, err)

	expires := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err = svc.SendInvitation(context.Background(), "patient@example.com", "https://care.example.com/invite/a.b.c", expires)
	require.NoError(t, err)

	assert.Equal(t, "patient@example.com", mailer.to)
	assert.Contains(t, mailer.html, "https://care.example.com/invite/a.b.c")
	assert.Contains(t, mailer.text, "https://care.example.com/invite/a.b.c")
	assert.Contains(t, mailer.text, "1 Mar 2026")
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(config.MailConfig{Provider: "noop"})
	require.NoError(t, err)
	assert.IsType(t, &noopMailer{}, m)

	_, err = NewMailer(config.MailConfig{Provider: "ses"})
	assert.Error(t, err)

	m, err = NewMailer(config.MailConfig{Provider: "ses", FromAddress: "noreply@example.com", Region: "eu-west-1"})
	require.NoError(t, err)
	assert.IsType(t, &sesMailer{}, m)
}
