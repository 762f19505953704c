package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captured struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestSMTP(t *testing.T) (*SMTPProvider, *captured) {
	t.Helper()
	p, err := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "billing@example.com"})
	require.NoError(t, err)
	c := &captured{}
	p.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		c.addr, c.from, c.to, c.msg = addr, from, to, string(msg)
		return nil
	}
	return p, c
}

func TestSendTemplateInvoiceIssued(t *testing.T) {
	p, c := newTestSMTP(t)

	err := p.SendTemplate(context.Background(), []string{"ravi@example.com"}, TemplateInvoiceIssued, map[string]any{
		"customer_name":  "Ravi",
		"invoice_number": "INV-202404-000001",
		"total":          "INR 17.69",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", c.addr)
	assert.Equal(t, []string{"ravi@example.com"}, c.to)
	assert.Contains(t, c.msg, "Subject: Your invoice is ready\r\n")
	assert.Contains(t, c.msg, "INV-202404-000001")
	assert.Contains(t, c.msg, "INR 17.69")
}

func TestSendTemplateSubjectOverrideAndOverdue(t *testing.T) {
	p, c := newTestSMTP(t)

	err := p.SendTemplate(context.Background(), []string{"a@example.com"}, TemplatePaymentReminder, map[string]any{
		"subject":        "Overdue: INV-1",
		"invoice_number": "INV-1",
		"overdue":        true,
	})
	require.NoError(t, err)
	assert.Contains(t, c.msg, "Subject: Overdue: INV-1\r\n")
	assert.True(t, strings.Contains(c.msg, "is now overdue"))
}

func TestSendErrors(t *testing.T) {
	p, _ := newTestSMTP(t)
	require.Error(t, p.Send(context.Background(), nil, "s", "b"))
	require.Error(t, p.SendTemplate(context.Background(), []string{"a@example.com"}, "missing", nil))

	p.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	require.Error(t, p.Send(context.Background(), []string{"a@example.com"}, "s", "b"))
}

func TestNoOpProvider(t *testing.T) {
	p := NewNoOp(zap.NewNop())
	assert.NoError(t, p.Send(context.Background(), []string{"a@example.com"}, "s", "b"))
	assert.NoError(t, p.SendTemplate(context.Background(), nil, TemplateInvoiceIssued, nil))
}
