package utils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *captureMailer) Deliver(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func TestMailDispatcherPrefixesSubject(t *testing.T) {
	m := &captureMailer{}
	d := NewMailDispatcher(m, "[Bloghub]")

	d.Send(Message{To: "a@example.com", Subject: "Confirm Your Account", Text: "hi"})
	d.Wait()

	require.Len(t, m.sent, 1)
	assert.Equal(t, "[Bloghub] Confirm Your Account", m.sent[0].Subject)
}

func TestMailDispatcherLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := Logger
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })

	d := NewMailDispatcher(&captureMailer{err: errors.New("relay down")}, "")
	d.Send(Message{To: "a@example.com", Subject: "x"})
	d.Wait()

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "mail delivery failed", logs.All()[0].Message)
}

func TestMailDispatcherSkipsEmptyRecipient(t *testing.T) {
	m := &captureMailer{}
	d := NewMailDispatcher(m, "")
	d.Send(Message{Subject: "nobody"})
	d.Wait()
	assert.Empty(t, m.sent)

	var nilDispatcher *MailDispatcher
	nilDispatcher.Send(Message{To: "a@example.com"})
	nilDispatcher.Wait()
}

func TestBuildMessageHeaders(t *testing.T) {
	raw := string(buildMessage("Admin <admin@example.com>", Message{To: "u@example.com", Subject: "Hello", Text: "line1\nline2"}))
	assert.Contains(t, raw, "From: Admin <admin@example.com>\r\n")
	assert.Contains(t, raw, "To: u@example.com\r\n")
	assert.Contains(t, raw, "Subject: Hello\r\n")
	assert.True(t, strings.HasSuffix(raw, "line1\r\nline2"))
}

func TestErrorLogsAreMailed(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	prev := Logger
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })

	m := &captureMailer{}
	d := NewMailDispatcher(m, "")
	MailErrorsTo(d, "admin@example.com")

	Logger.Info("fine")
	Logger.Error("boom")
	d.Wait()

	require.Len(t, m.sent, 1)
	assert.Equal(t, "admin@example.com", m.sent[0].To)
	assert.Contains(t, m.sent[0].Text, "boom")
}
