// Package mailer delivers outbound email: magic sign-in links and the
// messages users send to their clients and companies.
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/resend/resend-go/v2"
)

// Message is a plain-text email to a single recipient
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer sends a message and returns the provider's message id
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ResendMailer sends through the Resend API
type ResendMailer struct {
	client *resend.Client
	from   string
}

// NewResendMailer 创建 Resend 邮件客户端
func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// NewResendMailerWithBaseURL points the client at a different API host
func NewResendMailerWithBaseURL(apiKey, from, baseURL string) (*ResendMailer, error) {
	m := NewResendMailer(apiKey, from)
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid resend base url: %w", err)
	}
	m.client.BaseURL = u
	return m, nil
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) (string, error) {
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return sent.Id, nil
}

// LogMailer prints messages instead of sending them; used in development
// when no Resend key is configured. Sent messages are kept for inspection.
type LogMailer struct {
	mu   sync.Mutex
	sent []Message
}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) (string, error) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	id := fmt.Sprintf("log-%d", len(m.sent))
	m.mu.Unlock()

	fmt.Printf("📧 [%s] to=%s subject=%q\n%s\n", id, msg.To, msg.Subject, msg.Text)
	return id, nil
}

// Sent returns a copy of every message sent so far
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// MagicLinkMessage builds the sign-in email for link
func MagicLinkMessage(to, link string) (Message, error) {
	u, err := url.Parse(link)
	if err != nil {
		return Message{}, fmt.Errorf("invalid sign-in link: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Sign in to %s", u.Host),
		Text:    fmt.Sprintf("Use %s to sign in to DemoCRM", link),
	}, nil
}
