// Package notify defines the outbound notification contract and two simple
// dispatchers: one that logs and one that records messages in memory.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Kind identifies the message template to send.
type Kind string

const (
	KindEmailConfirmation Kind = "email_confirmation"
	KindPasswordReset     Kind = "password_reset"
	KindEmailChange       Kind = "email_change"
)

// Message is one outbound notification. Token is a bearer credential and
// must only be delivered to Recipient.
type Message struct {
	Kind        Kind
	Recipient   string
	Token       string
	DisplayName string
}

// Notifier delivers messages. Send failures are reported but never undo the
// change that triggered them.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, msg Message) error

func (f Func) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Discard drops every message.
type Discard struct{}

func (Discard) Send(context.Context, Message) error { return nil }

// LogNotifier records that a message would be sent. The token itself is not
// logged.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(ctx context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification dispatched",
		slog.String("kind", string(msg.Kind)),
		slog.String("recipient", msg.Recipient),
	)
	return nil
}

// Outbox keeps every message in memory. It is safe for concurrent use.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	fail     error
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox { return &Outbox{} }

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.messages = append(o.messages, msg)
	return nil
}

// FailWith makes subsequent sends return err. A nil err restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.fail = err
	o.mu.Unlock()
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// Last returns the most recent message of kind sent to recipient.
func (o *Outbox) Last(kind Kind, recipient string) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		m := o.messages[i]
		if m.Kind == kind && m.Recipient == recipient {
			return m, true
		}
	}
	return Message{}, false
}
