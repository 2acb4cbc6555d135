package noop

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/mail"
)

var _ mail.Sender = (*Sender)(nil)

// Sender accepts messages without sending them anywhere. It backs dry runs
// and keeps what it was given for inspection.
type Sender struct {
	mx     sync.Mutex
	sent   []*mail.Message
	closed bool
}

// NewSender creates a new no-op Sender.
func NewSender() *Sender {
	return &Sender{}
}

// Send records msg.
func (n *Sender) Send(ctx context.Context, msg *mail.Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "send canceled")
	}

	n.mx.Lock()
	defer n.mx.Unlock()

	if n.closed {
		return errors.New("sender is closed")
	}
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns the recorded messages in order.
func (n *Sender) Sent() []*mail.Message {
	n.mx.Lock()
	defer n.mx.Unlock()

	return append([]*mail.Message(nil), n.sent...)
}

// Closed reports whether Close was called.
func (n *Sender) Closed() bool {
	n.mx.Lock()
	defer n.mx.Unlock()

	return n.closed
}

// Close marks the sender closed.
func (n *Sender) Close() error {
	n.mx.Lock()
	defer n.mx.Unlock()

	n.closed = true
	return nil
}
