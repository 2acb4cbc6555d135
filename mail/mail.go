package mail

import (
	"context"
	"io"
)

// Sender delivers formatted messages over one session.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	io.Closer
}

// Address represents an email address.
type Address struct {
	Name    string // "Bot"
	Address string // "bot@example.com"
}

// Request is one recipient's content, as supplied by the caller.
// HTML is either literal markup or a path to a file holding it.
type Request struct {
	To      string
	Subject string
	Text    string
	HTML    string
	ReplyTo string // optional
}

// Email is a fully resolved message ready to be built.
type Email struct {
	From    Address
	To      string
	ReplyTo string
	Subject string

	Text string // text/plain part
	HTML string // text/html part
}

// Message is the wire form of one email with its envelope.
type Message struct {
	From string // envelope sender
	To   string // envelope recipient
	Raw  []byte // RFC 5322 document, CRLF line endings
}
