package mail

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"time"

	"github.com/pkg/errors"
)

const charset = "utf-8"

// Format resolves req against the sender identity and builds the message.
// When htmlFromFile is set req.HTML names a file whose full contents become
// the HTML part; otherwise req.HTML is used as is.
func Format(htmlFromFile bool, from Address, req Request) (*Message, error) {
	html := req.HTML
	if htmlFromFile {
		b, err := os.ReadFile(req.HTML)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read html file %s", req.HTML)
		}
		html = string(b)
	}

	return Build(Email{
		From:    from,
		To:      req.To,
		ReplyTo: req.ReplyTo,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    html,
	})
}

// Build renders e as a multipart/alternative document with exactly two
// parts: text/plain first, text/html last. Clients prefer the last part.
// Addresses are not validated.
func Build(e Email) (*Message, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := writePart(mw, "text/plain", e.Text); err != nil {
		return nil, errors.Wrap(err, "failed to write text part")
	}
	if err := writePart(mw, "text/html", e.HTML); err != nil {
		return nil, errors.Wrap(err, "failed to write html part")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart body")
	}

	var msg bytes.Buffer
	writeHeader(&msg, "From", formatAddress(e.From))
	writeHeader(&msg, "To", e.To)
	writeHeader(&msg, "Subject", mime.QEncoding.Encode(charset, e.Subject))
	if e.ReplyTo != "" {
		writeHeader(&msg, "Reply-To", e.ReplyTo)
	}
	writeHeader(&msg, "Date", time.Now().Format(time.RFC1123Z))
	writeHeader(&msg, "MIME-Version", "1.0")
	writeHeader(&msg, "Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{
		"boundary": mw.Boundary(),
	}))
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return &Message{
		From: e.From.Address,
		To:   e.To,
		Raw:  msg.Bytes(),
	}, nil
}

func writePart(mw *multipart.Writer, mediaType, content string) error {
	w, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(mediaType, map[string]string{"charset": charset})},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}

	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

// formatAddress renders "Name <address>", encoding non-ASCII names.
func formatAddress(addr Address) string {
	if addr.Name == "" {
		return addr.Address
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode(charset, addr.Name), addr.Address)
}
