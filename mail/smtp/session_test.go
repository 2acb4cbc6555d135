package smtp

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pure-golang/mailbatch/mail"
	"github.com/pure-golang/mailbatch/mail/smtp/smtptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainOptions() *Options {
	return &Options{LocalName: "localhost"}
}

func configFor(s *smtptest.Server) Config {
	return Config{
		Host:     s.Host,
		Port:     s.Port,
		Username: "bot@example.com",
		Password: "x",
	}
}

func testMessage(t *testing.T, to string) *mail.Message {
	t.Helper()

	msg, err := mail.Build(mail.Email{
		From:    mail.Address{Name: "Bot", Address: "bot@example.com"},
		To:      to,
		Subject: "Hi",
		Text:    "plain body",
		HTML:    "<b>hi</b>",
	})
	require.NoError(t, err)
	return msg
}

func TestDial_PlainAndAuth(t *testing.T) {
	server := smtptest.NewServer(t)

	s, err := Dial(context.Background(), configFor(server), plainOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"bot@example.com"}, server.Logins())
	assert.Equal(t, []string{"EHLO", "AUTH", "QUIT"}, server.Commands())
}

func TestDial_STARTTLS(t *testing.T) {
	server := smtptest.NewServer(t, smtptest.WithSTARTTLS())

	opts := &Options{TLS: true, Insecure: true, LocalName: "localhost"}
	s, err := Dial(context.Background(), configFor(server), opts)
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), testMessage(t, "a@example.com")))
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"EHLO", "STARTTLS", "EHLO", "AUTH", "MAIL", "RCPT", "DATA", "QUIT"}, server.Commands())
	require.Len(t, server.Messages(), 1)
}

func TestDial_STARTTLSRequiredButMissing(t *testing.T) {
	server := smtptest.NewServer(t)

	_, err := Dial(context.Background(), configFor(server), &Options{TLS: true, LocalName: "localhost"})

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StepStartTLS, connErr.Step)
	assert.Equal(t, "bot@example.com", connErr.Account)
	assert.NotContains(t, server.Commands(), "AUTH")
}

func TestDial_UntrustedCertificate(t *testing.T) {
	server := smtptest.NewServer(t, smtptest.WithSTARTTLS())

	_, err := Dial(context.Background(), configFor(server), nil)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StepStartTLS, connErr.Step)
}

func TestDial_AuthFailure(t *testing.T) {
	server := smtptest.NewServer(t, smtptest.WithAuthFailure())

	_, err := Dial(context.Background(), configFor(server), plainOptions())

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StepAuth, connErr.Step)
	assert.Contains(t, err.Error(), "bot@example.com")
}

func TestDial_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	before := testutil.ToFloat64(sessionsTotal.WithLabelValues(statusError))

	_, err = Dial(context.Background(), Config{Host: "127.0.0.1", Port: port}, plainOptions())

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StepConnect, connErr.Step)
	assert.Equal(t, before+1, testutil.ToFloat64(sessionsTotal.WithLabelValues(statusError)))
}

func TestDial_CanceledContext(t *testing.T) {
	server := smtptest.NewServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, configFor(server), plainOptions())

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StepConnect, connErr.Step)
	assert.Empty(t, server.Commands())
}

func TestDial_WithoutUsernameSkipsAuth(t *testing.T) {
	server := smtptest.NewServer(t)

	s, err := Dial(context.Background(), Config{Host: server.Host, Port: server.Port}, plainOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.NotContains(t, server.Commands(), "AUTH")
}

func TestSession_SendManyOverOneConnection(t *testing.T) {
	server := smtptest.NewServer(t)
	s, err := Dial(context.Background(), configFor(server), plainOptions())
	require.NoError(t, err)

	before := testutil.ToFloat64(messagesTotal.WithLabelValues(statusOK))

	for _, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		require.NoError(t, s.Send(context.Background(), testMessage(t, to)))
	}
	require.NoError(t, s.Close())

	got := server.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a@example.com"}, got[0].To)
	assert.Equal(t, []string{"b@example.com"}, got[1].To)
	assert.Equal(t, []string{"c@example.com"}, got[2].To)
	assert.Equal(t, "bot@example.com", got[0].From)
	assert.Contains(t, got[0].Data, "Subject: Hi\r\n")
	assert.Equal(t, before+3, testutil.ToFloat64(messagesTotal.WithLabelValues(statusOK)))

	ehlos := 0
	for _, c := range server.Commands() {
		if c == "EHLO" {
			ehlos++
		}
	}
	assert.Equal(t, 1, ehlos, "one session for every message")
}

func TestSession_SendDotStuffing(t *testing.T) {
	server := smtptest.NewServer(t)
	s, err := Dial(context.Background(), configFor(server), plainOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	msg := &mail.Message{From: "bot@example.com", To: "a@example.com", Raw: []byte("Subject: x\r\n\r\n.leading dot\r\n")}
	require.NoError(t, s.Send(context.Background(), msg))

	require.Len(t, server.Messages(), 1)
	assert.True(t, strings.HasSuffix(server.Messages()[0].Data, ".leading dot\r\n"))
}

func TestSession_SendRejectedRecipient(t *testing.T) {
	server := smtptest.NewServer(t, smtptest.WithRejectedRecipient("ghost@example.com"))
	s, err := Dial(context.Background(), configFor(server), plainOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.Send(context.Background(), testMessage(t, "ghost@example.com"))

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "ghost@example.com", sendErr.To)
	assert.Contains(t, err.Error(), "550")
	assert.Empty(t, server.Messages())
}

func TestSession_SendAfterClose(t *testing.T) {
	server := smtptest.NewServer(t)
	s, err := Dial(context.Background(), configFor(server), plainOptions())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Send(context.Background(), testMessage(t, "a@example.com"))

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, err, errSessionClosed)
}

func TestSession_SendCanceledContext(t *testing.T) {
	server := smtptest.NewServer(t)
	s, err := Dial(context.Background(), configFor(server), plainOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Send(ctx, testMessage(t, "a@example.com"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, server.Messages())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	server := smtptest.NewServer(t)
	s, err := Dial(context.Background(), configFor(server), plainOptions())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestErrors_Messages(t *testing.T) {
	connErr := &ConnectError{Step: StepAuth, Account: "bot@example.com", Err: assert.AnError}
	sendErr := &SendError{To: "a@example.com", Err: assert.AnError}

	assert.Equal(t, "smtp auth failed for bot@example.com: "+assert.AnError.Error(), connErr.Error())
	assert.Equal(t, "smtp send to a@example.com failed: "+assert.AnError.Error(), sendErr.Error())
	assert.ErrorIs(t, connErr, assert.AnError)
	assert.ErrorIs(t, sendErr, assert.AnError)
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()

	assert.True(t, o.TLS)
	assert.False(t, o.Insecure)
	assert.Equal(t, "localhost", o.LocalName)
}
