// Package smtptest provides an in-process SMTP server for tests.
//
// It speaks enough ESMTP for net/smtp: EHLO, STARTTLS with a generated
// self-signed certificate, AUTH PLAIN, MAIL, RCPT, DATA, RSET, NOOP, QUIT.
package smtptest

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Received is one message accepted by the server.
type Received struct {
	From string
	To   []string
	Data string
}

// Option configures a Server.
type Option func(*Server)

// WithSTARTTLS advertises STARTTLS and serves a self-signed certificate.
func WithSTARTTLS() Option {
	return func(s *Server) {
		s.starttls = true
	}
}

// WithAuthFailure rejects every AUTH attempt.
func WithAuthFailure() Option {
	return func(s *Server) {
		s.authFail = true
	}
}

// WithRejectedRecipient answers RCPT TO for addr with a permanent failure.
func WithRejectedRecipient(addr string) Option {
	return func(s *Server) {
		s.rejected[strings.ToLower(addr)] = true
	}
}

// Server is a minimal SMTP server listening on 127.0.0.1.
type Server struct {
	Host string
	Port int

	listener net.Listener
	cert     tls.Certificate
	starttls bool
	authFail bool
	rejected map[string]bool

	mx       sync.Mutex
	messages []Received
	commands []string
	logins   []string
}

// NewServer starts a server on a random port. It is closed on test cleanup.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("smtptest: failed to listen: %v", err)
	}

	addr := listener.Addr().(*net.TCPAddr)
	s := &Server{
		Host:     "127.0.0.1",
		Port:     addr.Port,
		listener: listener,
		rejected: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.starttls {
		cert, err := generateCert()
		if err != nil {
			_ = listener.Close()
			t.Fatalf("smtptest: failed to generate certificate: %v", err)
		}
		s.cert = cert
	}

	go s.serve()
	t.Cleanup(s.Close)

	return s
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Close stops accepting connections.
func (s *Server) Close() {
	_ = s.listener.Close()
}

// Messages returns the accepted messages in arrival order.
func (s *Server) Messages() []Received {
	s.mx.Lock()
	defer s.mx.Unlock()

	return append([]Received(nil), s.messages...)
}

// Commands returns the verbs received so far, upper-cased, in order.
func (s *Server) Commands() []string {
	s.mx.Lock()
	defer s.mx.Unlock()

	return append([]string(nil), s.commands...)
}

// Logins returns the usernames of successful AUTH PLAIN exchanges.
func (s *Server) Logins() []string {
	s.mx.Lock()
	defer s.mx.Unlock()

	return append([]string(nil), s.logins...)
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		go s.handle(conn)
	}
}

func (s *Server) record(verb string) {
	s.mx.Lock()
	s.commands = append(s.commands, verb)
	s.mx.Unlock()
}

func (s *Server) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	reply := func(lines ...string) {
		for _, l := range lines {
			_, _ = writer.WriteString(l + "\r\n")
		}
		_ = writer.Flush()
	}

	var (
		secure bool
		from   string
		to     []string
	)

	reply("220 localhost ESMTP mailbatch test server")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(line)
		if i := strings.IndexAny(verb, " :"); i > 0 {
			verb = verb[:i]
		}
		s.record(verb)

		switch verb {
		case "EHLO":
			ext := []string{"250-localhost"}
			if s.starttls && !secure {
				ext = append(ext, "250-STARTTLS")
			}
			ext = append(ext, "250-AUTH PLAIN", "250 SIZE 10240000")
			reply(ext...)
		case "HELO":
			reply("250 localhost")
		case "STARTTLS":
			if !s.starttls || secure {
				reply("454 TLS not available")
				continue
			}
			reply("220 Ready to start TLS")
			tlsConn := tls.Server(conn, &tls.Config{
				Certificates: []tls.Certificate{s.cert},
				MinVersion:   tls.VersionTLS12,
			})
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			reader = bufio.NewReader(tlsConn)
			writer = bufio.NewWriter(tlsConn)
			secure = true
		case "AUTH":
			if s.authFail {
				reply("535 5.7.8 Authentication credentials invalid")
				continue
			}
			s.mx.Lock()
			s.logins = append(s.logins, plainUser(line))
			s.mx.Unlock()
			reply("235 2.7.0 Authentication successful")
		case "MAIL":
			from = envelopeAddr(line)
			to = nil
			reply("250 OK")
		case "RCPT":
			addr := envelopeAddr(line)
			if s.rejected[strings.ToLower(addr)] {
				reply("550 5.1.1 No such user " + addr)
				continue
			}
			to = append(to, addr)
			reply("250 OK")
		case "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var data strings.Builder
			for {
				l, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" || l == ".\n" {
					break
				}
				if strings.HasPrefix(l, "..") {
					l = l[1:]
				}
				data.WriteString(l)
			}
			s.mx.Lock()
			s.messages = append(s.messages, Received{From: from, To: to, Data: data.String()})
			s.mx.Unlock()
			from, to = "", nil
			reply("250 OK queued")
		case "RSET":
			from, to = "", nil
			reply("250 OK")
		case "NOOP":
			reply("250 OK")
		case "QUIT":
			reply("221 localhost closing connection")
			return
		default:
			reply("500 Syntax error")
		}
	}
}

// envelopeAddr extracts the address from "MAIL FROM:<a@b>" style lines.
func envelopeAddr(line string) string {
	start := strings.Index(line, "<")
	end := strings.LastIndex(line, ">")
	if start < 0 || end < start {
		return ""
	}
	return line[start+1 : end]
}

// plainUser decodes the authentication identity of "AUTH PLAIN <b64>".
func plainUser(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(fields[2])
	if err != nil {
		return ""
	}
	parts := strings.Split(string(raw), "\x00")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

func generateCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"mailbatch smtptest"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}),
	)
}
