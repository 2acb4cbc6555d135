package smtp

import "time"

// Config identifies the server and the account to authenticate as.
type Config struct {
	Host     string // smtp.gmail.com
	Port     int    // 587 for STARTTLS
	Username string // login, usually the sender email
	Password string // password or app password
}

// Options tunes the transport.
type Options struct {
	TLS         bool          `envconfig:"SMTP_TLS" default:"true"`             // require STARTTLS
	Insecure    bool          `envconfig:"SMTP_INSECURE" default:"false"`       // skip certificate verification
	LocalName   string        `envconfig:"SMTP_LOCAL_NAME" default:"localhost"` // EHLO name
	DialTimeout time.Duration `envconfig:"SMTP_DIAL_TIMEOUT" default:"0s"`      // 0 keeps the network default
}

// DefaultOptions requires STARTTLS with certificate verification.
func DefaultOptions() Options {
	return Options{
		TLS:       true,
		LocalName: "localhost",
	}
}
