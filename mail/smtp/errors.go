package smtp

import "fmt"

// Steps of session establishment reported by ConnectError.
const (
	StepConnect  = "connect"
	StepGreeting = "greeting"
	StepHello    = "ehlo"
	StepStartTLS = "starttls"
	StepAuth     = "auth"
)

// ConnectError reports a failure while opening a session.
type ConnectError struct {
	Step    string
	Account string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("smtp %s failed for %s: %v", e.Step, e.Account, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SendError reports a failure while transmitting one message.
type SendError struct {
	To  string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("smtp send to %s failed: %v", e.To, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
