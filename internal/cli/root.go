/*
Package cli provides the mailbatch command.
*/
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pure-golang/mailbatch/batch"
	"github.com/pure-golang/mailbatch/env"
	"github.com/pure-golang/mailbatch/logger"
	"github.com/pure-golang/mailbatch/logger/monthly"
	"github.com/pure-golang/mailbatch/mail"
	"github.com/pure-golang/mailbatch/mail/noop"
	"github.com/pure-golang/mailbatch/metrics"
	"github.com/pure-golang/mailbatch/profile"
	"github.com/pure-golang/mailbatch/tracing"
	"github.com/pure-golang/mailbatch/tracing/otlp"
	"github.com/spf13/cobra"
)

type options struct {
	envFiles []string
	logOpts  []monthly.Option
	dial     batch.Dialer
}

// Option customizes the command, mostly for tests.
type Option func(*options)

// WithEnvFiles replaces the dotenv files read before the environment.
func WithEnvFiles(files ...string) Option {
	return func(o *options) {
		o.envFiles = files
	}
}

// WithLogOptions passes options to both monthly log files.
func WithLogOptions(opts ...monthly.Option) Option {
	return func(o *options) {
		o.logOpts = opts
	}
}

// WithDialer replaces the SMTP dialer.
func WithDialer(d batch.Dialer) Option {
	return func(o *options) {
		o.dial = d
	}
}

type flags struct {
	profiles   string
	inlineHTML bool
	dryRun     bool
	list       bool
}

// Execute runs the command with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the mailbatch command.
func NewRootCommand(opts ...Option) *cobra.Command {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	f := &flags{}
	cmd := &cobra.Command{
		Use:   "mailbatch [flags] <profile> <messages>",
		Short: "Send a batch of HTML emails over one SMTP session",
		Long: `mailbatch sends every message of a list through a single SMTP session
authenticated with a named credential profile.

The message list is YAML or JSON, given inline or as @file. Each item is a
tuple [to, subject, text, html] with an optional fifth reply_to field, or a
mapping with the same keys. By default html names a file whose contents are
the HTML body; use --inline-html to send the field as is.

Example:
  mailbatch newsletter '[["a@example.com", "Hi", "plain", "page.html"]]'
  mailbatch --inline-html newsletter @messages.yaml
  mailbatch --list`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, f, o)
		},
	}

	cmd.Flags().StringVar(&f.profiles, "profiles", "", "credential profiles file (default $MAILBATCH_PROFILES or smtp_credentials.yaml)")
	cmd.Flags().BoolVar(&f.inlineHTML, "inline-html", false, "treat the html field as literal HTML instead of a file path")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "format every message but send nothing")
	cmd.Flags().BoolVar(&f.list, "list", false, "list the available profiles and exit")

	return cmd
}

func run(cmd *cobra.Command, args []string, f *flags, o *options) error {
	var cfg Config
	if err := env.InitConfig(&cfg, o.envFiles...); err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if f.profiles != "" {
		cfg.Profiles = f.profiles
	}

	out := cmd.OutOrStdout()

	if f.list {
		table, err := profile.Load(cfg.Profiles)
		if err != nil {
			return err
		}
		for _, name := range table.Names() {
			_, _ = fmt.Fprintln(out, name)
		}
		return nil
	}

	if len(args) != 2 {
		return cmd.Usage()
	}

	table, err := profile.Load(cfg.Profiles)
	if err != nil {
		return err
	}

	p, err := table.Lookup(args[0])
	if errors.Is(err, profile.ErrNotFound) {
		_, _ = fmt.Fprintf(out, "%s profile not found!\n", args[0])
		return cmd.Usage()
	}
	if err != nil {
		return err
	}

	requests, err := readRequests(args[1])
	if err != nil {
		return err
	}

	return send(cmd.Context(), out, cfg, f, o, p, requests)
}

func send(ctx context.Context, out io.Writer, cfg Config, f *flags, o *options, p profile.Profile, requests []mail.Request) error {
	logs := logger.NewBatch(cfg.Logger, o.logOpts...)
	defer func() {
		_ = logs.Close()
	}()
	logger.InitDefault(logs.Logger)

	if cfg.Tracing.Enabled() {
		provider, err := tracing.Init(ctx, otlp.NewProviderBuilder(cfg.Tracing))
		if err != nil {
			logs.Warn("tracing disabled", "error", err.Error())
		}
		defer func() {
			if err := provider.Close(); err != nil {
				logs.Warn("failed to flush traces", "error", err.Error())
			}
		}()
	}

	runner := &batch.Runner{
		Dial:         dialer(cfg, f, o),
		Log:          logs.Logger,
		Out:          out,
		HTMLFromFile: !f.inlineHTML,
	}

	res, runErr := runner.Run(ctx, p, requests)

	metrics.RecordRun(res.Total, res.Sent, runErr)
	if cfg.Metrics.Enabled() {
		if err := metrics.New(cfg.Metrics, nil).Push(ctx, p.Login); err != nil {
			logs.Warn("failed to push metrics", "error", err.Error())
		}
	}

	if runErr != nil {
		return runErr
	}
	if err := logs.Err(); err != nil {
		return errors.Wrap(err, "failed to write logs")
	}

	_, _ = fmt.Fprintln(out, "All emails Sent!")
	return nil
}

func dialer(cfg Config, f *flags, o *options) batch.Dialer {
	switch {
	case o.dial != nil:
		return o.dial
	case f.dryRun:
		return func(context.Context, profile.Profile) (mail.Sender, error) {
			return noop.NewSender(), nil
		}
	default:
		return batch.SMTPDialer(&cfg.SMTP)
	}
}

// readRequests parses the message list argument, reading it from a file
// when it starts with @.
func readRequests(arg string) ([]mail.Request, error) {
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		b, err := os.ReadFile(path) // #nosec G304 -- path is given by the operator
		if err != nil {
			return nil, errors.Wrap(err, "failed to read message list")
		}
		data = b
	}

	requests, err := batch.ParseRequests(data)
	if err != nil {
		return nil, errors.Wrap(err, "invalid message list")
	}
	return requests, nil
}
