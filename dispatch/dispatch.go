// Package dispatch applies validated operations to a certificate authority.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/internal/uuid"
	"github.com/jmcleod/ironca/operation"
	"github.com/jmcleod/ironca/report"
)

const (
	signPrompt      = "Sign Certificate Request? [y/N] "
	assumeYesNotice = "Assuming YES from `-y' or `--assume-yes' flag"
)

// invocation carries one Apply call through its handler.
type invocation struct {
	op     *operation.Operation
	svc    ca.Service
	store  ca.CertificateStore
	logger *slog.Logger
}

type handlerFunc func(ctx context.Context, inv *invocation) error

// Dispatcher routes operations to method handlers. Methods without a
// handler run the generic per-host loop.
type Dispatcher struct {
	state     *ca.State
	out       io.Writer
	confirmer Confirmer
	logger    *slog.Logger
	handlers  map[operation.Method]handlerFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithOutput sets where reports and notices are written. Defaults to
// io.Discard.
func WithOutput(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.out = w
	}
}

// WithConfirmer sets the interactive confirmation capability. Defaults to
// Decline.
func WithConfirmer(c Confirmer) Option {
	return func(d *Dispatcher) {
		d.confirmer = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New returns a Dispatcher over state.
func New(state *ca.State, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:     state,
		out:       io.Discard,
		confirmer: Decline,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = map[operation.Method]handlerFunc{
		operation.Generate:    d.generate,
		operation.Sign:        d.sign,
		operation.Print:       d.print,
		operation.Fingerprint: d.fingerprint,
		operation.Reinventory: d.reinventory,
		operation.List:        d.list,
	}
	return d
}

// Apply checks op against the guard and runs it. Mutating methods hold the
// state exclusively for the whole invocation.
func (d *Dispatcher) Apply(ctx context.Context, op *operation.Operation) error {
	if err := operation.Validate(op.Method(), op.Selector()); err != nil {
		return err
	}

	logger := d.logger.With(
		slog.String("invocation_id", uuid.New()),
		slog.String("method", op.Method().String()),
		slog.String("subjects", op.Selector().String()))

	handler, ok := d.handlers[op.Method()]
	if !ok {
		handler = d.forward
	}
	run := func(svc ca.Service, store ca.CertificateStore) error {
		return handler(ctx, &invocation{op: op, svc: svc, store: store, logger: logger})
	}

	logger.DebugContext(ctx, "applying operation")
	var err error
	if op.Method().Mutating() {
		err = d.state.Update(run)
	} else {
		err = d.state.View(run)
	}
	if err != nil {
		logger.WarnContext(ctx, "operation failed", slog.String("error", err.Error()))
		return err
	}
	logger.InfoContext(ctx, "operation applied")
	return nil
}

// signedOrHosts resolves All and Signed to the signed list and otherwise
// returns the explicit hosts.
func signedOrHosts(ctx context.Context, inv *invocation) ([]string, error) {
	if inv.op.Selector().IsBulk() {
		return inv.svc.List(ctx)
	}
	return inv.op.Selector().Hosts(), nil
}

// forward calls the identically named service operation for every host,
// stopping at the first failure.
func (d *Dispatcher) forward(ctx context.Context, inv *invocation) error {
	var call func(context.Context, string) error
	switch inv.op.Method() {
	case operation.Verify:
		call = inv.svc.Verify
	case operation.Destroy:
		call = inv.svc.Destroy
	case operation.Revoke:
		call = inv.svc.Revoke
	default:
		return fmt.Errorf("%w: no handler for %s", ca.ErrInvalidOperation, inv.op.Method())
	}

	hosts, err := signedOrHosts(ctx, inv)
	if err != nil {
		return err
	}
	for _, host := range hosts {
		if err := call(ctx, host); err != nil {
			return err
		}
		inv.logger.DebugContext(ctx, "host processed", slog.String("host", host))
	}
	return nil
}

func (d *Dispatcher) generate(ctx context.Context, inv *invocation) error {
	if inv.op.Selector().IsBulk() {
		return fmt.Errorf("%w: it makes no sense to generate all hosts; you must specify a list", ca.ErrInvalidOperation)
	}
	for _, host := range inv.op.Selector().Hosts() {
		if _, err := inv.svc.Generate(ctx, host, inv.op.GenerateOptions()); err != nil {
			return err
		}
		inv.logger.InfoContext(ctx, "certificate generated", slog.String("host", host))
	}
	return nil
}

func (d *Dispatcher) sign(ctx context.Context, inv *invocation) error {
	var hosts []string
	switch inv.op.Selector().Kind() {
	case operation.KindAll:
		waiting, err := inv.svc.Waiting(ctx)
		if err != nil {
			return err
		}
		hosts = waiting
	case operation.KindSigned:
		return fmt.Errorf("%w: signed certificates cannot be signed again", ca.ErrInvalidOperation)
	default:
		hosts = inv.op.Selector().Hosts()
	}
	if len(hosts) == 0 {
		return fmt.Errorf("%w: no waiting certificate requests to sign", ca.ErrInterface)
	}

	for _, host := range hosts {
		req, err := inv.store.FindRequest(host)
		if err != nil {
			if errors.Is(err, ca.ErrNotFound) {
				return fmt.Errorf("%w: could not find certificate request for %s", ca.ErrNotFound, host)
			}
			return err
		}
		summary, err := report.RequestSummary(req, inv.op)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(d.out, "Signing Certificate Request for:\n%s\n", summary); err != nil {
			return err
		}

		if inv.op.Interactive() {
			if inv.op.AssumeYes() {
				if _, err := fmt.Fprintf(d.out, "%s%s\n", signPrompt, assumeYesNotice); err != nil {
					return err
				}
			} else {
				ok, err := d.confirmer.Confirm(ctx, signPrompt)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: NOT signing certificate request for %s", ca.ErrAborted, host)
				}
			}
		}

		if _, err := inv.svc.Sign(ctx, host, inv.op.AllowDNSAltNames()); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) print(ctx context.Context, inv *invocation) error {
	hosts, err := signedOrHosts(ctx, inv)
	if err != nil {
		return err
	}
	for _, host := range hosts {
		text, err := inv.svc.Print(ctx, host)
		if err != nil {
			if errors.Is(err, ca.ErrNotFound) {
				return fmt.Errorf("%w: could not find certificate for %s", ca.ErrNotFound, host)
			}
			return err
		}
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		if _, err := io.WriteString(d.out, text); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) fingerprint(ctx context.Context, inv *invocation) error {
	var hosts []string
	switch inv.op.Selector().Kind() {
	case operation.KindAll:
		signed, err := inv.svc.List(ctx)
		if err != nil {
			return err
		}
		waiting, err := inv.svc.Waiting(ctx)
		if err != nil {
			return err
		}
		hosts = slices.Concat(signed, waiting)
	case operation.KindSigned:
		signed, err := inv.svc.List(ctx)
		if err != nil {
			return err
		}
		hosts = signed
	default:
		hosts = inv.op.Selector().Hosts()
	}

	for _, host := range hosts {
		digest, err := inv.svc.Digest(ctx, host, inv.op.Digest())
		if err != nil {
			if errors.Is(err, ca.ErrNotFound) {
				return fmt.Errorf("%w: could not find certificate for %s", ca.ErrNotFound, host)
			}
			return err
		}
		if _, err := fmt.Fprintf(d.out, "%s %s\n", host, digest); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) reinventory(ctx context.Context, inv *invocation) error {
	return inv.svc.Reinventory(ctx)
}

func (d *Dispatcher) list(ctx context.Context, inv *invocation) error {
	return report.List(ctx, d.out, inv.svc, inv.store, inv.op)
}
