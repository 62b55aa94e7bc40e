// Package report renders certificate listings in machine and human form.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/operation"
)

// entry is one classified host ready to render.
type entry struct {
	host        string
	status      ca.Status
	fingerprint string
	expiration  time.Time
	altNames    []string
	extensions  []string
	reason      string
}

// List resolves the hosts named by op's selector, classifies each as
// Request, Signed or Invalid and writes the report to w. An explicit host
// that is neither signed nor pending is ErrNotFound and nothing is written.
// Per-host failures are reported as Invalid entries.
func List(ctx context.Context, w io.Writer, svc ca.Service, store ca.CertificateStore, op *operation.Operation) error {
	hosts, signed, waiting, err := candidates(ctx, svc, op.Selector())
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		return nil
	}

	entries := make([]entry, 0, len(hosts))
	for _, host := range hosts {
		e, err := classify(ctx, svc, store, op, host, signed[host], waiting[host])
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	width := nameWidth(entries)
	rendered := make([]string, 0, len(entries))
	for _, e := range entries {
		if op.Format() == operation.Human {
			rendered = append(rendered, humanBlock(e))
		} else {
			rendered = append(rendered, machineLine(e, width))
		}
	}
	slices.Sort(rendered)

	var out string
	if op.Format() == operation.Human {
		out = strings.Join(rendered, "")
	} else {
		out = strings.Join(rendered, "\n") + "\n"
	}
	_, err = io.WriteString(w, out)
	return err
}

// candidates returns the sorted, de-duplicated hosts to report along with
// membership sets for signed and waiting hosts.
func candidates(ctx context.Context, svc ca.Service, sel operation.Selector) ([]string, map[string]bool, map[string]bool, error) {
	waitingList, err := svc.Waiting(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	waiting := toSet(waitingList)

	var hosts, signedList []string
	switch sel.Kind() {
	case operation.KindAll:
		if signedList, err = svc.List(ctx); err != nil {
			return nil, nil, nil, err
		}
		hosts = append(slices.Clone(signedList), waitingList...)
	case operation.KindSigned:
		if signedList, err = svc.List(ctx); err != nil {
			return nil, nil, nil, err
		}
		hosts = signedList
	case operation.KindHosts:
		hosts = sel.Hosts()
		if signedList, err = svc.List(ctx, hosts...); err != nil {
			return nil, nil, nil, err
		}
		signed := toSet(signedList)
		for _, h := range hosts {
			if !signed[h] && !waiting[h] {
				return nil, nil, nil, fmt.Errorf("%w: could not find certificate or request for %s", ca.ErrNotFound, h)
			}
		}
	default:
		hosts = waitingList
	}

	hosts = slices.Clone(hosts)
	slices.Sort(hosts)
	return slices.Compact(hosts), toSet(signedList), waiting, nil
}

// classify assigns host its status. A host with a certificate is Signed or
// Invalid even when it also has a pending request; only request-only hosts
// are Request. Lookup failures make the host Invalid rather than failing the
// report; only cancellation aborts it.
func classify(ctx context.Context, svc ca.Service, store ca.CertificateStore, op *operation.Operation, host string, signed, pending bool) (entry, error) {
	if pending && !signed {
		req, err := store.FindRequest(host)
		if err != nil {
			return failed(host, err)
		}
		e, err := requestEntry(req, op)
		if err != nil {
			return failed(host, err)
		}
		return e, nil
	}

	e := entry{host: host, status: ca.StatusSigned}
	if !pending {
		if err := svc.Verify(ctx, host); err != nil {
			if canceled(err) {
				return entry{}, err
			}
			e.status = ca.StatusInvalid
			e.reason = reason(err)
		}
	}

	cert, err := store.FindCertificate(host)
	if err == nil {
		var filled entry
		if filled, err = fillCertificate(e, cert, op); err == nil {
			return filled, nil
		}
	}
	if e.status == ca.StatusInvalid && !canceled(err) {
		return e, nil
	}
	return failed(host, err)
}

// failed folds err into an Invalid entry for host.
func failed(host string, err error) (entry, error) {
	if canceled(err) {
		return entry{}, err
	}
	return entry{host: host, status: ca.StatusInvalid, reason: reason(err)}, nil
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func reason(err error) string {
	var verr *ca.VerificationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	if !errors.Is(err, ca.ErrServiceFailure) {
		err = fmt.Errorf("%w: %w", ca.ErrServiceFailure, err)
	}
	return err.Error()
}

func requestEntry(req *ca.CertificateRequest, op *operation.Operation) (entry, error) {
	e := entry{host: req.Host, status: ca.StatusRequest}
	if op.Shows(operation.SectionFingerprint) {
		fp, err := req.Digest(op.Digest())
		if err != nil {
			return entry{}, err
		}
		e.fingerprint = fp
	}
	e.altNames = foreignAltNames(req.Host, req.AltNames())

	var exts []ca.Extension
	if op.Shows(operation.SectionAttrs) {
		exts = append(exts, req.CustomAttributes...)
	}
	if op.Shows(operation.SectionExts) {
		exts = append(exts, req.ExtensionRequests...)
	}
	e.extensions = renderExtensions(exts)
	return e, nil
}

func fillCertificate(e entry, cert *ca.Certificate, op *operation.Operation) (entry, error) {
	if op.Shows(operation.SectionFingerprint) {
		fp, err := cert.Digest(op.Digest())
		if err != nil {
			return entry{}, err
		}
		e.fingerprint = fp
	}
	e.expiration = cert.Expiration()
	e.altNames = foreignAltNames(e.host, cert.AltNames())

	var exts []ca.Extension
	if op.Shows(operation.SectionExts) {
		exts = append(exts, cert.CustomExtensions...)
	}
	if op.Shows(operation.SectionBase) {
		exts = append(exts, cert.BaseExtensions...)
	}
	e.extensions = renderExtensions(exts)
	return e, nil
}

// foreignAltNames drops the host's own name from its alternative names.
func foreignAltNames(host string, names []string) []string {
	var out []string
	for _, n := range names {
		if n == "DNS:"+host || n == host {
			continue
		}
		out = append(out, n)
	}
	return out
}

func renderExtensions(exts []ca.Extension) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		out = append(out, ext.Name+": "+strconv.Quote(ext.Value))
	}
	slices.Sort(out)
	return out
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = strconv.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// nameWidth is the widest quoted host name, counted in runes to match the
// padding done by fmt.
func nameWidth(entries []entry) int {
	width := 0
	for _, e := range entries {
		width = max(width, quotedWidth(e.host))
	}
	return width
}

func quotedWidth(host string) int {
	return utf8.RuneCountInString(strconv.Quote(host))
}

func toSet(hosts []string) map[string]bool {
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[h] = true
	}
	return set
}
