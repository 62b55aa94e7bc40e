package ca

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/jmcleod/ironca/storage"
)

// CRL reason codes (RFC 5280 section 5.3.1).
const (
	ReasonUnspecified          = 0
	ReasonKeyCompromise        = 1
	ReasonCACompromise         = 2
	ReasonAffiliationChanged   = 3
	ReasonSuperseded           = 4
	ReasonCessationOfOperation = 5
	ReasonCertificateHold      = 6
	ReasonRemoveFromCRL        = 8
	ReasonPrivilegeWithdrawn   = 9
	ReasonAACompromise         = 10
)

var reasonNames = map[string]int{
	"unspecified":          ReasonUnspecified,
	"keycompromise":        ReasonKeyCompromise,
	"cacompromise":         ReasonCACompromise,
	"affiliationchanged":   ReasonAffiliationChanged,
	"superseded":           ReasonSuperseded,
	"cessationofoperation": ReasonCessationOfOperation,
	"certificatehold":      ReasonCertificateHold,
	"removefromcrl":        ReasonRemoveFromCRL,
	"privilegewithdrawn":   ReasonPrivilegeWithdrawn,
	"aacompromise":         ReasonAACompromise,
}

// ParseReason maps an RFC 5280 reason name such as "keyCompromise" or
// "key-compromise" to its code.
func ParseReason(name string) (int, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(name))
	code, ok := reasonNames[key]
	if !ok {
		return 0, fmt.Errorf("%w: unknown revocation reason %q", ErrInvalidOperation, name)
	}
	return code, nil
}

const casRetries = 3

// Ledger owns the CRLs of an authority: one per issuing CA in the bundle,
// each with a crlNumber that rises by exactly one per revocation.
type Ledger struct {
	store    *Store
	keys     KeyStore
	counters storage.CounterCache
	now      func() time.Time
	validity time.Duration
	logger   *slog.Logger
}

// CRL returns the current CRL of issuerID.
func (l *Ledger) CRL(ctx context.Context, issuerID string) (*x509.RevocationList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	crl, _, err := l.store.CRL(issuerID)
	if err != nil {
		return nil, err
	}
	if err := observeCRLNumber(l.counters, crlCounterKey(l.store.CAID(), issuerID), crlNumber(crl)); err != nil {
		return nil, fmt.Errorf("%w: issuer %s: %w", ErrServiceFailure, issuerID, err)
	}
	return crl, nil
}

// Number returns the crlNumber of issuerID's CRL.
func (l *Ledger) Number(ctx context.Context, issuerID string) (*big.Int, error) {
	crl, err := l.CRL(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(crlNumber(crl)), nil
}

// IsRevoked reports whether serial appears on issuerID's CRL.
func (l *Ledger) IsRevoked(ctx context.Context, issuerID string, serial *big.Int) (bool, error) {
	crl, err := l.CRL(ctx, issuerID)
	if err != nil {
		return false, err
	}
	return crlContains(crl, serial), nil
}

// Revoke adds serial to the CRL of the CA that issued it. The serial must be
// in the inventory and not already revoked; otherwise ErrNotFound.
func (l *Ledger) Revoke(ctx context.Context, serial *big.Int, reason int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, err := l.store.InventoryEntry(serial)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: serial %s is not a known certificate", ErrNotFound, SerialID(serial))
		}
		return serviceError("loading inventory", err)
	}
	issuer, err := l.issuer(entry.IssuerID)
	if err != nil {
		return err
	}
	signer, err := l.keys.Signer(ctx, entry.IssuerID)
	if err != nil {
		return serviceError("loading issuer key", err)
	}

	key := crlCounterKey(l.store.CAID(), entry.IssuerID)
	for attempt := 0; ; attempt++ {
		crl, version, err := l.store.CRL(entry.IssuerID)
		if err != nil {
			return serviceError("loading CRL", err)
		}
		if err := observeCRLNumber(l.counters, key, crlNumber(crl)); err != nil {
			return fmt.Errorf("%w: %w", ErrServiceFailure, err)
		}
		if crlContains(crl, serial) {
			return fmt.Errorf("%w: serial %s is already revoked", ErrNotFound, SerialID(serial))
		}

		now := l.now()
		der, err := AppendRevocation(crl, issuer, signer, x509.RevocationListEntry{
			SerialNumber:   serial,
			RevocationTime: now.UTC(),
			ReasonCode:     reason,
		}, now, l.validity)
		if err != nil {
			return serviceError("signing CRL", err)
		}
		next := new(big.Int).Add(crlNumber(crl), big.NewInt(1))
		rec, err := storage.Encode(crlRecord{PEM: EncodeCRLPEM(der), Number: next.Uint64()}, version+1)
		if err != nil {
			return serviceError("encoding CRL", err)
		}

		err = l.store.repo.PutCAS(l.store.CAID(), recordCRL, entry.IssuerID, version, rec)
		if errors.Is(err, storage.ErrCASFailed) && attempt < casRetries {
			l.logger.DebugContext(ctx, "CRL changed concurrently, retrying",
				slog.String("issuer_id", entry.IssuerID))
			continue
		}
		if err != nil {
			return serviceError("storing CRL", err)
		}
		if err := observeCRLNumber(l.counters, key, next); err != nil {
			return fmt.Errorf("%w: %w", ErrServiceFailure, err)
		}

		l.logger.InfoContext(ctx, "certificate revoked",
			slog.String("serial", SerialID(serial)),
			slog.String("host", entry.Host),
			slog.String("issuer_id", entry.IssuerID),
			slog.String("crl_number", next.String()))
		return nil
	}
}

func (l *Ledger) issuer(issuerID string) (*x509.Certificate, error) {
	bundle, err := l.store.Bundle()
	if err != nil {
		return nil, serviceError("loading CA bundle", err)
	}
	for _, ca := range bundle {
		if IssuerID(ca) == issuerID {
			return ca, nil
		}
	}
	return nil, fmt.Errorf("%w: issuer %s is not in the CA bundle", ErrServiceFailure, issuerID)
}

// Rebuild reconstructs the inventory from the issued certificates and the CA
// bundle, and re-seeds the CRL number guard from the stored CRLs. Running it
// twice yields the same state.
func (l *Ledger) Rebuild(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bundle, err := l.store.Bundle()
	if err != nil {
		return serviceError("loading CA bundle", err)
	}

	entries := make(map[string]InventoryEntry)
	for _, ca := range bundle {
		e := inventoryEntry(ca.Subject.CommonName, ca, AuthorityID(ca, bundle))
		entries[e.Serial] = e
	}
	hosts, err := l.store.SignedHosts()
	if err != nil {
		return serviceError("listing certificates", err)
	}
	for _, host := range hosts {
		cert, err := l.store.FindCertificate(host)
		if err != nil {
			return serviceError("loading certificate for "+host, err)
		}
		e := inventoryEntry(host, cert.Cert, AuthorityID(cert.Cert, bundle))
		entries[e.Serial] = e
	}

	existing, err := l.store.list(recordInventory)
	if err != nil {
		return serviceError("listing inventory", err)
	}
	serials := make([]string, 0, len(entries))
	for serial := range entries {
		serials = append(serials, serial)
	}
	slices.Sort(serials)

	err = l.store.repo.Batch(l.store.CAID(), func(tx storage.BatchTx) error {
		for _, id := range existing {
			if _, ok := entries[id]; ok {
				continue
			}
			if err := tx.Delete(recordInventory, id); err != nil {
				return err
			}
		}
		for _, serial := range serials {
			rec, err := storage.Encode(entries[serial], 0)
			if err != nil {
				return err
			}
			if err := tx.Put(recordInventory, serial, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return serviceError("writing inventory", err)
	}

	for _, ca := range bundle {
		issuerID := IssuerID(ca)
		crl, _, err := l.store.CRL(issuerID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return serviceError("loading CRL", err)
		}
		if err := observeCRLNumber(l.counters, crlCounterKey(l.store.CAID(), issuerID), crlNumber(crl)); err != nil {
			return fmt.Errorf("%w: %w", ErrServiceFailure, err)
		}
	}

	l.logger.InfoContext(ctx, "inventory rebuilt",
		slog.String("ca_id", l.store.CAID()),
		slog.Int("entries", len(serials)))
	return nil
}
