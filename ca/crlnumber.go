package ca

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jmcleod/ironca/storage"
)

// crlCounterKey names the rollback-guard counter of one issuer's CRL.
func crlCounterKey(caID, issuerID string) string {
	return "crl:" + caID + ":" + issuerID
}

// observeCRLNumber records n in counters, failing if a higher number has
// been seen before.
func observeCRLNumber(counters storage.CounterCache, key string, n *big.Int) error {
	if counters == nil {
		return nil
	}
	if n == nil || n.Sign() < 0 || !n.IsUint64() {
		return fmt.Errorf("CRL number %v is out of range", n)
	}
	if err := counters.Observe(key, n.Uint64()); err != nil {
		if errors.Is(err, storage.ErrRollbackDetected) {
			return fmt.Errorf("CRL number %s is below previously seen %d: %w", n, counters.MaxSeen(key), err)
		}
		return err
	}
	return nil
}

// NewCRL signs an empty CRL with number 0 for issuer.
func NewCRL(issuer *x509.Certificate, signer crypto.Signer, now time.Time, validity time.Duration) ([]byte, error) {
	template := &x509.RevocationList{
		Number:     big.NewInt(0),
		ThisUpdate: now.UTC(),
		NextUpdate: now.UTC().Add(validity),
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, issuer, signer)
	if err != nil {
		return nil, fmt.Errorf("creating CRL: %w", err)
	}
	return der, nil
}

// AppendRevocation re-signs crl with entry appended and its number raised by
// one. Every extension other than the CRL number and authority key
// identifier, which are regenerated from issuer, is carried over unchanged.
func AppendRevocation(crl *x509.RevocationList, issuer *x509.Certificate, signer crypto.Signer, entry x509.RevocationListEntry, now time.Time, validity time.Duration) ([]byte, error) {
	entries := make([]x509.RevocationListEntry, 0, len(crl.RevokedCertificateEntries)+1)
	for _, e := range crl.RevokedCertificateEntries {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   e.SerialNumber,
			RevocationTime: e.RevocationTime,
			ReasonCode:     e.ReasonCode,
		})
	}
	entries = append(entries, entry)

	var extra []pkix.Extension
	for _, ext := range crl.Extensions {
		if ext.Id.Equal(oidCRLNumber) || ext.Id.Equal(oidAuthorityKeyID) {
			continue
		}
		extra = append(extra, ext)
	}

	number := new(big.Int).Add(crlNumber(crl), big.NewInt(1))
	template := &x509.RevocationList{
		Number:                    number,
		ThisUpdate:                now.UTC(),
		NextUpdate:                now.UTC().Add(validity),
		RevokedCertificateEntries: entries,
		ExtraExtensions:           extra,
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, issuer, signer)
	if err != nil {
		return nil, fmt.Errorf("creating CRL: %w", err)
	}
	return der, nil
}

func crlNumber(crl *x509.RevocationList) *big.Int {
	if crl.Number == nil {
		return big.NewInt(0)
	}
	return crl.Number
}

func crlContains(crl *x509.RevocationList, serial *big.Int) bool {
	for _, e := range crl.RevokedCertificateEntries {
		if e.SerialNumber.Cmp(serial) == 0 {
			return true
		}
	}
	return false
}
