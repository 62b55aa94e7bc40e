package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironca/storage"
	"github.com/jmcleod/ironca/storage/memory"
)

func selfSignedCA(t *testing.T, name string) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func TestAppendRevocationPreservesExtensions(t *testing.T) {
	issuer, key := selfSignedCA(t, "ledger CA")
	now := time.Now()

	custom := pkix.Extension{Id: asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 34380, 1, 2, 99}, Value: []byte{0x0c, 0x01, 'x'}}
	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:          big.NewInt(0),
		ThisUpdate:      now,
		NextUpdate:      now.Add(time.Hour),
		ExtraExtensions: []pkix.Extension{custom},
	}, issuer, key)
	require.NoError(t, err)
	crl, err := x509.ParseRevocationList(der)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		der, err = AppendRevocation(crl, issuer, key, x509.RevocationListEntry{
			SerialNumber:   big.NewInt(int64(100 + i)),
			RevocationTime: now,
			ReasonCode:     ReasonKeyCompromise,
		}, now, time.Hour)
		require.NoError(t, err)
		crl, err = x509.ParseRevocationList(der)
		require.NoError(t, err)
		require.NoError(t, crl.CheckSignatureFrom(issuer))

		assert.Equal(t, int64(i), crl.Number.Int64())
		assert.Len(t, crl.RevokedCertificateEntries, i)

		var found, akis, numbers int
		for _, ext := range crl.Extensions {
			switch {
			case ext.Id.Equal(custom.Id):
				found++
				assert.Equal(t, custom.Value, ext.Value)
			case ext.Id.Equal(oidAuthorityKeyID):
				akis++
			case ext.Id.Equal(oidCRLNumber):
				numbers++
			}
		}
		assert.Equal(t, 1, found)
		assert.Equal(t, 1, akis)
		assert.Equal(t, 1, numbers)
	}
	assert.Equal(t, ReasonKeyCompromise, crl.RevokedCertificateEntries[0].ReasonCode)
}

func newLedgerAuthority(t *testing.T, counters storage.CounterCache) (*Authority, string) {
	t.Helper()
	a := New(memory.NewRepository(), "ledger", WithCounterCache(counters))
	require.NoError(t, a.Init(t.Context(), "Ledger CA", time.Hour))
	state, _, err := a.Store().State()
	require.NoError(t, err)
	return a, state.IssuerID
}

func TestLedgerRevokeIncrementsByOne(t *testing.T) {
	ctx := t.Context()
	a, issuerID := newLedgerAuthority(t, storage.NewMemoryCounterCache())

	var serials []*big.Int
	for _, host := range []string{"n1", "n2", "n3"} {
		cert, err := a.Generate(ctx, host, GenerateOptions{})
		require.NoError(t, err)
		serials = append(serials, cert.Serial())
	}

	prev, err := a.Ledger().Number(ctx, issuerID)
	require.NoError(t, err)
	for _, serial := range serials {
		require.NoError(t, a.Ledger().Revoke(ctx, serial, ReasonSuperseded))
		n, err := a.Ledger().Number(ctx, issuerID)
		require.NoError(t, err)
		assert.Equal(t, new(big.Int).Add(prev, big.NewInt(1)), n)
		prev = n
	}

	err = a.Ledger().Revoke(ctx, serials[0], ReasonSuperseded)
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := a.Ledger().Number(ctx, issuerID)
	require.NoError(t, err)
	assert.Equal(t, prev, n)

	err = a.Ledger().Revoke(ctx, big.NewInt(424242), ReasonSuperseded)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerDetectsRollback(t *testing.T) {
	ctx := t.Context()
	counters := storage.NewMemoryCounterCache()
	a, issuerID := newLedgerAuthority(t, counters)
	cert, err := a.Generate(ctx, "victim", GenerateOptions{})
	require.NoError(t, err)

	require.NoError(t, counters.Observe(crlCounterKey("ledger", issuerID), 7))

	err = a.Ledger().Revoke(ctx, cert.Serial(), ReasonKeyCompromise)
	require.ErrorIs(t, err, ErrServiceFailure)
	assert.ErrorIs(t, err, storage.ErrRollbackDetected)

	err = a.Verify(ctx, "victim")
	assert.ErrorIs(t, err, ErrServiceFailure)
}

func TestLedgerRevokeRetriesOnConcurrentUpdate(t *testing.T) {
	ctx := t.Context()
	a, issuerID := newLedgerAuthority(t, storage.NewMemoryCounterCache())
	c1, err := a.Generate(ctx, "c1", GenerateOptions{})
	require.NoError(t, err)
	c2, err := a.Generate(ctx, "c2", GenerateOptions{})
	require.NoError(t, err)

	// A second ledger over the same repository models another process.
	other := New(a.Store().Repository(), "ledger")
	require.NoError(t, other.Ledger().Revoke(ctx, c1.Serial(), ReasonKeyCompromise))
	require.NoError(t, a.Ledger().Revoke(ctx, c2.Serial(), ReasonKeyCompromise))

	crl, err := a.Ledger().CRL(ctx, issuerID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), crl.Number.Int64())
	assert.True(t, crlContains(crl, c1.Serial()))
	assert.True(t, crlContains(crl, c2.Serial()))
}

func TestParseReason(t *testing.T) {
	code, err := ParseReason("keyCompromise")
	require.NoError(t, err)
	assert.Equal(t, ReasonKeyCompromise, code)

	code, err = ParseReason("cessation-of-operation")
	require.NoError(t, err)
	assert.Equal(t, ReasonCessationOfOperation, code)

	_, err = ParseReason("bored")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}
