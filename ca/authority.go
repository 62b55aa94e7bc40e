// Package ca implements a certificate authority over a storage.Repository:
// pending requests, issued certificates, per-issuer CRLs and the inventory
// of every serial ever issued. Authority is the Service the dispatcher
// drives; Store and Ledger are its lookup and revocation halves.
package ca

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/jmcleod/ironca/internal/util"
	"github.com/jmcleod/ironca/storage"
)

// Defaults for an Authority.
const (
	DefaultCertValidity = 5 * 365 * 24 * time.Hour
	DefaultCRLValidity  = 5 * 365 * 24 * time.Hour
	DefaultReason       = ReasonKeyCompromise

	certComment = "ironca Internal Certificate"
	backdate    = 24 * time.Hour
)

// Authority is the software certificate authority.
type Authority struct {
	store    *Store
	ledger   *Ledger
	caKeys   KeyStore
	hostKeys KeyStore

	names        *OIDNames
	counters     storage.CounterCache
	now          func() time.Time
	certValidity time.Duration
	crlValidity  time.Duration
	reason       int
	passphrase   string
	kdf          util.Argon2idParams
	logger       *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// WithCertValidity sets the lifetime of issued certificates.
func WithCertValidity(d time.Duration) Option {
	return func(a *Authority) {
		a.certValidity = d
	}
}

// WithCRLValidity sets the interval between thisUpdate and nextUpdate.
func WithCRLValidity(d time.Duration) Option {
	return func(a *Authority) {
		a.crlValidity = d
	}
}

// WithRevocationReason sets the reason code recorded by Revoke.
func WithRevocationReason(reason int) Option {
	return func(a *Authority) {
		a.reason = reason
	}
}

// WithOIDNames sets the OID short-name table.
func WithOIDNames(names *OIDNames) Option {
	return func(a *Authority) {
		a.names = names
	}
}

// WithCounterCache sets the CRL number rollback guard.
func WithCounterCache(cache storage.CounterCache) Option {
	return func(a *Authority) {
		a.counters = cache
	}
}

// WithPassphrase seals private keys at rest under passphrase.
func WithPassphrase(passphrase string) Option {
	return func(a *Authority) {
		a.passphrase = passphrase
	}
}

// WithKDFParams sets the Argon2id cost used to seal private keys.
func WithKDFParams(params util.Argon2idParams) Option {
	return func(a *Authority) {
		a.kdf = params
	}
}

// WithCAKeyStore replaces the store holding authority keys.
func WithCAKeyStore(ks KeyStore) Option {
	return func(a *Authority) {
		a.caKeys = ks
	}
}

// WithHostKeyStore replaces the store holding keys made by Generate.
func WithHostKeyStore(ks KeyStore) Option {
	return func(a *Authority) {
		a.hostKeys = ks
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = logger
	}
}

// New returns an Authority over repo, namespaced by caID.
func New(repo storage.Repository, caID string, opts ...Option) *Authority {
	a := &Authority{
		now:          time.Now,
		certValidity: DefaultCertValidity,
		crlValidity:  DefaultCRLValidity,
		reason:       DefaultReason,
		kdf:          util.DefaultArgon2idParams(),
		counters:     storage.NewMemoryCounterCache(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.names == nil {
		a.names = DefaultOIDNames()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.caKeys == nil {
		a.caKeys = NewCAKeyStore(repo, caID, a.passphrase, WithKeyKDFParams(a.kdf))
	}
	if a.hostKeys == nil {
		a.hostKeys = NewHostKeyStore(repo, caID, a.passphrase, WithKeyKDFParams(a.kdf))
	}
	a.store = NewStore(repo, caID, a.names)
	a.ledger = &Ledger{
		store:    a.store,
		keys:     a.caKeys,
		counters: a.counters,
		now:      a.now,
		validity: a.crlValidity,
		logger:   a.logger,
	}
	return a
}

// Store returns the authority's certificate store.
func (a *Authority) Store() *Store {
	return a.store
}

// Ledger returns the authority's revocation ledger.
func (a *Authority) Ledger() *Ledger {
	return a.ledger
}

// Names returns the OID short-name table.
func (a *Authority) Names() *OIDNames {
	return a.names
}

// ---------------------------------------------------------------------------
// Initialisation
// ---------------------------------------------------------------------------

// Init creates a self-signed CA named name, its empty CRL and the CA state.
func (a *Authority) Init(ctx context.Context, name string, validity time.Duration) error {
	if _, _, err := a.store.State(); err == nil {
		return ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNotInitialized) {
		return serviceError("loading CA state", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return serviceError("generating CA key", err)
	}
	now := a.now().UTC()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             now.Add(-backdate),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          SubjectKeyID(key.Public()),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return serviceError("creating CA certificate", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return serviceError("parsing CA certificate", err)
	}
	crlDER, err := NewCRL(cert, key, now, a.crlValidity)
	if err != nil {
		return serviceError("creating CRL", err)
	}

	issuerID := IssuerID(cert)
	if err := a.caKeys.Store(ctx, issuerID, key); err != nil {
		return serviceError("storing CA key", err)
	}
	state := CAState{
		Subject:    cert.Subject.String(),
		IssuerID:   issuerID,
		NextSerial: 2,
		NotBefore:  cert.NotBefore,
		NotAfter:   cert.NotAfter,
	}
	err = InstallCA(a.store.Repository(), a.store.CAID(), []*x509.Certificate{cert},
		map[string][]byte{issuerID: crlDER}, state)
	if err != nil {
		_ = a.caKeys.Delete(ctx, issuerID)
		return serviceError("storing CA", err)
	}
	if err := observeCRLNumber(a.counters, crlCounterKey(a.store.CAID(), issuerID), big.NewInt(0)); err != nil {
		return serviceError("recording CRL number", err)
	}

	a.logger.InfoContext(ctx, "certificate authority initialized",
		slog.String("ca_id", a.store.CAID()),
		slog.String("subject", state.Subject),
		slog.String("issuer_id", issuerID))
	return nil
}

// InstallCA writes a CA bundle, one DER CRL per issuer ID, the CA state and
// inventory entries for the bundle in a single batch. Keys are not written.
func InstallCA(repo storage.Repository, caID string, bundle []*x509.Certificate, crls map[string][]byte, state CAState) error {
	pems := make([]string, len(bundle))
	for i, c := range bundle {
		pems[i] = EncodeCertificatePEM(c.Raw)
	}
	return repo.Batch(caID, func(tx storage.BatchTx) error {
		rec, err := storage.Encode(bundleRecord{PEMs: pems}, 1)
		if err != nil {
			return err
		}
		if err := tx.Put(recordCA, caBundleID, rec); err != nil {
			return err
		}
		if rec, err = storage.Encode(state, 1); err != nil {
			return err
		}
		if err := tx.Put(recordCA, caStateID, rec); err != nil {
			return err
		}
		for issuerID, der := range crls {
			crl, err := x509.ParseRevocationList(der)
			if err != nil {
				return fmt.Errorf("CRL for %s: %w", issuerID, err)
			}
			rec, err := storage.Encode(crlRecord{PEM: EncodeCRLPEM(der), Number: crlNumber(crl).Uint64()}, 1)
			if err != nil {
				return err
			}
			if err := tx.Put(recordCRL, issuerID, rec); err != nil {
				return err
			}
		}
		for _, c := range bundle {
			entry := inventoryEntry(c.Subject.CommonName, c, AuthorityID(c, bundle))
			rec, err := storage.Encode(entry, 0)
			if err != nil {
				return err
			}
			if err := tx.Put(recordInventory, entry.Serial, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// InstallCertificate writes an issued certificate for host and its
// inventory entry, as signing would.
func InstallCertificate(repo storage.Repository, caID, host string, cert *x509.Certificate, issuerID string) error {
	return repo.Batch(caID, func(tx storage.BatchTx) error {
		return putCertificate(tx, host, cert, issuerID)
	})
}

func putCertificate(tx storage.BatchTx, host string, cert *x509.Certificate, issuerID string) error {
	rec, err := storage.Encode(pemRecord{PEM: EncodeCertificatePEM(cert.Raw)}, 0)
	if err != nil {
		return err
	}
	if err := tx.Put(recordCert, host, rec); err != nil {
		return err
	}
	entry := inventoryEntry(host, cert, issuerID)
	if rec, err = storage.Encode(entry, 0); err != nil {
		return err
	}
	return tx.Put(recordInventory, entry.Serial, rec)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Generate creates a key and request for host and signs it immediately.
// DNS alt names are allowed since the operator supplied them.
func (a *Authority) Generate(ctx context.Context, host string, opts GenerateOptions) (*Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host = util.NormalizeHost(host)
	if ok, err := a.store.HasCertificate(host); err != nil {
		return nil, serviceError("looking up certificate", err)
	} else if ok {
		return nil, fmt.Errorf("%w: %s already has a certificate", ErrInvalidOperation, host)
	}
	if ok, err := a.store.HasRequest(host); err != nil {
		return nil, serviceError("looking up request", err)
	} else if ok {
		return nil, fmt.Errorf("%w: %s already has a certificate request", ErrInvalidOperation, host)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, serviceError("generating key", err)
	}
	der, err := CreateRequest(key, host, RequestOptions{
		DNSAltNames:       opts.DNSAltNames,
		Attributes:        opts.Attributes,
		ExtensionRequests: opts.ExtensionRequests,
	}, a.names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	req, err := ParseRequest(host, der, a.names)
	if err != nil {
		return nil, serviceError("parsing request", err)
	}
	if err := a.store.SubmitRequest(host, req.PEM()); err != nil {
		return nil, serviceError("storing request", err)
	}
	if err := a.hostKeys.Store(ctx, host, key); err != nil {
		a.discardGenerated(ctx, host)
		return nil, serviceError("storing key", err)
	}

	cert, err := a.Sign(ctx, host, true)
	if err != nil {
		a.discardGenerated(ctx, host)
		return nil, err
	}
	a.logger.InfoContext(ctx, "certificate generated", slog.String("host", host))
	return cert, nil
}

// discardGenerated removes the request and key Generate stored for host
// when it could not be signed.
func (a *Authority) discardGenerated(ctx context.Context, host string) {
	ctx = context.WithoutCancel(ctx)
	err := a.store.Repository().Delete(a.store.CAID(), recordRequest, host)
	if err != nil && !isAbsent(err) {
		a.logger.WarnContext(ctx, "discarding generated request failed",
			slog.String("host", host), slog.String("error", err.Error()))
	}
	if err := a.hostKeys.Delete(ctx, host); err != nil {
		a.logger.WarnContext(ctx, "discarding generated key failed",
			slog.String("host", host), slog.String("error", err.Error()))
	}
}

// Sign turns host's pending request into a certificate issued by the
// authority's signing CA, in one batch that also consumes a serial and
// removes the request.
func (a *Authority) Sign(ctx context.Context, host string, allowDNSAltNames bool) (*Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host = util.NormalizeHost(host)
	req, err := a.store.FindRequest(host)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: could not find certificate request for %s", ErrNotFound, host)
		}
		return nil, serviceError("loading request", err)
	}
	extra, err := a.checkRequest(req, allowDNSAltNames)
	if err != nil {
		return nil, err
	}

	state, _, err := a.store.State()
	if err != nil {
		return nil, serviceError("loading CA state", err)
	}
	issuer, err := a.ledger.issuer(state.IssuerID)
	if err != nil {
		return nil, err
	}
	signer, err := a.caKeys.Signer(ctx, state.IssuerID)
	if err != nil {
		return nil, serviceError("loading CA key", err)
	}
	comment, err := asn1.MarshalWithParams(certComment, "ia5")
	if err != nil {
		return nil, serviceError("encoding comment", err)
	}
	extra = append(extra, pkix.Extension{Id: oidNetscapeComment, Value: comment})

	var issued *x509.Certificate
	err = a.store.Repository().Batch(a.store.CAID(), func(tx storage.BatchTx) error {
		rec, err := tx.Get(recordCA, caStateID)
		if err != nil {
			return err
		}
		var current CAState
		if err := rec.Decode(&current); err != nil {
			return err
		}

		now := a.now().UTC()
		template := &x509.Certificate{
			SerialNumber:          big.NewInt(current.NextSerial),
			Subject:               pkix.Name{CommonName: host},
			NotBefore:             now.Add(-backdate),
			NotAfter:              now.Add(a.certValidity),
			KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
			BasicConstraintsValid: true,
			DNSNames:              req.Request.DNSNames,
			SubjectKeyId:          SubjectKeyID(req.Request.PublicKey),
			ExtraExtensions:       extra,
		}
		der, err := x509.CreateCertificate(rand.Reader, template, issuer, req.Request.PublicKey, signer)
		if err != nil {
			return fmt.Errorf("signing certificate: %w", err)
		}
		if issued, err = x509.ParseCertificate(der); err != nil {
			return err
		}

		current.NextSerial++
		next, err := storage.Encode(current, rec.Version+1)
		if err != nil {
			return err
		}
		if err := tx.PutCAS(recordCA, caStateID, rec.Version, next); err != nil {
			return err
		}
		if err := tx.Delete(recordRequest, host); err != nil {
			return err
		}
		return putCertificate(tx, host, issued, state.IssuerID)
	})
	if err != nil {
		return nil, serviceError("signing "+host, err)
	}

	a.logger.InfoContext(ctx, "certificate signed",
		slog.String("host", host),
		slog.String("serial", SerialID(issued.SerialNumber)))
	return newCertificate(host, issued, a.names), nil
}

// checkRequest applies the signing policy to req and returns the extension
// requests to copy into the certificate.
func (a *Authority) checkRequest(req *CertificateRequest, allowDNSAltNames bool) ([]pkix.Extension, error) {
	host := req.Host
	csr := req.Request
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("%w: CSR %q has an invalid signature: %v", ErrPolicyViolation, host, err)
	}
	if cn := util.NormalizeHost(csr.Subject.CommonName); cn != host {
		return nil, fmt.Errorf("%w: CSR subject common name %q does not match %q", ErrPolicyViolation, csr.Subject.CommonName, host)
	}
	if strings.Contains(csr.Subject.CommonName, "*") {
		return nil, fmt.Errorf("%w: CSR %q subject contains a wildcard, which is not allowed", ErrPolicyViolation, host)
	}

	altNames := slices.DeleteFunc(slices.Clone(csr.DNSNames), func(n string) bool { return n == host })
	if len(altNames) > 0 && !allowDNSAltNames {
		return nil, fmt.Errorf("%w: CSR %q contains subject alternative names (%s), which are disallowed; use --allow-dns-alt-names to sign this request",
			ErrPolicyViolation, host, strings.Join(prefixed("DNS:", altNames), ", "))
	}
	for _, n := range csr.DNSNames {
		if strings.Contains(n, "*") {
			return nil, fmt.Errorf("%w: CSR %q subject alternative name %q contains a wildcard, which is not allowed", ErrPolicyViolation, host, n)
		}
	}
	if len(csr.IPAddresses) > 0 || len(csr.EmailAddresses) > 0 || len(csr.URIs) > 0 {
		return nil, fmt.Errorf("%w: CSR %q contains subject alternative names other than DNS, which are disallowed", ErrPolicyViolation, host)
	}

	var extra, unauthorized []pkix.Extension
	for _, ext := range csr.Extensions {
		switch {
		case ext.Id.Equal(oidSubjectAltName):
		case isPrivateArc(ext.Id):
			extra = append(extra, pkix.Extension{Id: cloneOID(ext.Id), Critical: ext.Critical, Value: util.CopyBytes(ext.Value)})
		default:
			unauthorized = append(unauthorized, ext)
		}
	}
	if len(unauthorized) > 0 {
		names := make([]string, len(unauthorized))
		for i, ext := range unauthorized {
			names[i] = a.names.Name(ext.Id)
		}
		return nil, fmt.Errorf("%w: CSR %q contains unauthorized extension requests: %s", ErrPolicyViolation, host, strings.Join(names, ", "))
	}
	return extra, nil
}

// Verify checks host's certificate against the CA bundle and the CRL of
// its immediate issuer. Revocation of a CA further up the chain does not
// affect the result.
func (a *Authority) Verify(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host = util.NormalizeHost(host)
	cert, err := a.store.FindCertificate(host)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: could not find certificate for %s", ErrNotFound, host)
		}
		return serviceError("loading certificate", err)
	}
	bundle, err := a.store.Bundle()
	if err != nil {
		return serviceError("loading CA bundle", err)
	}

	roots := x509.NewCertPool()
	intermediates := x509.NewCertPool()
	for _, c := range bundle {
		if isSelfSigned(c) {
			roots.AddCert(c)
		} else {
			intermediates.AddCert(c)
		}
	}
	_, err = cert.Cert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   a.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return verificationError(host, "%s", err)
	}

	issuer := findIssuer(cert.Cert, bundle)
	if issuer == nil {
		return verificationError(host, "unable to get local issuer certificate")
	}
	crl, err := a.ledger.CRL(ctx, IssuerID(issuer))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return verificationError(host, "unable to get certificate CRL")
		}
		return serviceError("loading CRL", err)
	}
	if err := crl.CheckSignatureFrom(issuer); err != nil {
		return verificationError(host, "CRL signature failure")
	}
	if crlContains(crl, cert.Serial()) {
		return verificationError(host, "certificate revoked")
	}
	return nil
}

func isSelfSigned(c *x509.Certificate) bool {
	return string(c.RawIssuer) == string(c.RawSubject) && c.CheckSignatureFrom(c) == nil
}

// List returns signed hosts. With hosts given, it returns those of them
// that have a certificate, in the order given.
func (a *Authority) List(ctx context.Context, hosts ...string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		signed, err := a.store.SignedHosts()
		return signed, serviceError("listing certificates", err)
	}
	var out []string
	for _, h := range hosts {
		h = util.NormalizeHost(h)
		ok, err := a.store.HasCertificate(h)
		if err != nil {
			return nil, serviceError("looking up certificate", err)
		}
		if ok {
			out = append(out, h)
		}
	}
	return out, nil
}

// Waiting returns hosts with pending requests.
func (a *Authority) Waiting(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	waiting, err := a.store.WaitingHosts()
	return waiting, serviceError("listing requests", err)
}

// Print returns the text form of host's certificate.
func (a *Authority) Print(ctx context.Context, host string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	host = util.NormalizeHost(host)
	cert, err := a.store.FindCertificate(host)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: could not find certificate for %s", ErrNotFound, host)
		}
		return "", serviceError("loading certificate", err)
	}
	return CertificateText(cert.Cert, a.names), nil
}

// Destroy removes host's certificate, pending request and private key. The
// inventory keeps its serials so a later revoke still finds them.
func (a *Authority) Destroy(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host = util.NormalizeHost(host)
	removed := 0
	err := a.store.Repository().Batch(a.store.CAID(), func(tx storage.BatchTx) error {
		for _, recordType := range []string{recordCert, recordRequest} {
			err := tx.Delete(recordType, host)
			switch {
			case err == nil:
				removed++
			case isAbsent(err):
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return serviceError("destroying "+host, err)
	}

	hadKey, err := a.hostKeys.Has(ctx, host)
	if err != nil {
		return serviceError("looking up key", err)
	}
	if err := a.hostKeys.Delete(ctx, host); err != nil {
		return serviceError("deleting key", err)
	}
	if hadKey {
		removed++
	}
	if removed == 0 {
		return fmt.Errorf("%w: nothing was deleted for %s", ErrNotFound, host)
	}
	a.logger.InfoContext(ctx, "host destroyed", slog.String("host", host))
	return nil
}

var hexSerial = regexp.MustCompile(`^0[xX][0-9A-Fa-f]+$`)

// Revoke revokes host's certificate. When host has no certificate, a
// "0x"-prefixed hex serial is revoked directly; otherwise every unrevoked
// serial the inventory records for host is revoked.
func (a *Authority) Revoke(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host = util.NormalizeHost(host)
	cert, err := a.store.FindCertificate(host)
	switch {
	case err == nil:
		return a.ledger.Revoke(ctx, cert.Serial(), a.reason)
	case !errors.Is(err, ErrNotFound):
		return serviceError("loading certificate", err)
	}

	if hexSerial.MatchString(host) {
		serial, ok := new(big.Int).SetString(host[2:], 16)
		if !ok {
			return fmt.Errorf("%w: invalid serial %s", ErrInvalidOperation, host)
		}
		return a.ledger.Revoke(ctx, serial, a.reason)
	}

	inventory, err := a.store.Inventory()
	if err != nil {
		return serviceError("loading inventory", err)
	}
	revoked := 0
	for _, entry := range inventory {
		if entry.Host != host {
			continue
		}
		serial, ok := new(big.Int).SetString(entry.Serial, 16)
		if !ok {
			return fmt.Errorf("%w: corrupt inventory serial %q", ErrServiceFailure, entry.Serial)
		}
		already, err := a.ledger.IsRevoked(ctx, entry.IssuerID, serial)
		if err != nil {
			return serviceError("loading CRL", err)
		}
		if already {
			continue
		}
		if err := a.ledger.Revoke(ctx, serial, a.reason); err != nil {
			return err
		}
		revoked++
	}
	if revoked == 0 {
		return fmt.Errorf("%w: could not find a serial number for %s", ErrNotFound, host)
	}
	return nil
}

// Digest fingerprints host's certificate, or its pending request when it
// has no certificate.
func (a *Authority) Digest(ctx context.Context, host, algorithm string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	host = util.NormalizeHost(host)
	if cert, err := a.store.FindCertificate(host); err == nil {
		return cert.Digest(algorithm)
	} else if !errors.Is(err, ErrNotFound) {
		return "", serviceError("loading certificate", err)
	}
	req, err := a.store.FindRequest(host)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: could not find certificate or request for %s", ErrNotFound, host)
		}
		return "", serviceError("loading request", err)
	}
	return req.Digest(algorithm)
}

// Reinventory rebuilds the ledger's inventory.
func (a *Authority) Reinventory(ctx context.Context) error {
	return a.ledger.Rebuild(ctx)
}

// SubjectKeyID is the RFC 5280 method 1 key identifier of pub.
func SubjectKeyID(pub crypto.PublicKey) []byte {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil
	}
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return nil
	}
	sum := sha1.Sum(spki.PublicKey.Bytes)
	return sum[:]
}
