package ca

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jmcleod/ironca/internal/util"
	"github.com/jmcleod/ironca/storage"
)

// Record types used by the store.
const (
	recordRequest   = "request"
	recordCert      = "cert"
	recordKey       = "key"
	recordCA        = "ca"
	recordCAKey     = "cakey"
	recordCRL       = "crl"
	recordInventory = "inventory"

	caBundleID = "bundle"
	caStateID  = "state"
)

// CAState is the persistent metadata for an authority.
type CAState struct {
	Subject    string    `json:"subject"`
	IssuerID   string    `json:"issuer_id"`
	NextSerial int64     `json:"next_serial"`
	NotBefore  time.Time `json:"not_before"`
	NotAfter   time.Time `json:"not_after"`
}

// InventoryEntry records who a serial was issued to.
type InventoryEntry struct {
	Serial    string    `json:"serial"`
	Host      string    `json:"host"`
	IssuerID  string    `json:"issuer_id"`
	Subject   string    `json:"subject"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
}

type pemRecord struct {
	PEM string `json:"pem"`
}

type bundleRecord struct {
	PEMs []string `json:"pems"`
}

type crlRecord struct {
	PEM    string `json:"pem"`
	Number uint64 `json:"number"`
}

// Store looks up requests, certificates and CA material for one authority.
type Store struct {
	repo  storage.Repository
	caID  string
	names *OIDNames
}

// NewStore returns a Store over repo scoped to caID. A nil names uses the
// built-in OID table.
func NewStore(repo storage.Repository, caID string, names *OIDNames) *Store {
	if names == nil {
		names = DefaultOIDNames()
	}
	return &Store{repo: repo, caID: caID, names: names}
}

// Repository returns the underlying record storage.
func (s *Store) Repository() storage.Repository {
	return s.repo
}

// CAID returns the storage namespace of the authority.
func (s *Store) CAID() string {
	return s.caID
}

func isAbsent(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrCANotFound)
}

func (s *Store) get(recordType, id string, v any) (uint64, error) {
	rec, err := s.repo.Get(s.caID, recordType, id)
	if err != nil {
		if isAbsent(err) {
			return 0, fmt.Errorf("%w: %s %s", ErrNotFound, recordType, id)
		}
		return 0, err
	}
	if err := rec.Decode(v); err != nil {
		return 0, fmt.Errorf("%s %s: %w", recordType, id, err)
	}
	return rec.Version, nil
}

func (s *Store) list(recordType string) ([]string, error) {
	ids, err := s.repo.List(s.caID, recordType)
	if err != nil {
		if isAbsent(err) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

// FindCertificate returns the issued certificate for host, or ErrNotFound.
func (s *Store) FindCertificate(host string) (*Certificate, error) {
	var rec pemRecord
	if _, err := s.get(recordCert, host, &rec); err != nil {
		return nil, err
	}
	cert, err := parseCertificatePEM(rec.PEM)
	if err != nil {
		return nil, fmt.Errorf("certificate for %s: %w", host, err)
	}
	return newCertificate(host, cert, s.names), nil
}

// FindRequest returns the pending request for host, or ErrNotFound.
func (s *Store) FindRequest(host string) (*CertificateRequest, error) {
	var rec pemRecord
	if _, err := s.get(recordRequest, host, &rec); err != nil {
		return nil, err
	}
	return ParseRequestPEM(host, rec.PEM, s.names)
}

// HasCertificate reports whether host has an issued certificate.
func (s *Store) HasCertificate(host string) (bool, error) {
	return s.exists(recordCert, host)
}

// HasRequest reports whether host has a pending request.
func (s *Store) HasRequest(host string) (bool, error) {
	return s.exists(recordRequest, host)
}

func (s *Store) exists(recordType, id string) (bool, error) {
	_, err := s.repo.Get(s.caID, recordType, id)
	switch {
	case err == nil:
		return true, nil
	case isAbsent(err):
		return false, nil
	default:
		return false, err
	}
}

// SignedHosts lists hosts with issued certificates in store order.
func (s *Store) SignedHosts() ([]string, error) {
	return s.list(recordCert)
}

// WaitingHosts lists hosts with pending requests in store order.
func (s *Store) WaitingHosts() ([]string, error) {
	return s.list(recordRequest)
}

// SubmitRequest stores a PEM CSR as the pending request for host. The CSR
// subject must name host and its signature must verify.
func (s *Store) SubmitRequest(host, csrPEM string) error {
	req, err := ParseRequestPEM(host, csrPEM, s.names)
	if err != nil {
		return err
	}
	if err := req.Request.CheckSignature(); err != nil {
		return fmt.Errorf("%w: certificate request for %s has an invalid signature: %v", ErrPolicyViolation, host, err)
	}
	if cn := req.Request.Subject.CommonName; util.NormalizeHost(cn) != host {
		return fmt.Errorf("%w: certificate request subject %q does not match host %q", ErrPolicyViolation, cn, host)
	}
	rec, err := storage.Encode(pemRecord{PEM: req.PEM()}, 0)
	if err != nil {
		return err
	}
	return s.repo.Put(s.caID, recordRequest, host, rec)
}

// Bundle returns the CA certificates ordered root first.
func (s *Store) Bundle() ([]*x509.Certificate, error) {
	var rec bundleRecord
	if _, err := s.get(recordCA, caBundleID, &rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	out := make([]*x509.Certificate, 0, len(rec.PEMs))
	for i, p := range rec.PEMs {
		cert, err := parseCertificatePEM(p)
		if err != nil {
			return nil, fmt.Errorf("CA bundle entry %d: %w", i, err)
		}
		out = append(out, cert)
	}
	return out, nil
}

// State returns the CA state and its record version.
func (s *Store) State() (*CAState, uint64, error) {
	var state CAState
	version, err := s.get(recordCA, caStateID, &state)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, 0, ErrNotInitialized
		}
		return nil, 0, err
	}
	return &state, version, nil
}

// CRL returns the current CRL for issuerID with its stored number and
// record version.
func (s *Store) CRL(issuerID string) (*x509.RevocationList, uint64, error) {
	var rec crlRecord
	version, err := s.get(recordCRL, issuerID, &rec)
	if err != nil {
		return nil, 0, err
	}
	block, _ := pem.Decode([]byte(rec.PEM))
	if block == nil || block.Type != pemCRL {
		return nil, 0, fmt.Errorf("CRL for issuer %s: invalid PEM data", issuerID)
	}
	crl, err := x509.ParseRevocationList(block.Bytes)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing CRL for issuer %s: %w", issuerID, err)
	}
	return crl, version, nil
}

// Inventory returns every inventory entry in serial order.
func (s *Store) Inventory() ([]InventoryEntry, error) {
	ids, err := s.list(recordInventory)
	if err != nil {
		return nil, err
	}
	out := make([]InventoryEntry, 0, len(ids))
	for _, id := range ids {
		var entry InventoryEntry
		if _, err := s.get(recordInventory, id, &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// InventoryEntry returns the inventory entry for serial, or ErrNotFound.
func (s *Store) InventoryEntry(serial *big.Int) (*InventoryEntry, error) {
	var entry InventoryEntry
	if _, err := s.get(recordInventory, SerialID(serial), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// SerialID is the storage key and display form of a serial number.
func SerialID(serial *big.Int) string {
	return fmt.Sprintf("%040x", serial)
}

// IssuerID identifies a CA certificate by its subject key identifier,
// falling back to a hash of its public key.
func IssuerID(cert *x509.Certificate) string {
	if len(cert.SubjectKeyId) > 0 {
		return util.HexEncode(cert.SubjectKeyId)
	}
	sum := sha1.Sum(cert.RawSubjectPublicKeyInfo)
	return util.HexEncode(sum[:])
}

// AuthorityID identifies the issuer of cert the same way IssuerID does,
// using the authority key identifier when present.
func AuthorityID(cert *x509.Certificate, bundle []*x509.Certificate) string {
	if len(cert.AuthorityKeyId) > 0 {
		return util.HexEncode(cert.AuthorityKeyId)
	}
	if issuer := findIssuer(cert, bundle); issuer != nil {
		return IssuerID(issuer)
	}
	return ""
}

// findIssuer returns the bundle certificate whose key signed cert.
func findIssuer(cert *x509.Certificate, bundle []*x509.Certificate) *x509.Certificate {
	for i := len(bundle) - 1; i >= 0; i-- {
		ca := bundle[i]
		if len(cert.AuthorityKeyId) > 0 && len(ca.SubjectKeyId) > 0 {
			if string(cert.AuthorityKeyId) != string(ca.SubjectKeyId) {
				continue
			}
		}
		if cert.CheckSignatureFrom(ca) == nil {
			return ca
		}
	}
	return nil
}

func inventoryEntry(host string, cert *x509.Certificate, issuerID string) InventoryEntry {
	return InventoryEntry{
		Serial:    SerialID(cert.SerialNumber),
		Host:      host,
		IssuerID:  issuerID,
		Subject:   cert.Subject.String(),
		NotBefore: cert.NotBefore.UTC(),
		NotAfter:  cert.NotAfter.UTC(),
	}
}

func parseCertificatePEM(data string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil || block.Type != pemCertificate {
		return nil, fmt.Errorf("invalid PEM data")
	}
	return x509.ParseCertificate(block.Bytes)
}

// customExtensions returns the private-arc extensions of cert.
func customExtensions(cert *x509.Certificate, names *OIDNames) []Extension {
	var out []Extension
	for _, ext := range cert.Extensions {
		if !isPrivateArc(ext.Id) {
			continue
		}
		out = append(out, Extension{OID: ext.Id, Name: names.Name(ext.Id), Value: decodeValue(ext.Value)})
	}
	return out
}

func newCertificate(host string, cert *x509.Certificate, names *OIDNames) *Certificate {
	return &Certificate{
		Host:             host,
		Cert:             cert,
		CustomExtensions: customExtensions(cert, names),
		BaseExtensions:   BaseExtensions(cert, names),
	}
}
