package ca

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"time"
)

// Status is the derived state of a host. It is never stored.
type Status int

const (
	StatusRequest Status = iota
	StatusSigned
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusRequest:
		return "request"
	case StatusSigned:
		return "signed"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Glyph is the single-character marker used in listings.
func (s Status) Glyph() string {
	switch s {
	case StatusSigned:
		return "+"
	case StatusInvalid:
		return "-"
	default:
		return " "
	}
}

// Extension is a decoded attribute or extension, named by its short name
// when one is known and by its dotted OID otherwise.
type Extension struct {
	OID   asn1.ObjectIdentifier
	Name  string
	Value string
}

// CertificateRequest is a pending CSR for a host. It has no serial; signing
// replaces it with a Certificate.
type CertificateRequest struct {
	Host              string
	Request           *x509.CertificateRequest
	CustomAttributes  []Extension
	ExtensionRequests []Extension
}

// AltNames returns the requested subject alternative names as "DNS:name".
func (r *CertificateRequest) AltNames() []string {
	return prefixed("DNS:", r.Request.DNSNames)
}

// Digest fingerprints the DER encoding of the request.
func (r *CertificateRequest) Digest(algorithm string) (string, error) {
	return Fingerprint(r.Request.Raw, algorithm)
}

// PEM returns the request in PEM form.
func (r *CertificateRequest) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: pemCertificateRequest, Bytes: r.Request.Raw}))
}

// Certificate is an issued, immutable certificate for a host.
type Certificate struct {
	Host             string
	Cert             *x509.Certificate
	CustomExtensions []Extension
	BaseExtensions   []Extension
}

func (c *Certificate) Serial() *big.Int {
	return c.Cert.SerialNumber
}

func (c *Certificate) Expiration() time.Time {
	return c.Cert.NotAfter
}

// AltNames returns the subject alternative names as "DNS:name".
func (c *Certificate) AltNames() []string {
	return prefixed("DNS:", c.Cert.DNSNames)
}

// Digest fingerprints the DER encoding of the certificate.
func (c *Certificate) Digest(algorithm string) (string, error) {
	return Fingerprint(c.Cert.Raw, algorithm)
}

// PEM returns the certificate in PEM form.
func (c *Certificate) PEM() string {
	return EncodeCertificatePEM(c.Cert.Raw)
}

func prefixed(prefix string, names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

const (
	pemCertificate        = "CERTIFICATE"
	pemCertificateRequest = "CERTIFICATE REQUEST"
	pemCRL                = "X509 CRL"
)

// EncodeCertificatePEM encodes DER certificate bytes as PEM.
func EncodeCertificatePEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: pemCertificate, Bytes: der}))
}

// EncodeCRLPEM encodes DER CRL bytes as PEM.
func EncodeCRLPEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: pemCRL, Bytes: der}))
}
