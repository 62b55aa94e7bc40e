package ca

import "context"

// GenerateOptions controls the request built by Service.Generate. Keys of
// Attributes and ExtensionRequests are short names or dotted OIDs.
type GenerateOptions struct {
	DNSAltNames       []string
	Attributes        map[string]string
	ExtensionRequests map[string]string
}

// Service is the certificate machinery the dispatcher drives. Methods that
// name a host return ErrNotFound when the host has nothing to act on.
type Service interface {
	Generate(ctx context.Context, host string, opts GenerateOptions) (*Certificate, error)
	Sign(ctx context.Context, host string, allowDNSAltNames bool) (*Certificate, error)
	// Verify returns a *VerificationError when the certificate fails chain
	// or revocation checks.
	Verify(ctx context.Context, host string) error
	// List returns signed hosts in store order, restricted to hosts when
	// any are given.
	List(ctx context.Context, hosts ...string) ([]string, error)
	Waiting(ctx context.Context) ([]string, error)
	Print(ctx context.Context, host string) (string, error)
	Destroy(ctx context.Context, host string) error
	Revoke(ctx context.Context, host string) error
	Digest(ctx context.Context, host, algorithm string) (string, error)
	Reinventory(ctx context.Context) error
}

// CertificateStore finds requests and certificates by host. Both methods
// return ErrNotFound when the host has no such record.
type CertificateStore interface {
	FindCertificate(host string) (*Certificate, error)
	FindRequest(host string) (*CertificateRequest, error)
}

var (
	_ Service          = (*Authority)(nil)
	_ CertificateStore = (*Store)(nil)
)
