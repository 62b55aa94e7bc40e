// Package catest builds throwaway certificate chains for tests: a root CA,
// an intermediate revoked by the root, and a leaf CA under the
// intermediate, each with signed and revoked node certificates.
package catest

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/internal/util"
	"github.com/jmcleod/ironca/storage"
)

// Names used by the chained PKI.
const (
	RootCA            = "root-ca"
	IntermediateCA    = "revoked-int-ca"
	LeafCA            = "leaf-ca"
	UnrevokedRootNode = "unrevoked-root-node"
	RevokedRootNode   = "revoked-root-node"
	UnrevokedIntNode  = "unrevoked-int-node"
	UnrevokedLeafNode = "unrevoked-leaf-node"
	RevokedLeafNode   = "revoked-leaf-node"
)

const (
	validity = 5 * 365 * 24 * time.Hour
	reason   = ca.ReasonKeyCompromise
)

// Authority is one CA of the fixture with its current CRL.
type Authority struct {
	Name string
	Key  *ecdsa.PrivateKey
	Cert *x509.Certificate
	// CRL is the DER encoding of the authority's latest CRL.
	CRL []byte
}

// PKI is the chained fixture.
type PKI struct {
	Root         *Authority
	Intermediate *Authority
	Leaf         *Authority
	// Nodes holds every node certificate by name.
	Nodes map[string]*x509.Certificate
	// Issuers maps each node name to the CA that signed it.
	Issuers map[string]*Authority
}

// NewChainedPKI builds the fixture with every validity window starting one
// second before now. Keys are generated concurrently.
func NewChainedPKI(ctx context.Context, now time.Time) (*PKI, error) {
	names := []string{
		RootCA, IntermediateCA, LeafCA,
		UnrevokedRootNode, RevokedRootNode, UnrevokedIntNode, UnrevokedLeafNode, RevokedLeafNode,
	}
	keys := make([]*ecdsa.PrivateKey, len(names))
	g, _ := errgroup.WithContext(ctx)
	for i := range names {
		g.Go(func() error {
			key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
			if err != nil {
				return fmt.Errorf("generating key for %s: %w", names[i], err)
			}
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	key := make(map[string]*ecdsa.PrivateKey, len(names))
	for i, n := range names {
		key[n] = keys[i]
	}

	b := &builder{notBefore: now.Add(-time.Second)}
	root, err := b.rootCA(RootCA, key[RootCA])
	if err != nil {
		return nil, err
	}
	intermediate, err := b.intermediateCA(IntermediateCA, key[IntermediateCA], root)
	if err != nil {
		return nil, err
	}
	leaf, err := b.intermediateCA(LeafCA, key[LeafCA], intermediate)
	if err != nil {
		return nil, err
	}

	p := &PKI{
		Root:         root,
		Intermediate: intermediate,
		Leaf:         leaf,
		Nodes:        make(map[string]*x509.Certificate),
		Issuers:      make(map[string]*Authority),
	}
	nodes := []struct {
		name    string
		issuer  *Authority
		revoked bool
	}{
		{UnrevokedRootNode, root, false},
		{RevokedRootNode, root, true},
		{UnrevokedIntNode, intermediate, false},
		{UnrevokedLeafNode, leaf, false},
		{RevokedLeafNode, leaf, true},
	}
	for _, n := range nodes {
		cert, err := b.node(n.name, key[n.name], n.issuer)
		if err != nil {
			return nil, err
		}
		if n.revoked {
			if err := b.revoke(n.issuer, cert.SerialNumber); err != nil {
				return nil, err
			}
		}
		p.Nodes[n.name] = cert
		p.Issuers[n.name] = n.issuer
	}
	if err := b.revoke(root, intermediate.Cert.SerialNumber); err != nil {
		return nil, err
	}
	return p, nil
}

// ChainedPKI is NewChainedPKI for tests; it fails tb on error.
func ChainedPKI(tb testing.TB) *PKI {
	tb.Helper()
	p, err := NewChainedPKI(context.Background(), time.Now())
	if err != nil {
		tb.Fatalf("building PKI fixture: %v", err)
	}
	return p
}

// Authorities returns the CAs root first.
func (p *PKI) Authorities() []*Authority {
	return []*Authority{p.Root, p.Intermediate, p.Leaf}
}

// Bundle returns the CA certificates root first.
func (p *PKI) Bundle() []*x509.Certificate {
	return []*x509.Certificate{p.Root.Cert, p.Intermediate.Cert, p.Leaf.Cert}
}

// CRLChain returns the DER CRLs in the same order as Bundle.
func (p *PKI) CRLChain() [][]byte {
	return [][]byte{p.Root.CRL, p.Intermediate.CRL, p.Leaf.CRL}
}

// BundlePEM renders the CA bundle as concatenated PEM blocks.
func (p *PKI) BundlePEM() string {
	var parts []string
	for _, c := range p.Bundle() {
		parts = append(parts, ca.EncodeCertificatePEM(c.Raw))
	}
	return strings.Join(parts, "\n")
}

// CRLChainPEM renders the CRL chain as concatenated PEM blocks.
func (p *PKI) CRLChainPEM() string {
	var parts []string
	for _, der := range p.CRLChain() {
		parts = append(parts, ca.EncodeCRLPEM(der))
	}
	return strings.Join(parts, "\n")
}

// Revoked reports whether the named node was revoked by its issuer.
func (p *PKI) Revoked(name string) bool {
	return strings.HasPrefix(name, "revoked-")
}

// Install writes the bundle, CRLs, CA keys and node certificates into repo
// under caID so a ca.Authority over the same repository serves them. The
// leaf CA becomes the signing CA.
func (p *PKI) Install(ctx context.Context, repo storage.Repository, caID, passphrase string, opts ...ca.SoftwareKeyStoreOption) error {
	keys := ca.NewCAKeyStore(repo, caID, passphrase, opts...)
	crls := make(map[string][]byte)
	for _, a := range p.Authorities() {
		id := ca.IssuerID(a.Cert)
		if err := keys.Store(ctx, id, a.Key); err != nil {
			return fmt.Errorf("storing key for %s: %w", a.Name, err)
		}
		crls[id] = a.CRL
	}

	state := ca.CAState{
		Subject:    p.Leaf.Cert.Subject.String(),
		IssuerID:   ca.IssuerID(p.Leaf.Cert),
		NextSerial: 1,
		NotBefore:  p.Leaf.Cert.NotBefore,
		NotAfter:   p.Leaf.Cert.NotAfter,
	}
	if err := ca.InstallCA(repo, caID, p.Bundle(), crls, state); err != nil {
		return fmt.Errorf("installing CA bundle: %w", err)
	}
	for name, cert := range p.Nodes {
		if err := ca.InstallCertificate(repo, caID, name, cert, ca.IssuerID(p.Issuers[name].Cert)); err != nil {
			return fmt.Errorf("installing %s: %w", name, err)
		}
	}
	return nil
}

type builder struct {
	notBefore time.Time
}

func (b *builder) template(cn string, pub crypto.PublicKey, isCA bool) (*x509.Certificate, error) {
	serial, err := util.RandomSerial()
	if err != nil {
		return nil, err
	}
	t := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    b.notBefore,
		NotAfter:     b.notBefore.Add(validity),
		SubjectKeyId: ca.SubjectKeyID(pub),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	if isCA {
		t.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
		t.BasicConstraintsValid = true
		t.IsCA = true
	}
	return t, nil
}

func (b *builder) issue(template *x509.Certificate, pub crypto.PublicKey, parent *x509.Certificate, signer crypto.Signer) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, fmt.Errorf("signing %s: %w", template.Subject.CommonName, err)
	}
	return x509.ParseCertificate(der)
}

func (b *builder) rootCA(cn string, key *ecdsa.PrivateKey) (*Authority, error) {
	t, err := b.template(cn, key.Public(), true)
	if err != nil {
		return nil, err
	}
	cert, err := b.issue(t, key.Public(), t, key)
	if err != nil {
		return nil, err
	}
	return b.withCRL(cn, key, cert)
}

func (b *builder) intermediateCA(cn string, key *ecdsa.PrivateKey, issuer *Authority) (*Authority, error) {
	t, err := b.template(cn, key.Public(), true)
	if err != nil {
		return nil, err
	}
	cert, err := b.issue(t, key.Public(), issuer.Cert, issuer.Key)
	if err != nil {
		return nil, err
	}
	return b.withCRL(cn, key, cert)
}

func (b *builder) withCRL(cn string, key *ecdsa.PrivateKey, cert *x509.Certificate) (*Authority, error) {
	crl, err := ca.NewCRL(cert, key, b.notBefore, validity)
	if err != nil {
		return nil, err
	}
	return &Authority{Name: cn, Key: key, Cert: cert, CRL: crl}, nil
}

func (b *builder) node(cn string, key *ecdsa.PrivateKey, issuer *Authority) (*x509.Certificate, error) {
	t, err := b.template(cn, key.Public(), false)
	if err != nil {
		return nil, err
	}
	return b.issue(t, key.Public(), issuer.Cert, issuer.Key)
}

func (b *builder) revoke(a *Authority, serial *big.Int) error {
	crl, err := x509.ParseRevocationList(a.CRL)
	if err != nil {
		return fmt.Errorf("parsing CRL of %s: %w", a.Name, err)
	}
	der, err := ca.AppendRevocation(crl, a.Cert, a.Key, x509.RevocationListEntry{
		SerialNumber:   serial,
		RevocationTime: b.notBefore,
		ReasonCode:     reason,
	}, b.notBefore, validity)
	if err != nil {
		return fmt.Errorf("revoking %s under %s: %w", serial, a.Name, err)
	}
	a.CRL = der
	return nil
}
