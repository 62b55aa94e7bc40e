package ca

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"slices"
	"sort"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// RequestOptions describes the optional content of a generated CSR. Keys
// of Attributes and ExtensionRequests are short names or dotted OIDs.
type RequestOptions struct {
	DNSAltNames       []string
	Attributes        map[string]string
	ExtensionRequests map[string]string
}

// CreateRequest builds a DER-encoded CSR for host signed by key.
//
// Extension requests travel in the standard extensionRequest attribute.
// Custom attributes are encoded as SET { UTF8String }, which crypto/x509
// cannot emit, so when any are present the request body is re-assembled
// and re-signed here.
func CreateRequest(key crypto.Signer, host string, opts RequestOptions, names *OIDNames) ([]byte, error) {
	if names == nil {
		names = DefaultOIDNames()
	}

	template := &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: host},
	}
	if len(opts.DNSAltNames) > 0 {
		template.DNSNames = withHost(host, opts.DNSAltNames)
	}
	for _, name := range sortedKeys(opts.ExtensionRequests) {
		oid, err := names.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("extension request %q: %w", name, err)
		}
		value, err := asn1.MarshalWithParams(opts.ExtensionRequests[name], "utf8")
		if err != nil {
			return nil, fmt.Errorf("encoding extension request %q: %w", name, err)
		}
		template.ExtraExtensions = append(template.ExtraExtensions, pkix.Extension{Id: oid, Value: value})
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate request: %w", err)
	}
	if len(opts.Attributes) == 0 {
		return der, nil
	}

	var attrs [][]byte
	for _, name := range sortedKeys(opts.Attributes) {
		oid, err := names.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("custom attribute %q: %w", name, err)
		}
		if oid.Equal(oidExtensionRequest) {
			return nil, fmt.Errorf("custom attribute %q: extensionRequest is reserved", name)
		}
		attr, err := marshalAttribute(oid, opts.Attributes[name])
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}

	parsed, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("parsing generated request: %w", err)
	}
	tbs, err := appendAttributes(parsed.RawTBSCertificateRequest, attrs)
	if err != nil {
		return nil, err
	}
	return signRequest(tbs, key)
}

// ParseRequestPEM decodes a PEM CSR for host and extracts its custom
// attributes and extension requests.
func ParseRequestPEM(host, pemData string, names *OIDNames) (*CertificateRequest, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil || block.Type != pemCertificateRequest {
		return nil, fmt.Errorf("certificate request for %s: invalid PEM data", host)
	}
	return ParseRequest(host, block.Bytes, names)
}

// ParseRequest parses a DER CSR for host.
func ParseRequest(host string, der []byte, names *OIDNames) (*CertificateRequest, error) {
	if names == nil {
		names = DefaultOIDNames()
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate request for %s: %w", host, err)
	}
	attrs, err := parseAttributes(csr.RawTBSCertificateRequest, names)
	if err != nil {
		return nil, fmt.Errorf("parsing attributes of %s: %w", host, err)
	}
	req := &CertificateRequest{Host: host, Request: csr, CustomAttributes: attrs}
	for _, ext := range csr.Extensions {
		if ext.Id.Equal(oidSubjectAltName) {
			continue
		}
		req.ExtensionRequests = append(req.ExtensionRequests, Extension{
			OID:   ext.Id,
			Name:  names.Name(ext.Id),
			Value: decodeValue(ext.Value),
		})
	}
	return req, nil
}

func marshalAttribute(oid asn1.ObjectIdentifier, value string) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oid)
		b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.UTF8String, func(b *cryptobyte.Builder) {
				b.AddBytes([]byte(value))
			})
		})
	})
	out, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding attribute %s: %w", oid, err)
	}
	return out, nil
}

var attributesTag = cbasn1.Tag(0).ContextSpecific().Constructed()

// appendAttributes returns tbs with extra attributes merged into its [0]
// attribute set. The set is re-sorted to keep the encoding DER.
func appendAttributes(tbs []byte, extra [][]byte) ([]byte, error) {
	input := cryptobyte.String(tbs)
	var body, version, subject, spki, attrSet cryptobyte.String
	if !input.ReadASN1(&body, cbasn1.SEQUENCE) ||
		!body.ReadASN1Element(&version, cbasn1.INTEGER) ||
		!body.ReadASN1Element(&subject, cbasn1.SEQUENCE) ||
		!body.ReadASN1Element(&spki, cbasn1.SEQUENCE) ||
		!body.ReadASN1(&attrSet, attributesTag) {
		return nil, fmt.Errorf("malformed certificate request body")
	}

	attrs := slices.Clone(extra)
	for !attrSet.Empty() {
		var attr cryptobyte.String
		if !attrSet.ReadASN1Element(&attr, cbasn1.SEQUENCE) {
			return nil, fmt.Errorf("malformed certificate request attribute")
		}
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool { return bytes.Compare(attrs[i], attrs[j]) < 0 })

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(version)
		b.AddBytes(subject)
		b.AddBytes(spki)
		b.AddASN1(attributesTag, func(b *cryptobyte.Builder) {
			for _, a := range attrs {
				b.AddBytes(a)
			}
		})
	})
	return b.Bytes()
}

// parseAttributes extracts every attribute except extensionRequest.
func parseAttributes(tbs []byte, names *OIDNames) ([]Extension, error) {
	input := cryptobyte.String(tbs)
	var body, attrSet cryptobyte.String
	var present bool
	if !input.ReadASN1(&body, cbasn1.SEQUENCE) ||
		!body.SkipASN1(cbasn1.INTEGER) ||
		!body.SkipASN1(cbasn1.SEQUENCE) ||
		!body.SkipASN1(cbasn1.SEQUENCE) ||
		!body.ReadOptionalASN1(&attrSet, &present, attributesTag) {
		return nil, fmt.Errorf("malformed certificate request body")
	}

	var out []Extension
	for !attrSet.Empty() {
		var attr, values cryptobyte.String
		var oid asn1.ObjectIdentifier
		if !attrSet.ReadASN1(&attr, cbasn1.SEQUENCE) ||
			!attr.ReadASN1ObjectIdentifier(&oid) ||
			!attr.ReadASN1(&values, cbasn1.SET) {
			return nil, fmt.Errorf("malformed certificate request attribute")
		}
		if oid.Equal(oidExtensionRequest) {
			continue
		}
		for !values.Empty() {
			var value cryptobyte.String
			if !values.ReadAnyASN1Element(&value, nil) {
				return nil, fmt.Errorf("malformed value for attribute %s", oid)
			}
			out = append(out, Extension{OID: oid, Name: names.Name(oid), Value: decodeValue(value)})
		}
	}
	return out, nil
}

// signRequest signs a request body and wraps it into a CertificationRequest.
func signRequest(tbs []byte, key crypto.Signer) ([]byte, error) {
	sigAlg, hashFunc, err := signatureAlgorithmFor(key.Public())
	if err != nil {
		return nil, err
	}
	digest := tbs
	if hashFunc != 0 {
		h := hashFunc.New()
		h.Write(tbs)
		digest = h.Sum(nil)
	}
	sig, err := key.Sign(rand.Reader, digest, hashFunc)
	if err != nil {
		return nil, fmt.Errorf("signing certificate request: %w", err)
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(tbs)
		b.AddBytes(sigAlg)
		b.AddASN1BitString(sig)
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("parsing signed request: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("verifying signed request: %w", err)
	}
	return der, nil
}

var (
	oidSignatureECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidSignatureSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSignatureEd25519         = asn1.ObjectIdentifier{1, 3, 101, 112}
)

// signatureAlgorithmFor returns the DER AlgorithmIdentifier and hash used
// for signing with pub's private half.
func signatureAlgorithmFor(pub crypto.PublicKey) ([]byte, crypto.Hash, error) {
	var b cryptobyte.Builder
	var h crypto.Hash
	switch pub.(type) {
	case *ecdsa.PublicKey:
		h = crypto.SHA256
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidSignatureECDSAWithSHA256)
		})
	case *rsa.PublicKey:
		h = crypto.SHA256
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidSignatureSHA256WithRSA)
			b.AddASN1NULL()
		})
	case ed25519.PublicKey:
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidSignatureEd25519)
		})
	default:
		return nil, 0, fmt.Errorf("unsupported key type %T", pub)
	}
	out, err := b.Bytes()
	return out, h, err
}

func withHost(host string, altNames []string) []string {
	out := []string{host}
	for _, n := range altNames {
		if n != host && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
