package ca

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"strings"
)

const textTime = "Jan _2 15:04:05 2006 MST"

var extensionLabels = map[string]string{
	oidBasicConstraints.String(): "X509v3 Basic Constraints",
	oidKeyUsage.String():         "X509v3 Key Usage",
	oidExtKeyUsage.String():      "X509v3 Extended Key Usage",
	oidSubjectKeyID.String():     "X509v3 Subject Key Identifier",
	oidAuthorityKeyID.String():   "X509v3 Authority Key Identifier",
	oidNetscapeComment.String():  "Netscape Comment",
	oidSubjectAltName.String():   "X509v3 Subject Alternative Name",
}

// CertificateText renders cert in the layout of `openssl x509 -text`.
func CertificateText(cert *x509.Certificate, names *OIDNames) string {
	if names == nil {
		names = DefaultOIDNames()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Certificate:\n")
	fmt.Fprintf(&b, "    Data:\n")
	fmt.Fprintf(&b, "        Version: %d (0x%x)\n", cert.Version, cert.Version-1)
	fmt.Fprintf(&b, "        Serial Number: %s (0x%x)\n", cert.SerialNumber, cert.SerialNumber)
	fmt.Fprintf(&b, "    Signature Algorithm: %s\n", cert.SignatureAlgorithm)
	fmt.Fprintf(&b, "        Issuer: %s\n", cert.Issuer)
	fmt.Fprintf(&b, "        Validity\n")
	fmt.Fprintf(&b, "            Not Before: %s\n", cert.NotBefore.UTC().Format(textTime))
	fmt.Fprintf(&b, "            Not After : %s\n", cert.NotAfter.UTC().Format(textTime))
	fmt.Fprintf(&b, "        Subject: %s\n", cert.Subject)
	fmt.Fprintf(&b, "        Subject Public Key Info:\n")
	fmt.Fprintf(&b, "            Public Key Algorithm: %s\n", cert.PublicKeyAlgorithm)
	if bits := publicKeyBits(cert.PublicKey); bits > 0 {
		fmt.Fprintf(&b, "                Public-Key: (%d bit)\n", bits)
	}

	base := make(map[string]string)
	for _, ext := range BaseExtensions(cert, names) {
		base[ext.OID.String()] = ext.Value
	}
	if len(cert.Extensions) > 0 {
		fmt.Fprintf(&b, "        X509v3 extensions:\n")
	}
	for _, ext := range cert.Extensions {
		key := ext.Id.String()
		label, ok := extensionLabels[key]
		if !ok {
			label = names.Name(ext.Id)
		}
		critical := ""
		if ext.Critical {
			critical = " critical"
		}
		var value string
		switch {
		case ext.Id.Equal(oidSubjectAltName):
			value = strings.Join(prefixed("DNS:", cert.DNSNames), ", ")
		case base[key] != "":
			value = base[key]
		default:
			value = decodeValue(ext.Value)
		}
		fmt.Fprintf(&b, "            %s:%s\n", label, critical)
		fmt.Fprintf(&b, "                %s\n", value)
	}
	fmt.Fprintf(&b, "    Signature Algorithm: %s\n", cert.SignatureAlgorithm)
	return b.String()
}

func publicKeyBits(pub any) int {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	case *rsa.PublicKey:
		return k.N.BitLen()
	case ed25519.PublicKey:
		return 256
	default:
		return 0
	}
}
