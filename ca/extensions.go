package ca

import (
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/jmcleod/ironca/internal/util"
)

var keyUsageNames = []struct {
	usage x509.KeyUsage
	name  string
}{
	{x509.KeyUsageDigitalSignature, "Digital Signature"},
	{x509.KeyUsageContentCommitment, "Non Repudiation"},
	{x509.KeyUsageKeyEncipherment, "Key Encipherment"},
	{x509.KeyUsageDataEncipherment, "Data Encipherment"},
	{x509.KeyUsageKeyAgreement, "Key Agreement"},
	{x509.KeyUsageCertSign, "Certificate Sign"},
	{x509.KeyUsageCRLSign, "CRL Sign"},
	{x509.KeyUsageEncipherOnly, "Encipher Only"},
	{x509.KeyUsageDecipherOnly, "Decipher Only"},
}

var extKeyUsageNames = map[x509.ExtKeyUsage]string{
	x509.ExtKeyUsageAny:             "Any Extended Key Usage",
	x509.ExtKeyUsageServerAuth:      "TLS Web Server Authentication",
	x509.ExtKeyUsageClientAuth:      "TLS Web Client Authentication",
	x509.ExtKeyUsageCodeSigning:     "Code Signing",
	x509.ExtKeyUsageEmailProtection: "E-mail Protection",
	x509.ExtKeyUsageTimeStamping:    "Time Stamping",
	x509.ExtKeyUsageOCSPSigning:     "OCSP Signing",
}

// BaseExtensions renders the standard extensions of cert the way OpenSSL
// prints them, in the order they appear in the certificate.
func BaseExtensions(cert *x509.Certificate, names *OIDNames) []Extension {
	if names == nil {
		names = DefaultOIDNames()
	}
	var out []Extension
	for _, ext := range cert.Extensions {
		var value string
		switch {
		case ext.Id.Equal(oidBasicConstraints):
			value = basicConstraintsText(cert)
		case ext.Id.Equal(oidKeyUsage):
			value = keyUsageText(cert.KeyUsage)
		case ext.Id.Equal(oidExtKeyUsage):
			value = extKeyUsageText(cert)
		case ext.Id.Equal(oidSubjectKeyID):
			value = util.ColonHex(cert.SubjectKeyId)
		case ext.Id.Equal(oidAuthorityKeyID):
			value = "keyid:" + util.ColonHex(cert.AuthorityKeyId)
		case ext.Id.Equal(oidNetscapeComment):
			value = decodeValue(ext.Value)
		default:
			continue
		}
		out = append(out, Extension{OID: cloneOID(ext.Id), Name: names.Name(ext.Id), Value: value})
	}
	return out
}

func basicConstraintsText(cert *x509.Certificate) string {
	if !cert.IsCA {
		return "CA:FALSE"
	}
	if cert.MaxPathLen > 0 || cert.MaxPathLenZero {
		return fmt.Sprintf("CA:TRUE, pathlen:%d", cert.MaxPathLen)
	}
	return "CA:TRUE"
}

func keyUsageText(usage x509.KeyUsage) string {
	var parts []string
	for _, ku := range keyUsageNames {
		if usage&ku.usage != 0 {
			parts = append(parts, ku.name)
		}
	}
	return strings.Join(parts, ", ")
}

func extKeyUsageText(cert *x509.Certificate) string {
	var parts []string
	for _, eku := range cert.ExtKeyUsage {
		if name, ok := extKeyUsageNames[eku]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, fmt.Sprintf("unknown (%d)", eku))
		}
	}
	for _, oid := range cert.UnknownExtKeyUsage {
		parts = append(parts, oid.String())
	}
	return strings.Join(parts, ", ")
}
