package ca

import (
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Private arcs whose extension requests are copied into signed certificates.
var (
	oidRegisteredExtArc = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 34380, 1, 1}
	oidPrivateExtArc    = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 34380, 1, 2}
	oidAuthExtArc       = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 34380, 1, 3}
)

var (
	oidExtensionRequest  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 14}
	oidChallengePassword = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 7}
	oidSubjectAltName    = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidBasicConstraints  = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidKeyUsage          = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtKeyUsage       = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidSubjectKeyID      = asn1.ObjectIdentifier{2, 5, 29, 14}
	oidAuthorityKeyID    = asn1.ObjectIdentifier{2, 5, 29, 35}
	oidCRLNumber         = asn1.ObjectIdentifier{2, 5, 29, 20}
	oidNetscapeComment   = asn1.ObjectIdentifier{2, 16, 840, 1, 113730, 1, 13}
)

// builtinOIDNames maps dotted OIDs to the short names operators know them by.
var builtinOIDNames = map[string]string{
	"1.2.840.113549.1.9.7":     "challengePassword",
	"1.2.840.113549.1.9.14":    "extensionRequest",
	"2.5.29.14":                "subjectKeyIdentifier",
	"2.5.29.15":                "keyUsage",
	"2.5.29.17":                "subjectAltName",
	"2.5.29.19":                "basicConstraints",
	"2.5.29.35":                "authorityKeyIdentifier",
	"2.5.29.37":                "extendedKeyUsage",
	"2.16.840.1.113730.1.13":   "nsComment",
	"1.3.6.1.4.1.34380.1.1":    "ppRegCertExt",
	"1.3.6.1.4.1.34380.1.1.1":  "pp_uuid",
	"1.3.6.1.4.1.34380.1.1.2":  "pp_instance_id",
	"1.3.6.1.4.1.34380.1.1.3":  "pp_image_name",
	"1.3.6.1.4.1.34380.1.1.4":  "pp_preshared_key",
	"1.3.6.1.4.1.34380.1.1.5":  "pp_cost_center",
	"1.3.6.1.4.1.34380.1.1.6":  "pp_product",
	"1.3.6.1.4.1.34380.1.1.7":  "pp_project",
	"1.3.6.1.4.1.34380.1.1.8":  "pp_application",
	"1.3.6.1.4.1.34380.1.1.9":  "pp_service",
	"1.3.6.1.4.1.34380.1.1.10": "pp_employee",
	"1.3.6.1.4.1.34380.1.1.11": "pp_created_by",
	"1.3.6.1.4.1.34380.1.1.12": "pp_environment",
	"1.3.6.1.4.1.34380.1.1.13": "pp_role",
	"1.3.6.1.4.1.34380.1.1.14": "pp_software_version",
	"1.3.6.1.4.1.34380.1.1.15": "pp_department",
	"1.3.6.1.4.1.34380.1.1.16": "pp_cluster",
	"1.3.6.1.4.1.34380.1.1.17": "pp_provisioner",
	"1.3.6.1.4.1.34380.1.1.18": "pp_region",
	"1.3.6.1.4.1.34380.1.1.19": "pp_datacenter",
	"1.3.6.1.4.1.34380.1.1.20": "pp_zone",
	"1.3.6.1.4.1.34380.1.1.21": "pp_network",
	"1.3.6.1.4.1.34380.1.1.22": "pp_securitypolicy",
	"1.3.6.1.4.1.34380.1.1.23": "pp_cloudplatform",
	"1.3.6.1.4.1.34380.1.1.24": "pp_apptier",
	"1.3.6.1.4.1.34380.1.1.25": "pp_hostname",
	"1.3.6.1.4.1.34380.1.2":    "ppPrivCertExt",
	"1.3.6.1.4.1.34380.1.3":    "ppAuthCertExt",
	"1.3.6.1.4.1.34380.1.3.1":  "pp_authorization",
	"1.3.6.1.4.1.34380.1.3.13": "pp_auth_role",
}

// OIDNames resolves OIDs to short names and back. The zero value is not
// usable; build one with NewOIDNames.
type OIDNames struct {
	byOID  map[string]string
	byName map[string]asn1.ObjectIdentifier
}

// NewOIDNames returns the built-in table extended with custom, a mapping of
// dotted OID to short name. Custom entries override built-in ones.
func NewOIDNames(custom map[string]string) (*OIDNames, error) {
	n := &OIDNames{
		byOID:  make(map[string]string, len(builtinOIDNames)+len(custom)),
		byName: make(map[string]asn1.ObjectIdentifier, len(builtinOIDNames)+len(custom)),
	}
	for dotted, name := range builtinOIDNames {
		oid, _ := ParseOID(dotted)
		n.add(oid, name)
	}
	for dotted, name := range custom {
		oid, err := ParseOID(dotted)
		if err != nil {
			return nil, fmt.Errorf("oid mapping for %q: %w", name, err)
		}
		if name == "" || strings.ContainsAny(name, " .") {
			return nil, fmt.Errorf("oid mapping for %s: invalid short name %q", dotted, name)
		}
		n.add(oid, name)
	}
	return n, nil
}

// DefaultOIDNames returns the built-in table only.
func DefaultOIDNames() *OIDNames {
	n, _ := NewOIDNames(nil)
	return n
}

func (n *OIDNames) add(oid asn1.ObjectIdentifier, name string) {
	n.byOID[oid.String()] = name
	n.byName[name] = oid
}

// Name returns the short name for oid, or its dotted form.
func (n *OIDNames) Name(oid asn1.ObjectIdentifier) string {
	if name, ok := n.byOID[oid.String()]; ok {
		return name
	}
	return oid.String()
}

// Lookup resolves a short name or dotted OID.
func (n *OIDNames) Lookup(nameOrOID string) (asn1.ObjectIdentifier, error) {
	if oid, ok := n.byName[nameOrOID]; ok {
		return cloneOID(oid), nil
	}
	return ParseOID(nameOrOID)
}

// ParseOID parses a dotted-decimal object identifier.
func ParseOID(dotted string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(dotted, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid OID %q", dotted)
	}
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid OID %q", dotted)
		}
		oid[i] = v
	}
	return oid, nil
}

func cloneOID(oid asn1.ObjectIdentifier) asn1.ObjectIdentifier {
	return append(asn1.ObjectIdentifier(nil), oid...)
}

// underArc reports whether oid lies strictly beneath arc.
func underArc(oid, arc asn1.ObjectIdentifier) bool {
	return len(oid) > len(arc) && oid[:len(arc)].Equal(arc)
}

// isPrivateArc reports whether oid is one of the extension arcs that are
// copied from a request into the signed certificate.
func isPrivateArc(oid asn1.ObjectIdentifier) bool {
	return underArc(oid, oidRegisteredExtArc) || underArc(oid, oidPrivateExtArc) || underArc(oid, oidAuthExtArc)
}

// decodeValue renders a DER-encoded attribute or extension value. ASN.1
// string types decode to their text; anything else is shown as hex.
func decodeValue(der []byte) string {
	var raw asn1.RawValue
	rest, err := asn1.Unmarshal(der, &raw)
	if err != nil || len(rest) != 0 || raw.Class != asn1.ClassUniversal {
		return rawValue(der)
	}
	switch raw.Tag {
	case asn1.TagUTF8String, asn1.TagPrintableString, asn1.TagIA5String, asn1.TagT61String, 26 /* VisibleString */ :
		return string(raw.Bytes)
	default:
		return rawValue(der)
	}
}

func rawValue(der []byte) string {
	if utf8.Valid(der) && printable(der) {
		return string(der)
	}
	return hex.EncodeToString(der)
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}
