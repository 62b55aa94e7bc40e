package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/operation"
)

// machineLine renders e as a single line:
//
//	<glyph> <name> <fingerprint> (<alt names, extensions>) (<reason>)
func machineLine(e entry, width int) string {
	parts := []string{e.status.Glyph(), fmt.Sprintf("%-*s", width, strconv.Quote(e.host))}
	if e.fingerprint != "" {
		parts = append(parts, e.fingerprint)
	}

	var info []string
	if len(e.altNames) > 0 {
		info = append(info, "alt names: "+quoteAll(e.altNames))
	}
	info = append(info, e.extensions...)
	if len(info) > 0 {
		parts = append(parts, "("+strings.Join(info, ", ")+")")
	}
	if e.reason != "" {
		parts = append(parts, "("+e.reason+")")
	}
	return strings.Join(parts, " ")
}

// humanBlock renders e as a multi-line block followed by a blank line.
func humanBlock(e entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", e.status.Glyph(), strconv.Quote(e.host))
	if e.fingerprint != "" {
		fmt.Fprintf(&b, "  %s\n", e.fingerprint)
	}

	switch e.status {
	case ca.StatusRequest:
		b.WriteString("    Status: Request Pending\n")
	case ca.StatusSigned:
		b.WriteString("    Status: Signed\n")
		fmt.Fprintf(&b, "    Expiration: %s\n", e.expiration.UTC().Format(time.RFC3339))
	case ca.StatusInvalid:
		fmt.Fprintf(&b, "    Status: Invalid - %s\n\n", e.reason)
		return b.String()
	}

	var lines []string
	if len(e.altNames) > 0 {
		lines = append(lines, "alt names: "+quoteAll(e.altNames))
	}
	lines = append(lines, e.extensions...)
	if len(lines) > 0 {
		b.WriteString("    Extensions:\n")
		for _, l := range lines {
			fmt.Fprintf(&b, "      %s\n", l)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// RequestSummary renders the one-line summary of a pending request shown
// before it is signed. The name is padded to its own quoted width.
func RequestSummary(req *ca.CertificateRequest, op *operation.Operation) (string, error) {
	e, err := requestEntry(req, op)
	if err != nil {
		return "", err
	}
	return machineLine(e, quotedWidth(req.Host)), nil
}
