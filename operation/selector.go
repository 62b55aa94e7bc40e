package operation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/internal/util"
)

// SelectorKind distinguishes the subject selectors.
type SelectorKind int

const (
	// KindNone selects nothing; for list it means pending requests only.
	KindNone SelectorKind = iota
	// KindHosts selects an explicit list of hosts.
	KindHosts
	// KindAll selects every known host.
	KindAll
	// KindSigned selects every host with a certificate.
	KindSigned
)

func (k SelectorKind) String() string {
	switch k {
	case KindHosts:
		return "hosts"
	case KindAll:
		return "all"
	case KindSigned:
		return "signed"
	default:
		return "none"
	}
}

// Selector is the scope of an operation. The zero value is None.
type Selector struct {
	kind  SelectorKind
	hosts []string
}

// Hosts selects the given hosts in order. Host names are normalized; an
// empty list is None.
func Hosts(hosts ...string) Selector {
	var out []string
	for _, h := range hosts {
		if h = util.NormalizeHost(h); h != "" {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return None()
	}
	return Selector{kind: KindHosts, hosts: out}
}

func All() Selector    { return Selector{kind: KindAll} }
func Signed() Selector { return Selector{kind: KindSigned} }
func None() Selector   { return Selector{kind: KindNone} }

// ParseSelector builds a selector from command-line style inputs. all and
// signed are mutually exclusive, and neither combines with hosts.
func ParseSelector(all, signed bool, hosts []string) (Selector, error) {
	switch {
	case all && signed:
		return Selector{}, fmt.Errorf("%w: --all and --signed are mutually exclusive", ca.ErrInvalidOperation)
	case (all || signed) && len(hosts) > 0:
		return Selector{}, fmt.Errorf("%w: cannot combine host names with --all or --signed", ca.ErrInvalidOperation)
	case all:
		return All(), nil
	case signed:
		return Signed(), nil
	default:
		return Hosts(hosts...), nil
	}
}

func (s Selector) Kind() SelectorKind {
	return s.kind
}

// Hosts returns a copy of the explicit host list.
func (s Selector) Hosts() []string {
	return slices.Clone(s.hosts)
}

// IsBulk reports whether the selector is All or Signed.
func (s Selector) IsBulk() bool {
	return s.kind == KindAll || s.kind == KindSigned
}

func (s Selector) String() string {
	if s.kind == KindHosts {
		return strings.Join(s.hosts, ",")
	}
	return s.kind.String()
}
