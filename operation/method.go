package operation

import (
	"fmt"
	"strings"

	"github.com/jmcleod/ironca/ca"
)

// Method is one of the operations the dispatcher can apply.
type Method int

const (
	Destroy Method = iota
	List
	Revoke
	Generate
	Sign
	Print
	Verify
	Fingerprint
	Reinventory
)

var methodNames = [...]string{
	Destroy:     "destroy",
	List:        "list",
	Revoke:      "revoke",
	Generate:    "generate",
	Sign:        "sign",
	Print:       "print",
	Verify:      "verify",
	Fingerprint: "fingerprint",
	Reinventory: "reinventory",
}

// Methods lists every method in declaration order.
func Methods() []Method {
	out := make([]Method, len(methodNames))
	for i := range methodNames {
		out[i] = Method(i)
	}
	return out
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod resolves a method name.
func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if strings.EqualFold(n, name) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: invalid method %q to apply", ca.ErrInvalidOperation, name)
}

// Destructive methods never accept a bulk selector.
func (m Method) Destructive() bool {
	return m == Destroy || m == Revoke
}

// Subjectless methods may run with no selector.
func (m Method) Subjectless() bool {
	return m == List || m == Reinventory
}

// Mutating methods change the store or the CRL and run under the exclusive
// lock.
func (m Method) Mutating() bool {
	switch m {
	case Destroy, Revoke, Generate, Sign, Reinventory:
		return true
	default:
		return false
	}
}
