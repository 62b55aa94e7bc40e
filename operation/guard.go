package operation

import (
	"fmt"

	"github.com/jmcleod/ironca/ca"
)

// Validate rejects method/selector combinations that are unsafe or
// meaningless before anything is touched.
func Validate(method Method, selector Selector) error {
	if selector.Kind() == KindNone && !method.Subjectless() {
		return fmt.Errorf("%w: you must provide hosts or --all when using %s", ca.ErrPolicyViolation, method)
	}
	if method.Destructive() && selector.IsBulk() {
		subject := "all"
		if selector.Kind() == KindSigned {
			subject = "all signed"
		}
		return fmt.Errorf("%w: refusing to %s %s certs, provide an explicit list of certs to %s",
			ca.ErrPolicyViolation, method, subject, method)
	}
	return nil
}
