package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// serialBits bounds certificate serial numbers to 20 octets with the high
// bit clear, as RFC 5280 requires a positive INTEGER of at most 20 octets.
const serialBits = 159

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// RandomSerial returns a non-zero random certificate serial number.
func RandomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), serialBits)
	for {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, fmt.Errorf("generating serial number: %w", err)
		}
		if n.Sign() > 0 {
			return n, nil
		}
	}
}
