package ca

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/jmcleod/ironca/internal/util"
)

// DefaultDigest is the fingerprint algorithm used when none is configured.
const DefaultDigest = "sha256"

var digests = map[string]func() hash.Hash{
	"sha1":     sha1.New,
	"sha224":   sha256.New224,
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3-256": sha3.New256,
	"sha3-512": sha3.New512,
	"blake2b-256": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

// DigestAlgorithms lists the supported fingerprint algorithms.
func DigestAlgorithms() []string {
	names := make([]string, 0, len(digests))
	for name := range digests {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NormalizeDigest lower-cases algorithm and maps the empty string to the
// default. It fails for unknown algorithms.
func NormalizeDigest(algorithm string) (string, error) {
	if algorithm == "" {
		return DefaultDigest, nil
	}
	name := strings.ToLower(algorithm)
	if _, ok := digests[name]; !ok {
		return "", fmt.Errorf("%w: unknown digest algorithm %q (supported: %s)",
			ErrInvalidOperation, algorithm, strings.Join(DigestAlgorithms(), ", "))
	}
	return name, nil
}

// Fingerprint hashes der and renders it as "(SHA256) AB:CD:...".
func Fingerprint(der []byte, algorithm string) (string, error) {
	name, err := NormalizeDigest(algorithm)
	if err != nil {
		return "", err
	}
	h := digests[name]()
	h.Write(der)
	return fmt.Sprintf("(%s) %s", strings.ToUpper(name), util.ColonHex(h.Sum(nil))), nil
}
