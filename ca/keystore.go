package ca

import (
	"context"
	"crypto"
	"errors"
)

// KeyStore abstracts private-key custody so that signing code works the same
// whether keys are held in software or delegated to a device.
//
// A key ID is a CA issuer ID for authority keys and a host name for node
// keys; each KeyStore instance serves one of the two.
type KeyStore interface {
	// Signer returns a crypto.Signer for keyID, or ErrKeyNotFound.
	Signer(ctx context.Context, keyID string) (crypto.Signer, error)

	// Store takes custody of key under keyID, replacing any previous key.
	Store(ctx context.Context, keyID string, key crypto.Signer) error

	// Delete removes keyID. Deleting an unknown key is not an error.
	Delete(ctx context.Context, keyID string) error

	// Has reports whether keyID is held by the store.
	Has(ctx context.Context, keyID string) (bool, error)
}

// ErrKeyNotFound is returned when the referenced key ID does not exist.
var ErrKeyNotFound = errors.New("key not found")
