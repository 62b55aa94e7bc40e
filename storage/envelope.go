package storage

import (
	"errors"
	"fmt"

	"github.com/jmcleod/ironca/internal/util"
)

const (
	// SchemeAESGCM seals the payload with AES-256-GCM under an Argon2id key.
	SchemeAESGCM = "aes256gcm"
	// SchemePlain stores the payload unencrypted. Used when no passphrase is
	// configured.
	SchemePlain = "plain"

	saltLen = 16
)

// ErrPassphraseRequired is returned when opening a sealed envelope without a passphrase.
var ErrPassphraseRequired = errors.New("passphrase required to open sealed record")

// Envelope is a sealed payload, typically a PEM private key, stored inside a
// Record. The KDF parameters travel with the envelope so that it can be opened
// after the defaults change.
type Envelope struct {
	Ver        int                 `json:"ver"`
	Scheme     string              `json:"scheme"`
	KDF        util.Argon2idParams `json:"kdf,omitempty"`
	Salt       []byte              `json:"salt,omitempty"`
	Nonce      []byte              `json:"nonce,omitempty"`
	Ciphertext []byte              `json:"ciphertext"`
}

// Seal encrypts plaintext with a key derived from passphrase using the default
// Argon2id parameters. An empty passphrase produces a plain envelope.
func Seal(passphrase string, plaintext, aad []byte) (*Envelope, error) {
	return SealWithParams(passphrase, plaintext, aad, util.DefaultArgon2idParams())
}

// SealWithParams is Seal with explicit Argon2id parameters.
func SealWithParams(passphrase string, plaintext, aad []byte, params util.Argon2idParams) (*Envelope, error) {
	if passphrase == "" {
		return &Envelope{Ver: 1, Scheme: SchemePlain, Ciphertext: util.CopyBytes(plaintext)}, nil
	}
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return nil, err
	}
	key, err := util.DeriveArgon2idKey(util.Normalize(passphrase), salt, params)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)

	sealed, err := util.EncryptAESWithAAD(plaintext, key, aad)
	if err != nil {
		return nil, err
	}

	// util.EncryptAESWithAAD returns nonce || ciphertext.
	return &Envelope{
		Ver:        1,
		Scheme:     SchemeAESGCM,
		KDF:        params,
		Salt:       salt,
		Nonce:      sealed[:12],
		Ciphertext: sealed[12:],
	}, nil
}

// Open decrypts an Envelope using the passphrase and AAD it was sealed with.
func Open(passphrase string, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope.Ver != 1 {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	switch envelope.Scheme {
	case SchemePlain:
		return util.CopyBytes(envelope.Ciphertext), nil
	case SchemeAESGCM:
	default:
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	key, err := util.DeriveArgon2idKey(util.Normalize(passphrase), envelope.Salt, envelope.KDF)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)

	// Reconstruct nonce || ciphertext without mutating envelope fields.
	fullCipher := make([]byte, len(envelope.Nonce)+len(envelope.Ciphertext))
	copy(fullCipher, envelope.Nonce)
	copy(fullCipher[len(envelope.Nonce):], envelope.Ciphertext)

	return util.DecryptAESWithAAD(fullCipher, key, aad)
}
