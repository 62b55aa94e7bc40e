package ca

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/ironca/internal/util"
	"github.com/jmcleod/ironca/storage"
)

// ---------------------------------------------------------------------------
// SoftwareKeyStore: private keys sealed in storage, cached in enclaves
// ---------------------------------------------------------------------------

// SoftwareKeyStore persists PKCS#8 private keys as sealed envelopes in a
// storage.Repository and keeps the decrypted DER of keys it has seen inside
// memguard enclaves. The passphrase is held in an enclave as well.
type SoftwareKeyStore struct {
	repo       storage.Repository
	caID       string
	recordType string
	kdf        util.Argon2idParams

	mu         sync.Mutex
	passphrase *memguard.Enclave
	cache      map[string]*memguard.Enclave
}

var _ KeyStore = (*SoftwareKeyStore)(nil)

// SoftwareKeyStoreOption configures a SoftwareKeyStore.
type SoftwareKeyStoreOption func(*SoftwareKeyStore)

// WithKeyKDFParams sets the Argon2id parameters used when sealing keys.
func WithKeyKDFParams(params util.Argon2idParams) SoftwareKeyStoreOption {
	return func(s *SoftwareKeyStore) {
		s.kdf = params
	}
}

// NewSoftwareKeyStore returns a key store writing records of recordType
// under caID. An empty passphrase stores keys unencrypted.
func NewSoftwareKeyStore(repo storage.Repository, caID, recordType, passphrase string, opts ...SoftwareKeyStoreOption) *SoftwareKeyStore {
	s := &SoftwareKeyStore{
		repo:       repo,
		caID:       caID,
		recordType: recordType,
		kdf:        util.DefaultArgon2idParams(),
		cache:      make(map[string]*memguard.Enclave),
	}
	if passphrase != "" {
		s.passphrase = memguard.NewEnclave([]byte(passphrase))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SoftwareKeyStore) withPassphrase(fn func(passphrase string) error) error {
	if s.passphrase == nil {
		return fn("")
	}
	buf, err := s.passphrase.Open()
	if err != nil {
		return fmt.Errorf("opening passphrase enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(string(buf.Bytes()))
}

// Signer loads keyID, opening its sealed record on first use.
func (s *SoftwareKeyStore) Signer(ctx context.Context, keyID string) (crypto.Signer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	enclave, ok := s.cache[keyID]
	if !ok {
		der, err := s.load(keyID)
		if err != nil {
			return nil, err
		}
		enclave = memguard.NewEnclave(der)
		s.cache[keyID] = enclave
	}

	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening key enclave for %s: %w", keyID, err)
	}
	defer buf.Destroy()
	return parseSigner(buf.Bytes())
}

func (s *SoftwareKeyStore) load(keyID string) ([]byte, error) {
	rec, err := s.repo.Get(s.caID, s.recordType, keyID)
	if err != nil {
		if isAbsent(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
		}
		return nil, fmt.Errorf("loading key %s: %w", keyID, err)
	}
	var env storage.Envelope
	if err := rec.Decode(&env); err != nil {
		return nil, fmt.Errorf("key %s: %w", keyID, err)
	}
	var der []byte
	err = s.withPassphrase(func(passphrase string) error {
		var err error
		der, err = storage.Open(passphrase, &env, []byte(keyID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unsealing key %s: %w", keyID, err)
	}
	return der, nil
}

// Store seals key and writes it under keyID.
func (s *SoftwareKeyStore) Store(ctx context.Context, keyID string, key crypto.Signer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := util.ValidateArgon2idParams(s.kdf); err != nil {
		return fmt.Errorf("sealing key %s: %w", keyID, err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding key %s: %w", keyID, err)
	}

	var env *storage.Envelope
	err = s.withPassphrase(func(passphrase string) error {
		var err error
		env, err = storage.SealWithParams(passphrase, der, []byte(keyID), s.kdf)
		return err
	})
	if err != nil {
		util.WipeBytes(der)
		return fmt.Errorf("sealing key %s: %w", keyID, err)
	}
	rec, err := storage.Encode(env, 0)
	if err != nil {
		util.WipeBytes(der)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Put(s.caID, s.recordType, keyID, rec); err != nil {
		util.WipeBytes(der)
		return fmt.Errorf("storing key %s: %w", keyID, err)
	}
	s.cache[keyID] = memguard.NewEnclave(der)
	return nil
}

// Delete removes the key record and its cached enclave.
func (s *SoftwareKeyStore) Delete(ctx context.Context, keyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, keyID)
	err := s.repo.Delete(s.caID, s.recordType, keyID)
	if err != nil && !isAbsent(err) {
		return fmt.Errorf("deleting key %s: %w", keyID, err)
	}
	return nil
}

// Has reports whether a key record exists for keyID.
func (s *SoftwareKeyStore) Has(ctx context.Context, keyID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.repo.Get(s.caID, s.recordType, keyID)
	switch {
	case err == nil:
		return true, nil
	case isAbsent(err):
		return false, nil
	default:
		return false, err
	}
}

func parseSigner(der []byte) (crypto.Signer, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.New("private key is not a signer")
	}
	return signer, nil
}

// NewCAKeyStore returns the SoftwareKeyStore holding authority keys, keyed
// by issuer ID.
func NewCAKeyStore(repo storage.Repository, caID, passphrase string, opts ...SoftwareKeyStoreOption) *SoftwareKeyStore {
	return NewSoftwareKeyStore(repo, caID, recordCAKey, passphrase, opts...)
}

// NewHostKeyStore returns the SoftwareKeyStore holding node keys, keyed by
// host.
func NewHostKeyStore(repo storage.Repository, caID, passphrase string, opts ...SoftwareKeyStoreOption) *SoftwareKeyStore {
	return NewSoftwareKeyStore(repo, caID, recordKey, passphrase, opts...)
}
