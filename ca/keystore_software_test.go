package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironca/internal/util"
	"github.com/jmcleod/ironca/storage"
	"github.com/jmcleod/ironca/storage/memory"
)

func interactiveKDF(t *testing.T) util.Argon2idParams {
	t.Helper()
	params, err := util.Argon2idProfile(util.KDFProfileInteractive)
	require.NoError(t, err)
	return params
}

func TestSoftwareKeyStoreRoundTrip(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	ks := NewCAKeyStore(repo, "ca1", "passphrase", WithKeyKDFParams(interactiveKDF(t)))

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, ks.Store(ctx, "issuer-1", key))

	signer, err := ks.Signer(ctx, "issuer-1")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(signer.Public()))

	// A fresh store reads the sealed record back.
	fresh := NewCAKeyStore(repo, "ca1", "passphrase")
	signer, err = fresh.Signer(ctx, "issuer-1")
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(signer.Public()))

	rec, err := repo.Get("ca1", recordCAKey, "issuer-1")
	require.NoError(t, err)
	var env storage.Envelope
	require.NoError(t, rec.Decode(&env))
	assert.Equal(t, storage.SchemeAESGCM, env.Scheme)
}

func TestSoftwareKeyStoreWrongPassphrase(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	ks := NewCAKeyStore(repo, "ca1", "right", WithKeyKDFParams(interactiveKDF(t)))
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, ks.Store(ctx, "k", key))

	_, err = NewCAKeyStore(repo, "ca1", "wrong").Signer(ctx, "k")
	assert.Error(t, err)

	_, err = NewCAKeyStore(repo, "ca1", "").Signer(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrPassphraseRequired)
}

func TestSoftwareKeyStoreRecordIsBoundToKeyID(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	ks := NewHostKeyStore(repo, "ca1", "pw", WithKeyKDFParams(interactiveKDF(t)))
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, ks.Store(ctx, "host-a", key))

	rec, err := repo.Get("ca1", recordKey, "host-a")
	require.NoError(t, err)
	require.NoError(t, repo.Put("ca1", recordKey, "host-b", rec))

	_, err = NewHostKeyStore(repo, "ca1", "pw").Signer(ctx, "host-b")
	assert.Error(t, err)
}

func TestSoftwareKeyStoreDelete(t *testing.T) {
	ctx := t.Context()
	repo := memory.NewRepository()
	ks := NewHostKeyStore(repo, "ca1", "")
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	require.NoError(t, ks.Store(ctx, "h", key))

	ok, err := ks.Has(ctx, "h")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ks.Delete(ctx, "h"))
	require.NoError(t, ks.Delete(ctx, "h"))

	_, err = ks.Signer(ctx, "h")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
