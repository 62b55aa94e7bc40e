package ca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	fp, err := Fingerprint([]byte("abc"), "")
	require.NoError(t, err)
	assert.Equal(t, "(SHA256) BA:78:16:BF:8F:01:CF:EA:41:41:40:DE:5D:AE:22:23:B0:03:61:A3:96:17:7A:9C:B4:10:FF:61:F2:00:15:AD", fp)

	fp, err = Fingerprint([]byte("abc"), "SHA1")
	require.NoError(t, err)
	assert.Equal(t, "(SHA1) A9:99:3E:36:47:06:81:6A:BA:3E:25:71:78:50:C2:6C:9C:D0:D8:9D", fp)

	for _, alg := range DigestAlgorithms() {
		_, err := Fingerprint([]byte("abc"), alg)
		assert.NoError(t, err, alg)
	}

	_, err = Fingerprint([]byte("abc"), "md5")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}
