package aesgcm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabnet/client/pkg/security/aesgcm"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	mgr, err := aesgcm.New(key)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	enc, err := mgr.GetEncoder(int64(len(plaintext)))
	require.NoError(t, err)

	var ciphertext []byte
	part1, err := enc.Encrypt(plaintext[:10], false)
	require.NoError(t, err)
	ciphertext = append(ciphertext, part1...)

	part2, err := enc.Encrypt(plaintext[10:], true)
	require.NoError(t, err)
	ciphertext = append(ciphertext, part2...)

	require.EqualValues(t, enc.ExpectedDataLen(), len(ciphertext))

	dec, err := mgr.GetDecoder(int64(len(plaintext)))
	require.NoError(t, err)

	var decrypted []byte
	for _, chunk := range splitBytes(ciphertext, 7) {
		out, err := dec.Decrypt(chunk)
		require.NoError(t, err)
		decrypted = append(decrypted, out...)
	}

	require.Equal(t, plaintext, decrypted)
}

func splitBytes(b []byte, n int) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		if len(b) < n {
			n = len(b)
		}
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}
