package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	secret := []byte("test-signing-secret")
	payload := []byte(`{"merchant_id":"m1","amount":100,"currency":"USD","transaction_id":"t1"}`)

	tag := Sign(payload, secret)
	require.NotEmpty(t, tag)
	assert.Len(t, tag, 64) // hex-encoded SHA256

	assert.True(t, Verify(payload, tag, secret))
}

func TestSign_Deterministic(t *testing.T) {
	secret := []byte("secret")
	payload := []byte(`{"transaction_id":"t1"}`)

	assert.Equal(t, Sign(payload, secret), Sign(payload, secret))
}

func TestVerify_TamperedPayload(t *testing.T) {
	secret := []byte("secret")
	payload := []byte(`{"amount":100}`)
	tag := Sign(payload, secret)

	// Flip a single byte of the payload
	tampered := []byte(`{"amount":101}`)
	assert.False(t, Verify(tampered, tag, secret))
}

func TestVerify_TamperedTag(t *testing.T) {
	secret := []byte("secret")
	payload := []byte(`{"amount":100}`)
	tag := Sign(payload, secret)

	// Flip a single hex character of the tag
	tampered := []byte(tag)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	assert.False(t, Verify(payload, string(tampered), secret))
}

func TestVerify_WrongSecret(t *testing.T) {
	payload := []byte(`{"amount":100}`)
	tag := Sign(payload, []byte("secret-a"))

	assert.False(t, Verify(payload, tag, []byte("secret-b")))
}

func TestVerify_MalformedTag(t *testing.T) {
	assert.False(t, Verify([]byte("payload"), "not-hex!", []byte("secret")))
}
