package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes a hex-encoded HMAC-SHA256 tag over the canonical payload bytes.
// The same payload and secret always produce the same tag, so receivers can
// verify retried deliveries against the original signature.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the tag and compares it in constant time.
func Verify(payload []byte, tag string, secret []byte) bool {
	expected, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
