// Package signature verifies HMAC-SHA256 signatures on inbound webhook bodies.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix is the algorithm tag carried in the signature header.
const Prefix = "sha256="

// Sign returns the header value for body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header carries a valid signature of body.
// Any malformed input yields false. The digest comparison is constant time.
func Verify(body []byte, header, secret string) bool {
	if secret == "" || !strings.HasPrefix(header, Prefix) {
		return false
	}

	got, err := hex.DecodeString(strings.TrimPrefix(header, Prefix))
	if err != nil || len(got) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
