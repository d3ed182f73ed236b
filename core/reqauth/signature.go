package reqauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// MinSecretLen is the minimum HMAC secret size in bytes (256 bits).
const MinSecretLen = 32

// CanonicalMessage returns the exact bytes covered by the signature: "{timestamp}.{nonce}.{body}".
// body is used verbatim; any re-serialization on either side breaks verification.
func CanonicalMessage(timestamp, nonce string, body []byte) []byte {
	msg := make([]byte, 0, len(timestamp)+len(nonce)+len(body)+2)
	msg = append(msg, timestamp...)
	msg = append(msg, '.')
	msg = append(msg, nonce...)
	msg = append(msg, '.')
	return append(msg, body...)
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of the canonical message.
func ComputeSignature(secret, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(CanonicalMessage(timestamp, nonce, body))
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstantTimeEqual reports whether a and b are equal. Unequal lengths fail immediately;
// equal-length inputs are compared over every byte before the result is inspected.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateSecret fails closed when the secret is missing or shorter than MinSecretLen UTF-8 bytes.
func ValidateSecret(secret string) error {
	switch {
	case secret == "":
		return newConfigError(ReasonMissingSecret, nil)
	case len(secret) < MinSecretLen:
		return newConfigError(ReasonWeakSecret, nil)
	}
	return nil
}
