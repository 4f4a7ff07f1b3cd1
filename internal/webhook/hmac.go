package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

const signaturePrefix = "sha256"

var (
	ErrSignatureMissing   = errors.New("signature header missing")
	ErrSignatureMalformed = errors.New("signature header malformed")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrSecretEmpty        = errors.New("signing secret not configured")
)

// VerifySignature checks a GitHub X-Hub-Signature-256 header against body.
//
// The header must be exactly "sha256=<hex>" with the lowercase hex digest
// GitHub sends. The digest text is compared with crypto/subtle so the
// comparison time does not depend on where the first differing byte is.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return ErrSecretEmpty
	}
	if header == "" {
		return ErrSignatureMissing
	}

	actual, err := parseSignature(header)
	if err != nil {
		return err
	}

	expected := ComputeSignature(secret, body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// parseSignature extracts the hex digest of a "sha256=<hex>" header.
// The digest must be valid hex; case is checked by the comparison.
func parseSignature(header string) (string, error) {
	parts := strings.Split(header, "=")
	if len(parts) != 2 || parts[0] != signaturePrefix || parts[1] == "" {
		return "", ErrSignatureMalformed
	}

	if _, err := hex.DecodeString(parts[1]); err != nil {
		return "", ErrSignatureMalformed
	}
	return parts[1], nil
}

// ComputeSignature returns the hex HMAC-SHA256 of body.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// FormatSignature formats a hex digest as an X-Hub-Signature-256 header value.
func FormatSignature(hexSig string) string {
	return signaturePrefix + "=" + hexSig
}
