package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MethodS256 is the only supported code challenge method. The "plain" method
// of RFC 7636 is deliberately rejected.
const MethodS256 = "S256"

const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// unreserved characters permitted in a code verifier, per RFC 7636 section 4.1.
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

var (
	// ErrUnsupportedMethod is returned for any challenge method other than S256.
	ErrUnsupportedMethod = errors.New("pkce: unsupported code challenge method")
	// ErrVerifierMismatch is returned when the verifier does not match the challenge.
	ErrVerifierMismatch = errors.New("pkce: code verifier does not match challenge")
)

// GenerateVerifier returns a cryptographically random code verifier of the
// given length, or 64 characters when length is zero.
func GenerateVerifier(length int) (string, error) {
	if length == 0 {
		length = 64
	}
	if length < minVerifierLength || length > maxVerifierLength {
		return "", fmt.Errorf("pkce: verifier length must be between %d and %d, got %d",
			minVerifierLength, maxVerifierLength, length)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("pkce: failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = verifierAlphabet[int(b)%len(verifierAlphabet)]
	}
	return string(buf), nil
}

// GenerateChallenge derives the S256 code challenge for a verifier.
func GenerateChallenge(verifier string) (string, error) {
	if err := validateVerifier(verifier); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Verify checks a code verifier against a stored challenge using the given
// method. Only S256 is accepted; the comparison is constant-time.
func Verify(verifier, challenge, method string) error {
	if method != MethodS256 {
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	computed, err := GenerateChallenge(verifier)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return ErrVerifierMismatch
	}
	return nil
}

func validateVerifier(verifier string) error {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return fmt.Errorf("pkce: verifier length must be between %d and %d, got %d",
			minVerifierLength, maxVerifierLength, len(verifier))
	}
	for _, r := range verifier {
		if !strings.ContainsRune(verifierAlphabet, r) {
			return fmt.Errorf("pkce: verifier contains invalid character %q", r)
		}
	}
	return nil
}
