package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

var keyEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeKeyText decodes key material distributed as base64 or base64url
// text, accepting the first encoding that yields a non empty byte sequence.
func DecodeKeyText(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, oops.Code("KEY_INVALID").Errorf("key text is empty")
	}

	for _, enc := range keyEncodings {
		raw, err := enc.DecodeString(trimmed)
		if err == nil && len(raw) > 0 {
			return raw, nil
		}
	}

	return nil, oops.Code("KEY_INVALID").Errorf("key text is neither base64 nor base64url")
}

// ParseSigningKey parses an Ed25519 private key from PEM text, or from
// base64/base64url encoded raw seed, raw private key or PKCS#8 DER.
func ParseSigningKey(text string) (ed25519.PrivateKey, error) {
	if isPEM(text) {
		key, err := jwt.ParseEdPrivateKeyFromPEM([]byte(text))
		if err != nil {
			return nil, oops.Code("KEY_INVALID").Wrapf(err, "parse signing key pem")
		}
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, oops.Code("KEY_INVALID").Errorf("signing key is not ed25519")
		}
		return priv, nil
	}

	raw, err := DecodeKeyText(text)
	if err != nil {
		return nil, err
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(raw)
	if err != nil {
		return nil, oops.Code("KEY_INVALID").With("length", len(raw)).Wrapf(err, "parse signing key")
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, oops.Code("KEY_INVALID").Errorf("signing key is not ed25519")
	}
	return priv, nil
}

// ParseVerificationKey parses an Ed25519 public key from PEM text, or from
// base64/base64url encoded raw key or PKIX DER.
func ParseVerificationKey(text string) (ed25519.PublicKey, error) {
	if isPEM(text) {
		key, err := jwt.ParseEdPublicKeyFromPEM([]byte(text))
		if err != nil {
			return nil, oops.Code("KEY_INVALID").Wrapf(err, "parse verification key pem")
		}
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return nil, oops.Code("KEY_INVALID").Errorf("verification key is not ed25519")
		}
		return pub, nil
	}

	raw, err := DecodeKeyText(text)
	if err != nil {
		return nil, err
	}

	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}

	parsed, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, oops.Code("KEY_INVALID").With("length", len(raw)).Wrapf(err, "parse verification key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, oops.Code("KEY_INVALID").Errorf("verification key is not ed25519")
	}
	return pub, nil
}

// EncodeKey renders key bytes as base64url text.
func EncodeKey(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func isPEM(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "-----BEGIN")
}
