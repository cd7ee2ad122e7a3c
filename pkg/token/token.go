// Package token creates the short-lived ES256 bearer tokens used to authenticate
// against the App Store Connect and Apple Developer Enterprise APIs.
package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

// Lifetime is the validity window of every token
const Lifetime = 30 * time.Second

// Audience selects which portal the token is minted for
type Audience int

const (
	Standard Audience = iota
	Enterprise
)

// String returns the aud claim value for the audience
func (a Audience) String() string {
	if a == Enterprise {
		return "apple-developer-enterprise-v1"
	}
	return "appstoreconnect-v1"
}

// AudienceFor maps the enterprise flag onto an Audience
func AudienceFor(enterprise bool) Audience {
	if enterprise {
		return Enterprise
	}
	return Standard
}

// Kind classifies token creation failures
type Kind int

const (
	KindInvalidKeyEncoding Kind = iota + 1
	KindInvalidKeyMaterial
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKeyEncoding:
		return "invalid key encoding"
	case KindInvalidKeyMaterial:
		return "invalid key material"
	}
	return "unknown"
}

// Error is returned when the API key cannot be used for signing
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "token: " + e.Kind.String()
	}
	return fmt.Sprintf("token: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var errNotUTF8 = errors.New("secret key is not valid UTF-8 text")

// Signer creates tokens. The zero value is not usable, use NewSigner.
type Signer struct {
	clock clock.Clock
}

// NewSigner returns a Signer reading the issue time from c
func NewSigner(c clock.Clock) *Signer {
	if c == nil {
		c = clock.New()
	}
	return &Signer{clock: c}
}

// CreateToken builds and signs a compact JWT for the given API key.
// secretKey is the PEM text of the P-256 private key downloaded from the portal.
func (s *Signer) CreateToken(keyIdentifier, issuerID string, secretKey []byte, audience Audience) (string, error) {
	if !utf8.Valid(secretKey) {
		return "", &Error{Kind: KindInvalidKeyEncoding, Err: errNotUTF8}
	}

	key, err := parseP256Key(secretKey)
	if err != nil {
		return "", &Error{Kind: KindInvalidKeyMaterial, Err: err}
	}

	issuedAt := s.clock.Now()
	// aud must stay a plain string, RegisteredClaims would encode it as an array
	claims := jwt.MapClaims{
		"iss": issuerID,
		"iat": issuedAt.Unix(),
		"exp": issuedAt.Add(Lifetime).Unix(),
		"aud": audience.String(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	t.Header["kid"] = keyIdentifier

	signed, err := t.SignedString(key)
	if err != nil {
		return "", &Error{Kind: KindInvalidKeyMaterial, Err: err}
	}
	return signed, nil
}

func parseP256Key(data []byte) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("private key uses curve %s, expected P-256", key.Curve.Params().Name)
	}
	return key, nil
}
