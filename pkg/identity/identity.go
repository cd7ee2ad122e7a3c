// Package identity loads signing identities (a certificate plus its private key)
// from PKCS#12 bundles and PEM files, and checks that keys and certificates pair up.
package identity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	gop12 "software.sslmate.com/src/go-pkcs12"
)

// ErrKeyMismatch is returned when a private key does not belong to a certificate
var ErrKeyMismatch = errors.New("private key does not match certificate")

// Identity is a code signing certificate together with its private key
type Identity struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.PrivateKey
	// Chain starts with Certificate followed by any CA certificates in the bundle
	Chain  []*x509.Certificate
	TeamID string
}

// Load decodes a PKCS#12 bundle and verifies that its key belongs to its certificate
func Load(p12Data []byte, password string) (*Identity, error) {
	privateKey, cert, caCerts, err := gop12.DecodeChain(p12Data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode P12: %w", err)
	}

	if !KeyMatchesCertificate(privateKey, cert) {
		return nil, fmt.Errorf("failed to verify P12 identity %q: %w", cert.Subject.CommonName, ErrKeyMismatch)
	}

	chain := []*x509.Certificate{cert}
	chain = append(chain, caCerts...)

	return &Identity{
		Certificate: cert,
		PrivateKey:  privateKey,
		Chain:       chain,
		TeamID:      TeamID(cert),
	}, nil
}

// LoadPrivateKey parses a PEM encoded PKCS#1, PKCS#8 or SEC 1 private key
func LoadPrivateKey(pemData []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	var privateKey crypto.PrivateKey
	var err error

	switch block.Type {
	case "RSA PRIVATE KEY":
		privateKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		privateKey, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		privateKey, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM type: %s", block.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return privateKey, nil
}

// KeyMatchesCertificate checks if a private key matches a certificate's public key
func KeyMatchesCertificate(privateKey crypto.PrivateKey, cert *x509.Certificate) bool {
	if cert == nil {
		return false
	}
	switch priv := privateKey.(type) {
	case *rsa.PrivateKey:
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return priv.N.Cmp(pub.N) == 0 && priv.E == pub.E
		}
	case *ecdsa.PrivateKey:
		if pub, ok := cert.PublicKey.(*ecdsa.PublicKey); ok {
			return priv.PublicKey.Equal(pub)
		}
	}
	return false
}

// TeamID returns the 10 character Apple team identifier from the subject's
// organizational unit, or "" when there is none.
func TeamID(cert *x509.Certificate) string {
	for _, ou := range cert.Subject.OrganizationalUnit {
		if len(ou) == 10 {
			return ou
		}
	}
	return ""
}
