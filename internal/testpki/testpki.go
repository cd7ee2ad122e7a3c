// Package testpki builds throwaway keys, certificates and signed containers for tests.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"
)

// Identity is a key and a self-signed certificate for it
type Identity struct {
	Key         crypto.Signer
	Certificate *x509.Certificate
}

// KeyPEM encodes the private key as PKCS#8 PEM
func (id Identity) KeyPEM(t testing.TB) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(id.Key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// CertificatePEM encodes the certificate as PEM
func (id Identity) CertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: id.Certificate.Raw})
}

// RSA creates a 2048-bit RSA identity whose subject carries the given
// common name and organizational unit.
func RSA(t testing.TB, commonName, orgUnit string) Identity {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return selfSign(t, key, commonName, orgUnit)
}

// ECDSA creates a P-256 identity
func ECDSA(t testing.TB, commonName, orgUnit string) Identity {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ecdsa key: %v", err)
	}
	return selfSign(t, key, commonName, orgUnit)
}

func selfSign(t testing.TB, key crypto.Signer, commonName, orgUnit string) Identity {
	t.Helper()
	subject := pkix.Name{CommonName: commonName}
	if orgUnit != "" {
		subject.OrganizationalUnit = []string{orgUnit}
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               subject,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return Identity{Key: key, Certificate: cert}
}

// SignedData wraps content in a CMS signed container, the format of
// .mobileprovision files.
func SignedData(t testing.TB, signer Identity, content []byte) []byte {
	t.Helper()
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("new signed data: %v", err)
	}
	if err := sd.AddSigner(signer.Certificate, signer.Key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("add signer: %v", err)
	}
	out, err := sd.Finish()
	if err != nil {
		t.Fatalf("finish signed data: %v", err)
	}
	return out
}
