// Package signhere implements the provisioning workflows: creating a ready to
// use provisioning profile together with its signing identity in a keychain,
// deleting profiles, registering devices and preparing CI keychains.
//
// A Workflow is assembled from its collaborators once per process:
//
//	w := signhere.New(token.NewSigner(nil), appstore.NewClient(false),
//		openssl.New("openssl"), keychain.New(keychain.DefaultPath))
//	res, err := w.CreateProvisioningProfile(opts)
//
// Every external call is attempted once. A failing step aborts the run without
// undoing the steps before it.
package signhere

import (
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/aluedeke/go-signhere/pkg/appstore"
	"github.com/aluedeke/go-signhere/pkg/openssl"
	"github.com/aluedeke/go-signhere/pkg/provisioning"
	"github.com/aluedeke/go-signhere/pkg/token"
)

// Signer mints portal bearer tokens
type Signer interface {
	CreateToken(keyIdentifier, issuerID string, secretKey []byte, audience token.Audience) (string, error)
}

// Portal is the subset of the App Store Connect API the workflows use
type Portal interface {
	FetchActiveCertificates(token string, matcher appstore.KeyMatcher, certificateType string) ([]appstore.Certificate, error)
	CreateCertificate(token string, csr []byte, certificateType string) (*appstore.Certificate, error)
	ResolveBundleID(token, identifier, platform, name string) (string, error)
	FetchEnabledDeviceIDs(token string) (provisioning.DeviceSet, error)
	CreateProfile(token string, req appstore.ProfileRequest) (*appstore.Profile, error)
	FetchProfiles(token, name string) ([]appstore.Profile, error)
	DeleteProfile(token, id string) error
	RegisterDevice(token, name, platform, udid string) (*appstore.Device, error)
}

// Toolkit produces signing artifacts from files
type Toolkit interface {
	CreateCSR(privateKey, subject, out string) error
	ConvertDERToPEM(in, out string) error
	ExportPKCS12(certPEM, privateKey, password, out string) error
	NewKeyMatcher(privateKeyPath string) *openssl.KeyMatcher
}

// Keychain manages platform keychains
type Keychain interface {
	Create(name, password string) error
	Delete(name string) error
	SetSearchList(names ...string) error
	SetDefault(name string) error
	SetSettings(name string, timeout time.Duration) error
	Unlock(name, password string) error
	ImportIdentity(name, p12Path, password string) error
	ImportCertificate(name, certPath string) error
	SetKeyPartitionList(name, password string) error
}

// Workflow runs the signhere commands against its collaborators
type Workflow struct {
	signer   Signer
	portal   Portal
	toolkit  Toolkit
	keychain Keychain

	clock       clock.Clock
	logger      *slog.Logger
	newPassword func() string
	tempDir     string
}

// Option configures a Workflow
type Option func(*Workflow)

// WithClock sets the clock
func WithClock(c clock.Clock) Option {
	return func(w *Workflow) { w.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithPasswordGenerator replaces the random PKCS#12 password source
func WithPasswordGenerator(gen func() string) Option {
	return func(w *Workflow) { w.newPassword = gen }
}

// WithTempDir sets the parent directory of per-run scratch directories
func WithTempDir(dir string) Option {
	return func(w *Workflow) { w.tempDir = dir }
}

// New returns a Workflow
func New(signer Signer, portal Portal, toolkit Toolkit, keychain Keychain, opts ...Option) *Workflow {
	w := &Workflow{
		signer:      signer,
		portal:      portal,
		toolkit:     toolkit,
		keychain:    keychain,
		clock:       clock.New(),
		logger:      slog.Default(),
		newPassword: uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// token reads the API key and mints a token for this run
func (w *Workflow) token(creds Credentials) (string, error) {
	secret, err := os.ReadFile(creds.APIKeyPath)
	if err != nil {
		return "", &Error{Kind: KindFileSystem, Op: "read API key", Err: err}
	}
	return w.signer.CreateToken(creds.KeyIdentifier, creds.IssuerID, secret, token.AudienceFor(creds.Enterprise))
}
