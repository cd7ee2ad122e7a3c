package signhere

import (
	"bytes"
	"encoding/base64"
	"encoding/pem"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	gop12 "software.sslmate.com/src/go-pkcs12"

	"github.com/aluedeke/go-signhere/internal/testpki"
	"github.com/aluedeke/go-signhere/pkg/appstore"
	"github.com/aluedeke/go-signhere/pkg/keychain"
	"github.com/aluedeke/go-signhere/pkg/openssl"
	"github.com/aluedeke/go-signhere/pkg/provisioning"
	"github.com/aluedeke/go-signhere/pkg/shell"
	"github.com/aluedeke/go-signhere/pkg/shell/shelltest"
	"github.com/aluedeke/go-signhere/pkg/token"
)

type fakeSigner struct {
	calls     int
	audiences []token.Audience
}

func (s *fakeSigner) CreateToken(keyIdentifier, issuerID string, secretKey []byte, audience token.Audience) (string, error) {
	s.calls++
	s.audiences = append(s.audiences, audience)
	return "tok-" + keyIdentifier, nil
}

type fakePortal struct {
	calls []string

	devices     provisioning.DeviceSet
	profiles    []appstore.Profile
	certs       []appstore.Certificate
	newCert     *appstore.Certificate
	bundleID    string
	created     *appstore.Profile
	createdReqs []appstore.ProfileRequest
	csrs        [][]byte
	deleted     []string
}

func (p *fakePortal) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakePortal) FetchActiveCertificates(tok string, matcher appstore.KeyMatcher, certificateType string) ([]appstore.Certificate, error) {
	p.record("FetchActiveCertificates")
	var active []appstore.Certificate
	for _, c := range p.certs {
		der, err := c.DER()
		if err != nil {
			return nil, err
		}
		ok, err := matcher.Matches(der)
		if err != nil {
			return nil, err
		}
		if ok {
			active = append(active, c)
		}
	}
	return active, nil
}

func (p *fakePortal) CreateCertificate(tok string, csr []byte, certificateType string) (*appstore.Certificate, error) {
	p.record("CreateCertificate")
	p.csrs = append(p.csrs, csr)
	return p.newCert, nil
}

func (p *fakePortal) ResolveBundleID(tok, identifier, platform, name string) (string, error) {
	p.record("ResolveBundleID")
	return p.bundleID, nil
}

func (p *fakePortal) FetchEnabledDeviceIDs(tok string) (provisioning.DeviceSet, error) {
	p.record("FetchEnabledDeviceIDs")
	return p.devices, nil
}

func (p *fakePortal) CreateProfile(tok string, req appstore.ProfileRequest) (*appstore.Profile, error) {
	p.record("CreateProfile")
	p.createdReqs = append(p.createdReqs, req)
	return p.created, nil
}

func (p *fakePortal) FetchProfiles(tok, name string) ([]appstore.Profile, error) {
	p.record("FetchProfiles")
	return p.profiles, nil
}

func (p *fakePortal) DeleteProfile(tok, id string) error {
	p.record("DeleteProfile")
	p.deleted = append(p.deleted, id)
	return nil
}

func (p *fakePortal) RegisterDevice(tok, name, platform, udid string) (*appstore.Device, error) {
	p.record("RegisterDevice")
	d := &appstore.Device{ID: "DEV-" + udid}
	d.Attributes.Name = name
	d.Attributes.Platform = platform
	d.Attributes.UDID = udid
	return d, nil
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// fakeOpenSSL answers openssl invocations the way the real tool would for the
// given identity. The key modulus is "AA"; certificates report certModulus.
type fakeOpenSSL struct {
	t           *testing.T
	bundle      testpki.Identity
	certModulus string
}

func (f *fakeOpenSSL) handle(name string, args []string) shell.Output {
	out := argAfter(args, "-out")
	switch {
	case args[0] == "req":
		csr := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: []byte("csr-der")})
		require.NoError(f.t, os.WriteFile(out, csr, 0600))
	case args[0] == "rsa":
		return shelltest.Success("Modulus=AA\n")
	case args[0] == "x509" && argAfter(args, "-outform") == "PEM":
		der, err := os.ReadFile(argAfter(args, "-in"))
		require.NoError(f.t, err)
		require.NoError(f.t, os.WriteFile(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	case args[0] == "x509":
		return shelltest.Success("Modulus=" + f.certModulus + "\n")
	case args[0] == "pkcs12":
		password := strings.TrimPrefix(argAfter(args, "-passout"), "pass:")
		p12, err := gop12.Legacy.Encode(f.bundle.Key, f.bundle.Certificate, nil, password)
		require.NoError(f.t, err)
		require.NoError(f.t, os.WriteFile(out, p12, 0600))
	}
	return shell.Output{}
}

type harness struct {
	t        *testing.T
	dir      string
	signer   *fakeSigner
	portal   *fakePortal
	openssl  *shelltest.Runner
	fake     *fakeOpenSSL
	security *shelltest.Runner
	logs     *bytes.Buffer
	workflow *Workflow

	dev     testpki.Identity
	keyPath string
	apiKey  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		dir:      t.TempDir(),
		signer:   &fakeSigner{},
		portal:   &fakePortal{bundleID: "BUNDLE1", devices: provisioning.NewDeviceSet()},
		security: &shelltest.Runner{},
		logs:     &bytes.Buffer{},
		dev:      testpki.RSA(t, "Apple Development: Jane Roe (ABCDE12345)", "ABCDE12345"),
	}
	h.fake = &fakeOpenSSL{t: t, bundle: h.dev, certModulus: "aa"}
	h.openssl = &shelltest.Runner{Handler: h.fake.handle}

	h.keyPath = filepath.Join(h.dir, "key.pem")
	require.NoError(t, os.WriteFile(h.keyPath, h.dev.KeyPEM(t), 0600))
	h.apiKey = filepath.Join(h.dir, "AuthKey.p8")
	require.NoError(t, os.WriteFile(h.apiKey, []byte("api key"), 0600))

	scratch := filepath.Join(h.dir, "scratch")
	require.NoError(t, os.Mkdir(scratch, 0700))

	h.workflow = New(h.signer, h.portal,
		&openssl.Toolkit{Path: "openssl", Runner: h.openssl},
		&keychain.Keychain{Path: "security", Runner: h.security},
		WithLogger(slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithPasswordGenerator(func() string { return "p12-password" }),
		WithTempDir(scratch),
	)
	return h
}

func (h *harness) credentials() Credentials {
	return Credentials{KeyIdentifier: "KEY", IssuerID: "ISSUER", APIKeyPath: h.apiKey}
}

func (h *harness) createOptions() CreateProfileOptions {
	return CreateProfileOptions{
		Credentials:      h.credentials(),
		PrivateKeyPath:   h.keyPath,
		KeychainName:     "ci.keychain",
		KeychainPassword: "kc-password",
		BundleIdentifier: "com.example.app",
		Platform:         "IOS",
		ProfileType:      "IOS_APP_DEVELOPMENT",
		CertificateType:  "IOS_DEVELOPMENT",
		OutputPath:       filepath.Join(h.dir, "out.mobileprovision"),
		CSRSubject:       "/CN=Jane Roe/C=US",
	}
}

func (h *harness) portalCertificate(id string, identity testpki.Identity) appstore.Certificate {
	c := appstore.Certificate{ID: id, Type: "certificates"}
	c.Attributes.DisplayName = identity.Certificate.Subject.CommonName
	c.Attributes.CertificateContent = base64.StdEncoding.EncodeToString(identity.Certificate.Raw)
	return c
}

func portalProfile(id, name, profileType string, content []byte, devices ...string) *appstore.Profile {
	p := &appstore.Profile{ID: id, Type: "profiles"}
	p.Attributes.Name = name
	p.Attributes.ProfileType = profileType
	p.Attributes.ProfileContent = base64.StdEncoding.EncodeToString(content)
	for _, d := range devices {
		p.Relationships.Devices.Data = append(p.Relationships.Devices.Data, appstore.ResourceRef{ID: d, Type: "devices"})
	}
	return p
}

// scratchEmpty reports whether every per-run directory was removed
func (h *harness) scratchEmpty() bool {
	entries, err := os.ReadDir(filepath.Join(h.dir, "scratch"))
	require.NoError(h.t, err)
	return len(entries) == 0
}

