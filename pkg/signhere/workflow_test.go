package signhere

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/aluedeke/go-signhere/internal/testpki"
	"github.com/aluedeke/go-signhere/pkg/appstore"
	"github.com/aluedeke/go-signhere/pkg/provisioning"
	"github.com/aluedeke/go-signhere/pkg/shell"
	"github.com/aluedeke/go-signhere/pkg/shell/shelltest"
	"github.com/aluedeke/go-signhere/pkg/token"
)

func TestCreateProfileReusesMatchingCertificate(t *testing.T) {
	h := newHarness(t)
	h.portal.devices = provisioning.NewDeviceSet("D2", "D1")
	h.portal.certs = []appstore.Certificate{h.portalCertificate("CERT1", h.dev)}
	h.portal.created = portalProfile("NEWPROFILE", "C_IOS_APP_DEVELOPMENT_1", "IOS_APP_DEVELOPMENT", []byte("profile-bytes"))

	res, err := h.workflow.CreateProvisioningProfile(h.createOptions())
	require.NoError(t, err)
	assert.Equal(t, &Result{ProfileID: "NEWPROFILE", Created: true}, res)

	assert.Equal(t, []string{
		"FetchEnabledDeviceIDs",
		"FetchActiveCertificates",
		"ResolveBundleID",
		"CreateProfile",
	}, h.portal.calls, "no certificate is created and no profile looked up")

	require.Len(t, h.portal.createdReqs, 1)
	req := h.portal.createdReqs[0]
	assert.Equal(t, "BUNDLE1", req.BundleID)
	assert.Equal(t, "CERT1", req.CertificateID)
	assert.Equal(t, "IOS_APP_DEVELOPMENT", req.ProfileType)
	assert.Equal(t, []string{"D1", "D2"}, req.DeviceIDs.Sorted())
	assert.Empty(t, req.Name)

	written, err := os.ReadFile(h.createOptions().OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "profile-bytes", string(written))

	calls := h.openssl.Calls()
	var subcommands []string
	for _, c := range calls {
		assert.Equal(t, "openssl", c.Name)
		subcommands = append(subcommands, c.Args[0])
	}
	assert.Equal(t, []string{"req", "rsa", "x509", "x509", "pkcs12"}, subcommands)
	assert.Equal(t, "pass:p12-password", argAfter(calls[4].Args, "-passout"))
	assert.Equal(t, h.keyPath, argAfter(calls[4].Args, "-inkey"))

	p12Path := argAfter(calls[4].Args, "-out")
	assert.Equal(t, []string{
		"security import " + p12Path + " -k ci.keychain -P p12-password -T /usr/bin/codesign",
		"security set-key-partition-list -S apple-tool:,apple:,codesign: -s -k kc-password ci.keychain",
	}, h.security.CommandLines())

	assert.Equal(t, 1, h.signer.calls)
	assert.Equal(t, []token.Audience{token.Standard}, h.signer.audiences)
	assert.True(t, h.scratchEmpty(), "temporary artifacts are removed")
}

func TestCreateProfileExistingInSyncIsPersisted(t *testing.T) {
	h := newHarness(t)
	h.portal.devices = provisioning.NewDeviceSet("A", "B")
	h.portal.profiles = []appstore.Profile{
		*portalProfile("OTHER", "X-old", "IOS_APP_DEVELOPMENT", []byte("other")),
		*portalProfile("EXISTING", "X", "IOS_APP_DEVELOPMENT", []byte("existing-bytes"), "B", "A"),
	}

	opts := h.createOptions()
	opts.ProfileName = "X"
	opts.AutoRegenerate = true

	res, err := h.workflow.CreateProvisioningProfile(opts)
	require.NoError(t, err)
	assert.Equal(t, &Result{ProfileID: "EXISTING"}, res)

	assert.Equal(t, []string{"FetchEnabledDeviceIDs", "FetchProfiles"}, h.portal.calls)
	assert.Empty(t, h.openssl.Calls())
	assert.Empty(t, h.security.Calls())

	written, err := os.ReadFile(opts.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "existing-bytes", string(written))
	assert.Contains(t, h.logs.String(), "The profile already exists")
}

func TestCreateProfileExistingWithoutAutoRegenerateIsPersisted(t *testing.T) {
	h := newHarness(t)
	h.portal.devices = provisioning.NewDeviceSet("A", "B", "C")
	h.portal.profiles = []appstore.Profile{
		*portalProfile("EXISTING", "X", "IOS_APP_DEVELOPMENT", []byte("existing-bytes"), "A"),
	}

	opts := h.createOptions()
	opts.ProfileName = "X"

	res, err := h.workflow.CreateProvisioningProfile(opts)
	require.NoError(t, err)
	assert.Equal(t, "EXISTING", res.ProfileID)
	assert.False(t, res.Created)
	assert.Equal(t, []string{"FetchEnabledDeviceIDs", "FetchProfiles"}, h.portal.calls)
}

func TestCreateProfileDriftRegenerates(t *testing.T) {
	h := newHarness(t)
	h.portal.devices = provisioning.NewDeviceSet("A", "B", "C")
	h.portal.profiles = []appstore.Profile{
		*portalProfile("EXISTING", "X", "IOS_APP_ADHOC", []byte("old"), "A", "B"),
	}
	h.portal.certs = []appstore.Certificate{h.portalCertificate("CERT1", h.dev)}
	h.portal.created = portalProfile("REGENERATED", "X", "IOS_APP_ADHOC", []byte("new"))

	opts := h.createOptions()
	opts.ProfileType = "IOS_APP_ADHOC"
	opts.ProfileName = "X"
	opts.AutoRegenerate = true

	res, err := h.workflow.CreateProvisioningProfile(opts)
	require.NoError(t, err)
	assert.Equal(t, &Result{ProfileID: "REGENERATED", Created: true, Replaced: "EXISTING"}, res)

	assert.Equal(t, []string{
		"FetchEnabledDeviceIDs",
		"FetchProfiles",
		"DeleteProfile",
		"FetchActiveCertificates",
		"ResolveBundleID",
		"CreateProfile",
	}, h.portal.calls)
	assert.Equal(t, []string{"EXISTING"}, h.portal.deleted)
	assert.Equal(t, "X", h.portal.createdReqs[0].Name)
	assert.Contains(t, h.logs.String(), "missing the device(s): C")
	assert.Contains(t, h.logs.String(), "Deleted profile")
}

func TestCreateProfileStoreProfileNeverRegenerates(t *testing.T) {
	h := newHarness(t)
	h.portal.devices = provisioning.NewDeviceSet("A", "B", "C")
	h.portal.profiles = []appstore.Profile{
		*portalProfile("STORE", "release", "IOS_APP_STORE", []byte("store")),
	}

	opts := h.createOptions()
	opts.ProfileType = "IOS_APP_STORE"
	opts.ProfileName = "release"
	opts.AutoRegenerate = true

	res, err := h.workflow.CreateProvisioningProfile(opts)
	require.NoError(t, err)
	assert.Equal(t, "STORE", res.ProfileID)
	assert.NotContains(t, h.portal.calls, "DeleteProfile")
}

func TestCreateProfileCreatesCertificateWhenNoneMatches(t *testing.T) {
	h := newHarness(t)
	other := testpki.RSA(t, "Apple Development: Someone Else", "OTHER00000")
	h.portal.certs = []appstore.Certificate{h.portalCertificate("THEIRS", other)}
	h.fake.certModulus = "BB"
	newCert := h.portalCertificate("MINTED", h.dev)
	h.portal.newCert = &newCert
	h.portal.created = portalProfile("NEWPROFILE", "n", "IOS_APP_DEVELOPMENT", []byte("p"))

	res, err := h.workflow.CreateProvisioningProfile(h.createOptions())
	require.NoError(t, err)
	assert.Equal(t, "NEWPROFILE", res.ProfileID)

	assert.Equal(t, []string{
		"FetchEnabledDeviceIDs",
		"FetchActiveCertificates",
		"CreateCertificate",
		"ResolveBundleID",
		"CreateProfile",
	}, h.portal.calls)
	require.Len(t, h.portal.csrs, 1)
	assert.Contains(t, string(h.portal.csrs[0]), "CERTIFICATE REQUEST")
	assert.Equal(t, "MINTED", h.portal.createdReqs[0].CertificateID)
}

func TestCreateProfileAutoRegenerateRequiresName(t *testing.T) {
	h := newHarness(t)

	opts := h.createOptions()
	opts.AutoRegenerate = true

	_, err := h.workflow.CreateProvisioningProfile(opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProfileNameMissing))

	var wfErr *Error
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, KindConfiguration, wfErr.Kind)

	assert.Zero(t, h.signer.calls)
	assert.Empty(t, h.portal.calls)
	assert.Empty(t, h.openssl.Calls())
}

func TestCreateProfileInvalidOptions(t *testing.T) {
	h := newHarness(t)

	opts := h.createOptions()
	opts.BundleIdentifier = ""
	opts.PrivateKeyPath = filepath.Join(h.dir, "missing.pem")

	_, err := h.workflow.CreateProvisioningProfile(opts)
	var wfErr *Error
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, KindConfiguration, wfErr.Kind)

	fields := map[string]string{}
	for _, fe := range ValidationErrors(err) {
		fields[fe.Field()] = fe.Tag()
	}
	assert.Equal(t, map[string]string{"BundleIdentifier": "required", "PrivateKeyPath": "file"}, fields)
	assert.Empty(t, h.portal.calls)

	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestCreateProfileRejectsForeignIdentity(t *testing.T) {
	h := newHarness(t)
	h.portal.certs = []appstore.Certificate{h.portalCertificate("CERT1", h.dev)}
	h.fake.bundle = testpki.RSA(t, "Apple Development: Impostor", "IMPOSTOR00")

	_, err := h.workflow.CreateProvisioningProfile(h.createOptions())
	var wfErr *Error
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, KindIdentity, wfErr.Kind)
	assert.Empty(t, h.security.Calls(), "nothing is imported")
	assert.NotContains(t, h.portal.calls, "CreateProfile")
}

func TestCreateProfileImportsIntermediates(t *testing.T) {
	h := newHarness(t)
	h.portal.certs = []appstore.Certificate{h.portalCertificate("CERT1", h.dev)}
	h.portal.created = portalProfile("NEWPROFILE", "n", "IOS_APP_DEVELOPMENT", []byte("p"))

	intermediate := filepath.Join(h.dir, "AppleWWDRCAG4.cer")
	require.NoError(t, os.WriteFile(intermediate, []byte("der"), 0600))

	opts := h.createOptions()
	opts.IntermediateCertificates = []string{intermediate}
	opts.AppleCA = true

	_, err := h.workflow.CreateProvisioningProfile(opts)
	require.NoError(t, err)

	lines := h.security.CommandLines()
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "-P p12-password")
	assert.Equal(t, "security import "+intermediate+" -k ci.keychain -T /usr/bin/codesign", lines[1])
	assert.Regexp(t, `^security import .*/AppleWWDRCAG3\.cer -k ci\.keychain -T /usr/bin/codesign$`, lines[2])
	assert.Regexp(t, `^security import .*/AppleRootCA\.cer -k ci\.keychain -T /usr/bin/codesign$`, lines[3])
	assert.Contains(t, lines[4], "set-key-partition-list")
}

func TestCreateProfileKeychainFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.portal.certs = []appstore.Certificate{h.portalCertificate("CERT1", h.dev)}
	h.security.Handler = func(string, []string) shell.Output {
		return shelltest.Failure(1, "security: SecKeychainItemImport: The specified keychain could not be found.")
	}

	_, err := h.workflow.CreateProvisioningProfile(h.createOptions())
	var shellErr *shell.Error
	require.True(t, errors.As(err, &shellErr))
	assert.NotContains(t, h.portal.calls, "ResolveBundleID")
	assert.True(t, h.scratchEmpty())
}

func TestCreateProfileLogsMobileProvisionDetails(t *testing.T) {
	h := newHarness(t)
	mock := clock.NewMock()
	mock.Set(time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC))
	h.workflow.clock = mock

	payload, err := plist.Marshal(map[string]interface{}{
		"Name":               "X",
		"UUID":               "UUID-1234",
		"TeamIdentifier":     []string{"ABCDE12345"},
		"ProvisionedDevices": []string{"u1", "u2"},
		"ExpirationDate":     time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}, plist.XMLFormat)
	require.NoError(t, err)
	signer := testpki.RSA(t, "Profile Signing", "")
	content := testpki.SignedData(t, signer, payload)

	h.portal.profiles = []appstore.Profile{*portalProfile("EXISTING", "X", "IOS_APP_DEVELOPMENT", content)}
	opts := h.createOptions()
	opts.ProfileName = "X"

	_, err = h.workflow.CreateProvisioningProfile(opts)
	require.NoError(t, err)

	logs := h.logs.String()
	assert.Contains(t, logs, "uuid=UUID-1234")
	assert.Contains(t, logs, "team=ABCDE12345")
	assert.Contains(t, logs, "devices=2")
	assert.Contains(t, logs, "provisioning profile is expired")
}

func TestCreateProfileEnterpriseAudience(t *testing.T) {
	h := newHarness(t)
	h.portal.profiles = []appstore.Profile{*portalProfile("EXISTING", "X", "IOS_APP_INHOUSE", []byte("p"))}

	opts := h.createOptions()
	opts.Enterprise = true
	opts.ProfileName = "X"

	_, err := h.workflow.CreateProvisioningProfile(opts)
	require.NoError(t, err)
	assert.Equal(t, []token.Audience{token.Enterprise}, h.signer.audiences)
}
