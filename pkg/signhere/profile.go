package signhere

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aluedeke/go-signhere/pkg/appstore"
	"github.com/aluedeke/go-signhere/pkg/identity"
	"github.com/aluedeke/go-signhere/pkg/provisioning"
)

// Result describes the profile a run left at the output path
type Result struct {
	ProfileID string
	// Created is false when an existing profile was reused
	Created bool
	// Replaced is the id of the profile deleted for regeneration, if any
	Replaced string
}

// CreateProvisioningProfile makes sure a provisioning profile exists for the
// bundle identifier, writes it to opts.OutputPath and installs the matching
// signing identity into the keychain.
//
// A profile named opts.ProfileName is reused as is, unless AutoRegenerate is set
// and its devices differ from the enabled devices of the account, in which case
// it is deleted and created again.
func (w *Workflow) CreateProvisioningProfile(opts CreateProfileOptions) (*Result, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	tok, err := w.token(opts.Credentials)
	if err != nil {
		return nil, err
	}

	live, err := w.portal.FetchEnabledDeviceIDs(tok)
	if err != nil {
		return nil, err
	}

	var replaced string
	if opts.ProfileName != "" {
		existing, err := w.findProfile(tok, opts.ProfileName)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if !opts.AutoRegenerate || !w.shouldRegenerate(existing, opts.ProfileType, live) {
				if err := w.save(existing, opts.OutputPath); err != nil {
					return nil, err
				}
				w.logger.Info("The profile already exists", "id", existing.ID, "name", existing.Attributes.Name)
				return &Result{ProfileID: existing.ID}, nil
			}
			if err := w.portal.DeleteProfile(tok, existing.ID); err != nil {
				return nil, err
			}
			w.logger.Info("Deleted profile", "id", existing.ID)
			replaced = existing.ID
		}
	}

	profile, err := w.createProfile(tok, opts, live)
	if err != nil {
		return nil, err
	}
	return &Result{ProfileID: profile.ID, Created: true, Replaced: replaced}, nil
}

// findProfile returns the first fetched profile whose name matches exactly
func (w *Workflow) findProfile(tok, name string) (*appstore.Profile, error) {
	profiles, err := w.portal.FetchProfiles(tok, name)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].Attributes.Name == name {
			return &profiles[i], nil
		}
	}
	return nil, nil
}

func (w *Workflow) shouldRegenerate(profile *appstore.Profile, requestedType string, live provisioning.DeviceSet) bool {
	profileType := profile.Attributes.ProfileType
	if profileType == "" {
		profileType = requestedType
	}
	decision := provisioning.Reconcile(provisioning.ParseType(profileType), profile.DeviceIDs(), live)
	if decision.Regenerate {
		w.logger.Info("The profile will be regenerated because it is missing the device(s): "+strings.Join(decision.Missing, ", "),
			"id", profile.ID)
	}
	return decision.Regenerate
}

func (w *Workflow) createProfile(tok string, opts CreateProfileOptions, live provisioning.DeviceSet) (*appstore.Profile, error) {
	dir, err := os.MkdirTemp(w.tempDir, "signhere-")
	if err != nil {
		return nil, &Error{Kind: KindFileSystem, Op: "create temporary directory", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			w.logger.Debug("failed to remove temporary directory", "dir", dir, "error", err)
		}
	}()

	csrPath := filepath.Join(dir, "certificate_request.csr")
	if err := w.toolkit.CreateCSR(opts.PrivateKeyPath, opts.CSRSubject, csrPath); err != nil {
		return nil, err
	}

	cert, err := w.fetchOrCreateCertificate(tok, opts, csrPath)
	if err != nil {
		return nil, err
	}
	der, err := cert.DER()
	if err != nil {
		return nil, err
	}

	cerPath := filepath.Join(dir, cert.ID+".cer")
	if err := os.WriteFile(cerPath, der, 0600); err != nil {
		return nil, &Error{Kind: KindFileSystem, Op: "write certificate", Err: err}
	}

	pemPath := filepath.Join(dir, "certificate.pem")
	if err := w.toolkit.ConvertDERToPEM(cerPath, pemPath); err != nil {
		return nil, err
	}

	password := w.newPassword()
	p12Path := filepath.Join(dir, "identity.p12")
	if err := w.toolkit.ExportPKCS12(pemPath, opts.PrivateKeyPath, password, p12Path); err != nil {
		return nil, err
	}
	if err := w.verifyIdentity(p12Path, password, der); err != nil {
		return nil, err
	}

	if err := w.keychain.ImportIdentity(opts.KeychainName, p12Path, password); err != nil {
		return nil, err
	}
	if err := w.importIntermediates(dir, opts); err != nil {
		return nil, err
	}
	if err := w.keychain.SetKeyPartitionList(opts.KeychainName, opts.KeychainPassword); err != nil {
		return nil, err
	}

	bundleID, err := w.portal.ResolveBundleID(tok, opts.BundleIdentifier, opts.Platform, opts.BundleIdentifierName)
	if err != nil {
		return nil, err
	}

	profile, err := w.portal.CreateProfile(tok, appstore.ProfileRequest{
		BundleID:      bundleID,
		CertificateID: cert.ID,
		DeviceIDs:     live,
		ProfileType:   opts.ProfileType,
		Name:          opts.ProfileName,
	})
	if err != nil {
		return nil, err
	}
	if err := w.save(profile, opts.OutputPath); err != nil {
		return nil, err
	}
	w.logger.Info("created provisioning profile", "id", profile.ID, "name", profile.Attributes.Name)
	return profile, nil
}

// fetchOrCreateCertificate prefers the first valid certificate issued for the
// private key and only submits the CSR when there is none.
func (w *Workflow) fetchOrCreateCertificate(tok string, opts CreateProfileOptions, csrPath string) (*appstore.Certificate, error) {
	matcher := w.toolkit.NewKeyMatcher(opts.PrivateKeyPath)
	active, err := w.portal.FetchActiveCertificates(tok, matcher, opts.CertificateType)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		w.logger.Info("using existing certificate", "id", active[0].ID, "name", active[0].Attributes.DisplayName)
		return &active[0], nil
	}

	csr, err := os.ReadFile(csrPath)
	if err != nil {
		return nil, &Error{Kind: KindFileSystem, Op: "read certificate signing request", Err: err}
	}
	return w.portal.CreateCertificate(tok, csr, opts.CertificateType)
}

// verifyIdentity checks that the exported bundle opens with password and holds
// the portal certificate next to a matching key.
func (w *Workflow) verifyIdentity(p12Path, password string, certDER []byte) error {
	data, err := os.ReadFile(p12Path)
	if err != nil {
		return &Error{Kind: KindFileSystem, Op: "read P12 identity", Err: err}
	}
	id, err := identity.Load(data, password)
	if err != nil {
		return &Error{Kind: KindIdentity, Op: "verify P12 identity", Err: err}
	}
	if !bytes.Equal(id.Certificate.Raw, certDER) {
		return &Error{Kind: KindIdentity, Op: "verify P12 identity", Err: fmt.Errorf("bundle holds %q instead of the portal certificate", id.Certificate.Subject.CommonName)}
	}
	w.logger.Debug("verified P12 identity", "subject", id.Certificate.Subject.CommonName, "team", id.TeamID)
	return nil
}

func (w *Workflow) importIntermediates(dir string, opts CreateProfileOptions) error {
	paths := append([]string(nil), opts.IntermediateCertificates...)

	if opts.AppleCA {
		cas, err := identity.AppleCACertificates()
		if err != nil {
			return &Error{Kind: KindIdentity, Op: "load Apple CA certificates", Err: err}
		}
		for _, ca := range cas {
			path := filepath.Join(dir, ca.Name+".cer")
			if err := os.WriteFile(path, ca.Certificate.Raw, 0600); err != nil {
				return &Error{Kind: KindFileSystem, Op: "write Apple CA certificate", Err: err}
			}
			paths = append(paths, path)
		}
	}

	for _, path := range paths {
		if err := w.keychain.ImportCertificate(opts.KeychainName, path); err != nil {
			return err
		}
	}
	return nil
}

// save writes the decoded profile content to path
func (w *Workflow) save(profile *appstore.Profile, path string) error {
	content, err := profile.Content()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return &Error{Kind: KindFileSystem, Op: "write provisioning profile", Err: err}
	}
	w.describe(content, path)
	return nil
}

// describe logs what the written profile contains. Content that does not parse
// is only noted, the portal is the source of truth.
func (w *Workflow) describe(content []byte, path string) {
	mp, err := provisioning.ParseMobileProvision(content)
	if err != nil {
		w.logger.Debug("could not inspect provisioning profile", "path", path, "error", err)
		return
	}
	w.logger.Info("wrote provisioning profile",
		"path", path,
		"uuid", mp.UUID,
		"team", mp.TeamID(),
		"devices", len(mp.ProvisionedDevices),
		"expires", mp.ExpirationDate.Format("2006-01-02"))
	if mp.IsExpired(w.clock.Now()) {
		w.logger.Warn("provisioning profile is expired", "path", path, "expired", mp.ExpirationDate)
	}
}
