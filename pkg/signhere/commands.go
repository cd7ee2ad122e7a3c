package signhere

import (
	"time"

	"github.com/aluedeke/go-signhere/pkg/appstore"
	"github.com/aluedeke/go-signhere/pkg/keychain"
)

// KeychainLockTimeout is how long a created keychain stays unlocked
const KeychainLockTimeout = 2 * time.Hour

// DeleteProvisioningProfile deletes a profile by its portal id
func (w *Workflow) DeleteProvisioningProfile(opts DeleteProfileOptions) error {
	if err := validateOptions(opts); err != nil {
		return err
	}
	tok, err := w.token(opts.Credentials)
	if err != nil {
		return err
	}
	if err := w.portal.DeleteProfile(tok, opts.ProfileID); err != nil {
		return err
	}
	w.logger.Info("Deleted profile", "id", opts.ProfileID)
	return nil
}

// RegisterDevice registers a device with the account
func (w *Workflow) RegisterDevice(opts RegisterDeviceOptions) (*appstore.Device, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	tok, err := w.token(opts.Credentials)
	if err != nil {
		return nil, err
	}
	return w.portal.RegisterDevice(tok, opts.Name, opts.Platform, opts.UDID)
}

// CreateKeychain replaces any keychain of the same name with a fresh, unlocked
// default keychain searched before the login keychain.
func (w *Workflow) CreateKeychain(opts KeychainOptions) error {
	if err := validateOptions(opts); err != nil {
		return err
	}
	if err := w.keychain.Delete(opts.Name); err != nil {
		return err
	}
	if err := w.keychain.Create(opts.Name, opts.Password); err != nil {
		return err
	}
	if err := w.keychain.SetSearchList(opts.Name, keychain.Login); err != nil {
		return err
	}
	if err := w.keychain.SetDefault(opts.Name); err != nil {
		return err
	}
	if err := w.keychain.SetSettings(opts.Name, KeychainLockTimeout); err != nil {
		return err
	}
	if err := w.keychain.Unlock(opts.Name, opts.Password); err != nil {
		return err
	}
	w.logger.Info("created keychain", "name", opts.Name)
	return nil
}

// DeleteKeychain deletes a keychain and restores the login keychain as the
// only searched and default keychain. A missing keychain is not an error.
func (w *Workflow) DeleteKeychain(name string) error {
	if name == "" {
		return &Error{Kind: KindConfiguration, Op: "validate options", Err: errKeychainNameMissing}
	}
	if err := w.keychain.Delete(name); err != nil {
		return err
	}
	if err := w.keychain.SetSearchList(keychain.Login); err != nil {
		return err
	}
	if err := w.keychain.SetDefault(keychain.Login); err != nil {
		return err
	}
	w.logger.Info("deleted keychain", "name", name)
	return nil
}
