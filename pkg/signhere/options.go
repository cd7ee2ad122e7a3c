package signhere

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Credentials identify an App Store Connect API key
type Credentials struct {
	KeyIdentifier string `validate:"required"`
	IssuerID      string `validate:"required"`
	// APIKeyPath is the .p8 file downloaded from the portal
	APIKeyPath string `validate:"required,file"`
	// Enterprise selects the Apple Developer Enterprise audience
	Enterprise bool
}

// CreateProfileOptions configures CreateProvisioningProfile
type CreateProfileOptions struct {
	Credentials

	// PrivateKeyPath is the RSA key the signing certificate is issued for
	PrivateKeyPath   string `validate:"required,file"`
	KeychainName     string `validate:"required"`
	KeychainPassword string `validate:"required"`

	BundleIdentifier string `validate:"required"`
	// BundleIdentifierName narrows the bundle id lookup by its display name
	BundleIdentifierName string
	Platform             string `validate:"required"`
	ProfileType          string `validate:"required"`
	CertificateType      string `validate:"required"`
	OutputPath           string `validate:"required"`
	// CSRSubject uses the openssl form /CN=.../O=.../C=..
	CSRSubject string `validate:"required"`

	// IntermediateCertificates are imported into the keychain next to the identity
	IntermediateCertificates []string `validate:"dive,file"`
	// AppleCA also imports the bundled Apple WWDR G3 and root certificates
	AppleCA bool

	ProfileName    string
	AutoRegenerate bool
}

// DeleteProfileOptions configures DeleteProvisioningProfile
type DeleteProfileOptions struct {
	Credentials
	ProfileID string `validate:"required"`
}

// RegisterDeviceOptions configures RegisterDevice
type RegisterDeviceOptions struct {
	Credentials
	Name     string `validate:"required"`
	Platform string `validate:"required"`
	UDID     string `validate:"required"`
}

// KeychainOptions configures CreateKeychain
type KeychainOptions struct {
	Name     string `validate:"required"`
	Password string `validate:"required"`
}

var validate = validator.New()

func validateOptions(opts interface{}) error {
	if o, ok := opts.(CreateProfileOptions); ok && o.AutoRegenerate && o.ProfileName == "" {
		return &Error{Kind: KindConfiguration, Op: "validate options", Err: ErrProfileNameMissing}
	}
	if err := validate.Struct(opts); err != nil {
		return &Error{Kind: KindConfiguration, Op: "validate options", Err: err}
	}
	return nil
}

// ValidationErrors returns the field errors behind a configuration error
func ValidationErrors(err error) validator.ValidationErrors {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return nil
}
