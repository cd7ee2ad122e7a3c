package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/docopt/docopt-go"

	"github.com/aluedeke/go-signhere/pkg/appstore"
	"github.com/aluedeke/go-signhere/pkg/keychain"
	"github.com/aluedeke/go-signhere/pkg/openssl"
	"github.com/aluedeke/go-signhere/pkg/shell"
	"github.com/aluedeke/go-signhere/pkg/signhere"
	"github.com/aluedeke/go-signhere/pkg/token"
)

const version = "1.0.0"

const usage = `signhere - provisioning profiles and signing identities for CI

Creates App Store Connect certificates and provisioning profiles on demand and
installs the signing identity into a dedicated macOS keychain.

Usage:
  signhere create-keychain --keychain-name=<name> --keychain-password=<password> [options]
  signhere delete-keychain --keychain-name=<name> [options]
  signhere list-keychains [options]
  signhere create-provisioning-profile --private-key-path=<path> --keychain-name=<name> --keychain-password=<password> --bundle-identifier=<id> --platform=<platform> --profile-type=<type> --certificate-type=<type> --output-path=<path> --certificate-signing-request-subject=<subject> [options]
  signhere delete-provisioning-profile --provisioning-profile-id=<id> [options]
  signhere register-device --name=<name> --platform=<platform> --udid=<udid> [options]
  signhere profile-info --profile=<path> [--certificate=<path>] [options]
  signhere -h | --help
  signhere --version

Commands:
  create-keychain              Replace the named keychain with a fresh, unlocked default keychain
  delete-keychain              Delete a keychain and restore login.keychain as the default
  list-keychains               Print the keychain search list
  create-provisioning-profile  Fetch or create a certificate and profile, install the identity
  delete-provisioning-profile  Delete a provisioning profile by its portal id
  register-device              Register a device with the account
  profile-info                 Display the contents of a .mobileprovision file

Options:
  --keychain-name=<name>                           Keychain to create, delete or import into
  --keychain-password=<password>                   Password of the keychain
  --private-key-path=<path>                        RSA key the signing certificate is issued for (openssl genrsa -out key.pem 2048)
  --bundle-identifier=<id>                         Bundle identifier the profile is created for
  --bundle-identifier-name=<name>                  Display name narrowing the bundle identifier lookup
  --platform=<platform>                            IOS or MAC_OS
  --profile-type=<type>                            Profile type, e.g. IOS_APP_DEVELOPMENT or IOS_APP_ADHOC
  --certificate-type=<type>                        Certificate type, e.g. IOS_DEVELOPMENT or IOS_DISTRIBUTION
  --output-path=<path>                             Where to save the provisioning profile
  --certificate-signing-request-subject=<subject>  CSR subject in openssl form, e.g. /CN=Jane Roe/C=US
  --profile-name=<name>                            Name of the profile to reuse or create
  --auto-regenerate                                Regenerate the named profile when its devices are out of date
  --intermediary-apple-certificates=<paths>        Comma separated certificates imported next to the identity
  --apple-ca                                       Also import the bundled Apple WWDR G3 and root certificates
  --provisioning-profile-id=<id>                   Portal id of the profile to delete
  --name=<name>                                    Device name, e.g. Jane's iPhone
  --udid=<udid>                                    Device UDID
  --profile=<path>                                 Path to a .mobileprovision file
  --certificate=<path>                             Check whether the profile embeds this certificate (DER or PEM)
  --key-identifier=<kid>                           API key id (or SIGNHERE_KEY_IDENTIFIER)
  --issuer-id=<issuer>                             API key issuer id (or SIGNHERE_ISSUER_ID)
  --itunes-connect-key-path=<path>                 API key .p8 file (or SIGNHERE_ITUNES_CONNECT_KEY_PATH)
  --enterprise                                     Use the Apple Developer Enterprise API
  --openssl-path=<path>                            openssl executable (default openssl)
  --security-path=<path>                           security executable (default /usr/bin/security)
  --config=<path>                                  Config file, defaults to signhere.yaml in . or ~/.config/signhere
  --log-level=<level>                              ERROR, WARNING, INFO or DEBUG
  -h --help                                        Show this help message
  --version                                        Show version

Examples:
  # Prepare a keychain for the build
  signhere create-keychain --keychain-name=ci.keychain --keychain-password=secret

  # Create or reuse a development profile and install its identity
  export SIGNHERE_KEY_IDENTIFIER=ABC123DEFG
  export SIGNHERE_ISSUER_ID=69a6de7e-0000-47e3-e053-5b8c7c11a4d1
  export SIGNHERE_ITUNES_CONNECT_KEY_PATH=AuthKey_ABC123DEFG.p8
  signhere create-provisioning-profile --private-key-path=key.pem \
    --keychain-name=ci.keychain --keychain-password=secret \
    --bundle-identifier=com.example.app --platform=IOS \
    --profile-type=IOS_APP_DEVELOPMENT --certificate-type=IOS_DEVELOPMENT \
    --output-path=dev.mobileprovision --certificate-signing-request-subject="/CN=Jane Roe/C=US" \
    --profile-name=ci-dev --auto-regenerate --apple-ca

  # Clean up
  signhere delete-keychain --keychain-name=ci.keychain
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}
	os.Exit(run(opts, os.Stdout, os.Stderr))
}

// run executes the selected command and returns the process exit code
func run(opts docopt.Opts, stdout, stderr io.Writer) int {
	configPath, _ := opts.String("--config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	applyFlags(opts, cfg)
	logger := initLogger(cfg.Log.Level, stderr)

	if err := dispatch(opts, cfg, logger, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", describe(err))
		return 1
	}
	return 0
}

func dispatch(opts docopt.Opts, cfg *Config, logger *slog.Logger, stdout io.Writer) error {
	if info, _ := opts.Bool("profile-info"); info {
		profilePath, _ := opts.String("--profile")
		certPath, _ := opts.String("--certificate")
		return showProfileInfo(profilePath, certPath, stdout)
	}
	if list, _ := opts.Bool("list-keychains"); list {
		return listKeychains(keychain.New(cfg.SecurityPath), stdout)
	}

	w := newWorkflow(cfg, logger)
	name, _ := opts.String("--keychain-name")
	password, _ := opts.String("--keychain-password")

	switch {
	case flag(opts, "create-keychain"):
		if err := w.CreateKeychain(signhere.KeychainOptions{Name: name, Password: password}); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Created keychain %s\n", name)

	case flag(opts, "delete-keychain"):
		if err := w.DeleteKeychain(name); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted keychain %s\n", name)

	case flag(opts, "create-provisioning-profile"):
		res, err := w.CreateProvisioningProfile(createProfileOptions(opts, cfg))
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, res.ProfileID)

	case flag(opts, "delete-provisioning-profile"):
		id, _ := opts.String("--provisioning-profile-id")
		if err := w.DeleteProvisioningProfile(signhere.DeleteProfileOptions{Credentials: credentials(cfg), ProfileID: id}); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted profile %s\n", id)

	case flag(opts, "register-device"):
		device, err := w.RegisterDevice(signhere.RegisterDeviceOptions{
			Credentials: credentials(cfg),
			Name:        str(opts, "--name"),
			Platform:    str(opts, "--platform"),
			UDID:        str(opts, "--udid"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, device.ID)
	}
	return nil
}

// newWorkflow is the composition root: one set of collaborators per invocation
func newWorkflow(cfg *Config, logger *slog.Logger) *signhere.Workflow {
	return signhere.New(
		token.NewSigner(nil),
		appstore.NewClient(cfg.Enterprise, appstore.WithLogger(logger)),
		openssl.New(cfg.OpenSSLPath),
		keychain.New(cfg.SecurityPath),
		signhere.WithLogger(logger),
	)
}

func listKeychains(kc *keychain.Keychain, stdout io.Writer) error {
	names, err := kc.SearchList()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

// applyFlags lets command line flags override configured values
func applyFlags(opts docopt.Opts, cfg *Config) {
	override := func(dst *string, key string) {
		if v := str(opts, key); v != "" {
			*dst = v
		}
	}
	override(&cfg.KeyIdentifier, "--key-identifier")
	override(&cfg.IssuerID, "--issuer-id")
	override(&cfg.ItunesConnectKeyPath, "--itunes-connect-key-path")
	override(&cfg.OpenSSLPath, "--openssl-path")
	override(&cfg.SecurityPath, "--security-path")
	override(&cfg.Log.Level, "--log-level")
	if flag(opts, "--enterprise") {
		cfg.Enterprise = true
	}
}

func credentials(cfg *Config) signhere.Credentials {
	return signhere.Credentials{
		KeyIdentifier: cfg.KeyIdentifier,
		IssuerID:      cfg.IssuerID,
		APIKeyPath:    cfg.ItunesConnectKeyPath,
		Enterprise:    cfg.Enterprise,
	}
}

func createProfileOptions(opts docopt.Opts, cfg *Config) signhere.CreateProfileOptions {
	return signhere.CreateProfileOptions{
		Credentials:              credentials(cfg),
		PrivateKeyPath:           str(opts, "--private-key-path"),
		KeychainName:             str(opts, "--keychain-name"),
		KeychainPassword:         str(opts, "--keychain-password"),
		BundleIdentifier:         str(opts, "--bundle-identifier"),
		BundleIdentifierName:     str(opts, "--bundle-identifier-name"),
		Platform:                 str(opts, "--platform"),
		ProfileType:              str(opts, "--profile-type"),
		CertificateType:          str(opts, "--certificate-type"),
		OutputPath:               str(opts, "--output-path"),
		CSRSubject:               str(opts, "--certificate-signing-request-subject"),
		IntermediateCertificates: parseCommaSeparated(str(opts, "--intermediary-apple-certificates")),
		AppleCA:                  flag(opts, "--apple-ca"),
		ProfileName:              str(opts, "--profile-name"),
		AutoRegenerate:           flag(opts, "--auto-regenerate"),
	}
}

func str(opts docopt.Opts, key string) string {
	v, _ := opts.String(key)
	return v
}

func flag(opts docopt.Opts, key string) bool {
	v, _ := opts.Bool(key)
	return v
}

// flagNames maps option struct fields to the flags that set them
var flagNames = map[string]string{
	"KeyIdentifier":            "--key-identifier",
	"IssuerID":                 "--issuer-id",
	"APIKeyPath":               "--itunes-connect-key-path",
	"PrivateKeyPath":           "--private-key-path",
	"KeychainName":             "--keychain-name",
	"KeychainPassword":         "--keychain-password",
	"BundleIdentifier":         "--bundle-identifier",
	"Platform":                 "--platform",
	"ProfileType":              "--profile-type",
	"CertificateType":          "--certificate-type",
	"OutputPath":               "--output-path",
	"CSRSubject":               "--certificate-signing-request-subject",
	"IntermediateCertificates": "--intermediary-apple-certificates",
	"ProfileID":                "--provisioning-profile-id",
	"Name":                     "--name",
	"UDID":                     "--udid",

	"KeychainOptions.Name":     "--keychain-name",
	"KeychainOptions.Password": "--keychain-password",
}

// describe renders err with the diagnostics carried by the error chain:
// failing command lines and their output, portal response bodies and invalid flags.
func describe(err error) string {
	var b strings.Builder
	b.WriteString(err.Error())

	if errors.Is(err, signhere.ErrProfileNameMissing) {
		b.WriteString("\n--auto-regenerate flag requires that you include a profile name using the argument --profile-name")
	}

	for _, fe := range signhere.ValidationErrors(err) {
		name, ok := flagNames[fe.StructNamespace()]
		if !ok {
			name, ok = flagNames[fe.Field()]
		}
		if !ok {
			name = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			fmt.Fprintf(&b, "\n  %s is required", name)
		case "file":
			fmt.Fprintf(&b, "\n  %s: no such file %q", name, fe.Value())
		default:
			fmt.Fprintf(&b, "\n  %s: failed %q check", name, fe.Tag())
		}
	}

	var shellErr *shell.Error
	if errors.As(err, &shellErr) {
		fmt.Fprintf(&b, "\n  command: %s", strings.Join(redact(shellErr.Command), " "))
		fmt.Fprintf(&b, "\n  status:  %d", shellErr.Output.Status)
		if out := strings.TrimSpace(shellErr.Output.StdoutString()); out != "" {
			fmt.Fprintf(&b, "\n  stdout:  %s", out)
		}
		if out := strings.TrimSpace(shellErr.Output.StderrString()); out != "" {
			fmt.Fprintf(&b, "\n  stderr:  %s", out)
		}
	}

	var apiErr *appstore.Error
	if errors.As(err, &apiErr) && len(apiErr.Body) > 0 {
		fmt.Fprintf(&b, "\n  response: %s", strings.TrimSpace(string(apiErr.Body)))
	}

	var tokErr *token.Error
	if errors.As(err, &tokErr) {
		b.WriteString("\n  check --itunes-connect-key-path points to the .p8 key downloaded from App Store Connect")
	}
	return b.String()
}

// redact hides passwords passed on a command line
func redact(command []string) []string {
	partitionList := len(command) > 1 && command[1] == "set-key-partition-list"
	out := make([]string, len(command))
	for i, arg := range command {
		prev := ""
		if i > 0 {
			prev = command[i-1]
		}
		switch {
		case prev == "-p" || prev == "-P" || (partitionList && prev == "-k"):
			out[i] = "***"
		case strings.HasPrefix(arg, "pass:"):
			out[i] = "pass:***"
		default:
			out[i] = arg
		}
	}
	return out
}
