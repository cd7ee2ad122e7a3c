// Package openssl drives the openssl command line tool to produce the signing
// artifacts the portal and the keychain expect: certificate signing requests,
// PEM certificates, PKCS#12 identities and RSA moduli.
package openssl

import (
	"fmt"
	"os"
	"strings"

	"github.com/aluedeke/go-signhere/pkg/shell"
)

// DefaultPath is used when Toolkit.Path is empty
const DefaultPath = "openssl"

// Op names a toolkit operation
type Op string

const (
	OpCreateCSR          Op = "create certificate signing request"
	OpConvertPEM         Op = "create PEM"
	OpExportPKCS12       Op = "create P12 identity"
	OpPrivateKeyModulus  Op = "determine modulus for private key"
	OpCertificateModulus Op = "determine modulus for certificate"
)

// Error reports a failed toolkit operation. Err is usually a *shell.Error
// carrying the raw process output.
type Error struct {
	Op   Op
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s (%s): %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Toolkit runs openssl subcommands through a shell.Runner
type Toolkit struct {
	Path   string
	Runner shell.Runner
}

// New returns a Toolkit for the given binary, running commands locally
func New(path string) *Toolkit {
	return &Toolkit{Path: path, Runner: shell.Local{}}
}

func (t *Toolkit) exec(op Op, subject string, args ...string) (shell.Output, error) {
	path := t.Path
	if path == "" {
		path = DefaultPath
	}
	runner := t.Runner
	if runner == nil {
		runner = shell.Local{}
	}
	out, err := shell.Exec(runner, path, args...)
	if err != nil {
		return out, &Error{Op: op, Path: subject, Err: err}
	}
	return out, nil
}

// CreateCSR writes a certificate signing request for privateKey to out.
// subject uses the openssl form, e.g. /CN=Jane Roe/O=Example/C=US.
func (t *Toolkit) CreateCSR(privateKey, subject, out string) error {
	_, err := t.exec(OpCreateCSR, "",
		"req", "-new",
		"-key", privateKey,
		"-out", out,
		"-subj", subject,
	)
	return err
}

// ConvertDERToPEM converts the DER certificate at in to PEM at out
func (t *Toolkit) ConvertDERToPEM(in, out string) error {
	_, err := t.exec(OpConvertPEM, "",
		"x509",
		"-inform", "DER",
		"-outform", "PEM",
		"-in", in,
		"-out", out,
	)
	return err
}

// ExportPKCS12 bundles the PEM certificate and private key into a password
// protected PKCS#12 file. SHA1 MAC and 3DES encryption keep the bundle
// importable by the macOS security tool.
func (t *Toolkit) ExportPKCS12(certPEM, privateKey, password, out string) error {
	_, err := t.exec(OpExportPKCS12, "",
		"pkcs12", "-export",
		"-macalg", "sha1",
		"-keypbe", "PBE-SHA1-3DES",
		"-certpbe", "PBE-SHA1-3DES",
		"-inkey", privateKey,
		"-in", certPEM,
		"-passout", "pass:"+password,
		"-out", out,
	)
	return err
}

// PrivateKeyModulus returns the normalized modulus of the RSA key at path
func (t *Toolkit) PrivateKeyModulus(path string) (string, error) {
	out, err := t.exec(OpPrivateKeyModulus, path,
		"rsa", "-noout", "-modulus", "-in", path,
	)
	if err != nil {
		return "", err
	}
	return normalizeModulus(out.StdoutString()), nil
}

// CertificateModulus returns the normalized modulus of a DER certificate.
// openssl only reads files, so the certificate goes through a temporary file.
func (t *Toolkit) CertificateModulus(der []byte) (string, error) {
	f, err := os.CreateTemp("", "validate_private_key-*.cer")
	if err != nil {
		return "", &Error{Op: OpCertificateModulus, Err: err}
	}
	defer os.Remove(f.Name())

	_, werr := f.Write(der)
	cerr := f.Close()
	if werr != nil {
		return "", &Error{Op: OpCertificateModulus, Err: werr}
	}
	if cerr != nil {
		return "", &Error{Op: OpCertificateModulus, Err: cerr}
	}

	out, err := t.exec(OpCertificateModulus, "",
		"x509", "-inform", "der", "-noout", "-modulus", "-in", f.Name(),
	)
	if err != nil {
		return "", err
	}
	return normalizeModulus(out.StdoutString()), nil
}

// normalizeModulus trims surrounding whitespace and upper-cases the hex digits.
// Output looks like "Modulus=C0FFEE...".
func normalizeModulus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
