// Package keychain wraps the macOS security tool for the keychain operations a
// CI signing setup needs.
package keychain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aluedeke/go-signhere/pkg/shell"
)

const (
	// DefaultPath is the security tool shipped with macOS
	DefaultPath = "/usr/bin/security"

	// Login is the user's login keychain
	Login = "login.keychain"

	// CodesignPath is granted access to imported items
	CodesignPath = "/usr/bin/codesign"

	notFound = "The specified keychain could not be found"
)

// Op names a keychain operation
type Op string

const (
	OpCreate           Op = "create keychain"
	OpDelete           Op = "delete existing keychain"
	OpSetSearchList    Op = "update keychain search list"
	OpSearchList       Op = "list keychains"
	OpSetDefault       Op = "set default keychain"
	OpSetSettings      Op = "update keychain lock timeout"
	OpUnlock           Op = "unlock keychain"
	OpImportIdentity   Op = "import P12 identity into keychain"
	OpImportCert       Op = "import certificate into keychain"
	OpSetPartitionList Op = "update keychain partition list"
)

// Error reports a failed security invocation
type Error struct {
	Op       Op
	Keychain string
	// Item is the imported file, if any
	Item string
	Err  error
}

func (e *Error) Error() string {
	msg := "failed to " + string(e.Op)
	if e.Keychain != "" {
		msg += " " + e.Keychain
	}
	if e.Item != "" {
		msg += " (" + e.Item + ")"
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Keychain runs security subcommands through a shell.Runner
type Keychain struct {
	Path   string
	Runner shell.Runner
}

// New returns a Keychain for the given security binary, running commands locally
func New(path string) *Keychain {
	return &Keychain{Path: path, Runner: shell.Local{}}
}

func (k *Keychain) exec(op Op, keychain, item string, args ...string) (shell.Output, error) {
	path := k.Path
	if path == "" {
		path = DefaultPath
	}
	runner := k.Runner
	if runner == nil {
		runner = shell.Local{}
	}
	out, err := shell.Exec(runner, path, args...)
	if err != nil {
		return out, &Error{Op: op, Keychain: keychain, Item: item, Err: err}
	}
	return out, nil
}

// Create creates a keychain protected by password
func (k *Keychain) Create(name, password string) error {
	_, err := k.exec(OpCreate, name, "", "create-keychain", "-p", password, name)
	return err
}

// Delete removes a keychain. A keychain that does not exist is not an error.
func (k *Keychain) Delete(name string) error {
	out, err := k.exec(OpDelete, name, "", "delete-keychain", name)
	if err != nil && strings.Contains(out.StderrString(), notFound) {
		return nil
	}
	return err
}

// SetSearchList replaces the user's keychain search list
func (k *Keychain) SetSearchList(names ...string) error {
	args := append([]string{"list-keychains", "-d", "user", "-s"}, names...)
	_, err := k.exec(OpSetSearchList, "", "", args...)
	return err
}

// SearchList returns the user's keychain search list
func (k *Keychain) SearchList() ([]string, error) {
	out, err := k.exec(OpSearchList, "", "", "list-keychains", "-d", "user")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out.StdoutString(), "\n") {
		line = strings.Trim(strings.TrimSpace(line), `"`)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// SetDefault makes name the user's default keychain
func (k *Keychain) SetDefault(name string) error {
	_, err := k.exec(OpSetDefault, name, "", "default-keychain", "-s", name)
	return err
}

// SetSettings makes the keychain lock after timeout of inactivity and on sleep
func (k *Keychain) SetSettings(name string, timeout time.Duration) error {
	seconds := strconv.Itoa(int(timeout / time.Second))
	_, err := k.exec(OpSetSettings, name, "", "set-keychain-settings", "-t", seconds, "-l", name)
	return err
}

// Unlock unlocks the keychain with password
func (k *Keychain) Unlock(name, password string) error {
	_, err := k.exec(OpUnlock, name, "", "unlock-keychain", "-p", password, name)
	return err
}

// ImportIdentity imports a PKCS#12 bundle and lets codesign use it
func (k *Keychain) ImportIdentity(name, p12Path, password string) error {
	_, err := k.exec(OpImportIdentity, name, p12Path,
		"import", p12Path, "-k", name, "-P", password, "-T", CodesignPath)
	return err
}

// ImportCertificate imports a certificate file and lets codesign use it
func (k *Keychain) ImportCertificate(name, certPath string) error {
	_, err := k.exec(OpImportCert, name, certPath,
		"import", certPath, "-k", name, "-T", CodesignPath)
	return err
}

// SetKeyPartitionList allows Apple tools and codesign to use the keychain's
// keys without an interactive prompt.
func (k *Keychain) SetKeyPartitionList(name, password string) error {
	_, err := k.exec(OpSetPartitionList, name, "",
		"set-key-partition-list", "-S", "apple-tool:,apple:,codesign:", "-s", "-k", password, name)
	return err
}
