package openssl

// KeyMatcher tells whether certificates belong to one RSA private key by
// comparing moduli. The key's modulus is computed on first use and reused.
type KeyMatcher struct {
	toolkit    *Toolkit
	privateKey string

	computed bool
	modulus  string
	err      error
}

// NewKeyMatcher returns a matcher for the private key at privateKeyPath
func (t *Toolkit) NewKeyMatcher(privateKeyPath string) *KeyMatcher {
	return &KeyMatcher{toolkit: t, privateKey: privateKeyPath}
}

// Matches reports whether the DER certificate was issued for the private key
func (m *KeyMatcher) Matches(der []byte) (bool, error) {
	if !m.computed {
		m.modulus, m.err = m.toolkit.PrivateKeyModulus(m.privateKey)
		m.computed = true
	}
	if m.err != nil {
		return false, m.err
	}

	certModulus, err := m.toolkit.CertificateModulus(der)
	if err != nil {
		return false, err
	}
	return certModulus == m.modulus, nil
}
