package provisioning

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"go.mozilla.org/pkcs7"
	"howett.net/plist"
)

// MobileProvision is the decoded payload of a .mobileprovision file
type MobileProvision struct {
	Name                        string                 `plist:"Name"`
	UUID                        string                 `plist:"UUID"`
	TeamName                    string                 `plist:"TeamName"`
	TeamIdentifier              []string               `plist:"TeamIdentifier"`
	AppIDName                   string                 `plist:"AppIDName"`
	ApplicationIdentifierPrefix []string               `plist:"ApplicationIdentifierPrefix"`
	Platform                    []string               `plist:"Platform"`
	Entitlements                map[string]interface{} `plist:"Entitlements"`
	DeveloperCertificates       [][]byte               `plist:"DeveloperCertificates"`
	ProvisionedDevices          []string               `plist:"ProvisionedDevices"`
	ProvisionsAllDevices        bool                   `plist:"ProvisionsAllDevices"`
	CreationDate                time.Time              `plist:"CreationDate"`
	ExpirationDate              time.Time              `plist:"ExpirationDate"`
}

// ParseMobileProvision decodes profile content as returned by the portal or
// stored on disk. The file is a CMS (PKCS#7) signed container with a plist payload.
func ParseMobileProvision(data []byte) (*MobileProvision, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#7 container: %w", err)
	}

	var profile MobileProvision
	if _, err := plist.Unmarshal(p7.Content, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning profile plist: %w", err)
	}

	return &profile, nil
}

// TeamID returns the team identifier from the profile
func (p *MobileProvision) TeamID() string {
	if len(p.TeamIdentifier) > 0 {
		return p.TeamIdentifier[0]
	}
	if len(p.ApplicationIdentifierPrefix) > 0 {
		return p.ApplicationIdentifierPrefix[0]
	}
	return ""
}

// ApplicationIdentifier returns the application-identifier entitlement
func (p *MobileProvision) ApplicationIdentifier() string {
	if appID, ok := p.Entitlements["application-identifier"].(string); ok {
		return appID
	}
	return ""
}

// IsExpired reports whether the profile is expired at now
func (p *MobileProvision) IsExpired(now time.Time) bool {
	return now.After(p.ExpirationDate)
}

// Certificates parses the developer certificates embedded in the profile
func (p *MobileProvision) Certificates() ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for i, der := range p.DeveloperCertificates {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// MatchesCertificate reports whether the profile embeds the given certificate
func (p *MobileProvision) MatchesCertificate(der []byte) bool {
	for _, embedded := range p.DeveloperCertificates {
		if bytes.Equal(embedded, der) {
			return true
		}
	}
	return false
}
