package main

import (
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/aluedeke/go-signhere/pkg/provisioning"
)

func showProfileInfo(profilePath, certPath string, w io.Writer) error {
	profileData, err := os.ReadFile(profilePath)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	profile, err := provisioning.ParseMobileProvision(profileData)
	if err != nil {
		return fmt.Errorf("failed to parse profile: %w", err)
	}

	fmt.Fprintln(w, "Provisioning Profile Information")
	fmt.Fprintln(w, "================================")
	fmt.Fprintf(w, "File:           %s\n", profilePath)
	fmt.Fprintf(w, "Name:           %s\n", profile.Name)
	fmt.Fprintf(w, "Team ID:        %s\n", profile.TeamID())
	fmt.Fprintf(w, "App ID:         %s\n", profile.ApplicationIdentifier())
	fmt.Fprintf(w, "UUID:           %s\n", profile.UUID)
	fmt.Fprintf(w, "Created:        %s\n", profile.CreationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Expiration:     %s\n", profile.ExpirationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Expired:        %v\n", profile.IsExpired(time.Now()))
	if certs, err := profile.Certificates(); err == nil {
		fmt.Fprintf(w, "Certificates:   %d\n", len(certs))
		for i, cert := range certs {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, cert.Subject.CommonName)
			fmt.Fprintf(w, "      Serial: %s\n", cert.SerialNumber.String())
			fmt.Fprintf(w, "      Expires: %s\n", cert.NotAfter.Format("2006-01-02"))
			if len(cert.Subject.OrganizationalUnit) > 0 {
				fmt.Fprintf(w, "      Team ID: %s\n", cert.Subject.OrganizationalUnit[0])
			}
		}
	}

	if certPath != "" {
		der, err := readCertificate(certPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Contains %s: %v\n", certPath, profile.MatchesCertificate(der))
	}

	if profile.ProvisionsAllDevices {
		fmt.Fprintln(w, "Devices:        all")
	} else if len(profile.ProvisionedDevices) > 0 {
		fmt.Fprintf(w, "Devices:        %d\n", len(profile.ProvisionedDevices))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Provisioned Devices:")
		for _, udid := range profile.ProvisionedDevices {
			fmt.Fprintf(w, "  - %s\n", udid)
		}
	}

	if len(profile.Entitlements) > 0 {
		keys := make([]string, 0, len(profile.Entitlements))
		for key := range profile.Entitlements {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintln(w)
		fmt.Fprintln(w, "Entitlements:")
		for _, key := range keys {
			fmt.Fprintf(w, "  %s: %v\n", key, profile.Entitlements[key])
		}
	}

	return nil
}

// readCertificate returns the DER bytes of a certificate file in DER or PEM form
func readCertificate(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}
	return data, nil
}
