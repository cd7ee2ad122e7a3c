package appstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aluedeke/go-signhere/pkg/provisioning"
)

// DateLayout is the timestamp format used on the wire
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// The portal also sends offsets without a colon, e.g. +0000
var dateLayouts = []string{DateLayout, "2006-01-02T15:04:05.000Z0700", time.RFC3339}

// Date is a portal timestamp
type Date time.Time

// Time returns d as a time.Time
func (d Date) Time() time.Time {
	return time.Time(d)
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			*d = Date(t)
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return fmt.Errorf("invalid date %q: %w", s, firstErr)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).Format(DateLayout))
}

// Links carries pagination links
type Links struct {
	Self string `json:"self,omitempty"`
	Next string `json:"next,omitempty"`
}

// ResourceRef identifies a related resource
type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type listResponse[T any] struct {
	Data  []T   `json:"data"`
	Links Links `json:"links"`
}

type dataResponse[T any] struct {
	Data T `json:"data"`
}

// Certificate is a signing certificate registered with the portal
type Certificate struct {
	ID         string                `json:"id"`
	Type       string                `json:"type"`
	Attributes CertificateAttributes `json:"attributes"`
}

type CertificateAttributes struct {
	CertificateContent string `json:"certificateContent"`
	CertificateType    string `json:"certificateType"`
	DisplayName        string `json:"displayName"`
	Name               string `json:"name"`
	Platform           string `json:"platform,omitempty"`
	SerialNumber       string `json:"serialNumber"`
	ExpirationDate     Date   `json:"expirationDate"`
}

// DER decodes the certificate content
func (c *Certificate) DER() ([]byte, error) {
	der, err := base64.StdEncoding.DecodeString(c.Attributes.CertificateContent)
	if err != nil {
		return nil, &Error{
			Kind:     KindInvalidContent,
			Op:       "base64 decode certificate",
			Resource: c.Attributes.DisplayName,
			Err:      err,
		}
	}
	return der, nil
}

// Device is a registered test device
type Device struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Attributes DeviceAttributes `json:"attributes"`
}

type DeviceAttributes struct {
	Name        string `json:"name"`
	Platform    string `json:"platform"`
	UDID        string `json:"udid"`
	Status      string `json:"status,omitempty"`
	DeviceClass string `json:"deviceClass,omitempty"`
	Model       string `json:"model,omitempty"`
	AddedDate   *Date  `json:"addedDate,omitempty"`
}

// BundleID is a registered application identifier
type BundleID struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Attributes BundleIDAttributes `json:"attributes"`
}

type BundleIDAttributes struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Platform   string `json:"platform"`
	SeedID     string `json:"seedId,omitempty"`
}

// Profile is a provisioning profile
type Profile struct {
	ID            string               `json:"id"`
	Type          string               `json:"type"`
	Attributes    ProfileAttributes    `json:"attributes"`
	Relationships ProfileRelationships `json:"relationships"`
}

type ProfileAttributes struct {
	Name           string `json:"name"`
	ProfileType    string `json:"profileType"`
	ProfileState   string `json:"profileState,omitempty"`
	ProfileContent string `json:"profileContent"`
	UUID           string `json:"uuid,omitempty"`
	Platform       string `json:"platform,omitempty"`
	CreatedDate    *Date  `json:"createdDate,omitempty"`
	ExpirationDate *Date  `json:"expirationDate,omitempty"`
}

type ProfileRelationships struct {
	Devices struct {
		Data []ResourceRef `json:"data"`
	} `json:"devices"`
}

// DeviceIDs returns the ids of the devices the profile includes
func (p *Profile) DeviceIDs() provisioning.DeviceSet {
	set := provisioning.NewDeviceSet()
	for _, ref := range p.Relationships.Devices.Data {
		set.Add(ref.ID)
	}
	return set
}

// Content decodes the profile content into the .mobileprovision bytes
func (p *Profile) Content() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Attributes.ProfileContent)
	if err != nil {
		return nil, &Error{
			Kind:     KindInvalidContent,
			Op:       "base64 decode profile",
			Resource: p.Attributes.Name,
			Err:      err,
		}
	}
	return data, nil
}

type createCertificateRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CertificateType string `json:"certificateType"`
			CSRContent      string `json:"csrContent"`
		} `json:"attributes"`
	} `json:"data"`
}

type registerDeviceRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Name     string `json:"name"`
			Platform string `json:"platform"`
			UDID     string `json:"udid"`
		} `json:"attributes"`
	} `json:"data"`
}

type relationshipOne struct {
	Data ResourceRef `json:"data"`
}

type relationshipMany struct {
	Data []ResourceRef `json:"data"`
}

type createProfileRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Name        string `json:"name"`
			ProfileType string `json:"profileType"`
		} `json:"attributes"`
		Relationships struct {
			BundleID     relationshipOne   `json:"bundleId"`
			Certificates relationshipMany  `json:"certificates"`
			Devices      *relationshipMany `json:"devices,omitempty"`
		} `json:"relationships"`
	} `json:"data"`
}
