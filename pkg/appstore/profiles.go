package appstore

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/aluedeke/go-signhere/pkg/provisioning"
)

// ProfileRequest describes a profile to create
type ProfileRequest struct {
	BundleID      string
	CertificateID string
	// DeviceIDs is ignored for profile types that do not use devices
	DeviceIDs   provisioning.DeviceSet
	ProfileType string
	// Name defaults to <certificate id>_<profile type>_<unix seconds>
	Name string
}

// CreateProfile creates a provisioning profile
func (c *Client) CreateProfile(token string, pr ProfileRequest) (*Profile, error) {
	name := pr.Name
	if name == "" {
		name = fmt.Sprintf("%s_%s_%d", pr.CertificateID, pr.ProfileType, c.clock.Now().Unix())
	}

	var req createProfileRequest
	req.Data.Type = "profiles"
	req.Data.Attributes.Name = name
	req.Data.Attributes.ProfileType = pr.ProfileType
	req.Data.Relationships.BundleID.Data = ResourceRef{ID: pr.BundleID, Type: "bundleIds"}
	req.Data.Relationships.Certificates.Data = []ResourceRef{{ID: pr.CertificateID, Type: "certificates"}}
	if provisioning.ParseType(pr.ProfileType).UsesDevices() {
		devices := &relationshipMany{Data: []ResourceRef{}}
		for _, id := range pr.DeviceIDs.Sorted() {
			devices.Data = append(devices.Data, ResourceRef{ID: id, Type: "devices"})
		}
		req.Data.Relationships.Devices = devices
	}

	var resp dataResponse[Profile]
	if err := c.call("create profile", token, http.MethodPost, c.endpoint("/v1/profiles", nil), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// FetchProfiles returns the profiles the portal finds for name, with their devices
func (c *Client) FetchProfiles(token, name string) ([]Profile, error) {
	return listAll[Profile](c, "fetch profiles", token, "/v1/profiles", url.Values{
		"filter[name]": {name},
		"include":      {"devices"},
		"limit":        {pageLimit},
	})
}

// DeleteProfile deletes a profile. The portal answers 204 on success,
// anything else is KindRejected.
func (c *Client) DeleteProfile(token, id string) error {
	const op = "delete provisioning profile"

	status, body, err := c.do(op, token, http.MethodDelete, c.endpoint("/v1/profiles/"+url.PathEscape(id), nil), nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return &Error{Kind: KindRejected, Op: op, Resource: id, StatusCode: status, Body: body}
	}
	return nil
}
