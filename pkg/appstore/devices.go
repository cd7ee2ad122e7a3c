package appstore

import (
	"net/http"
	"net/url"

	"github.com/aluedeke/go-signhere/pkg/provisioning"
)

// FetchEnabledDeviceIDs returns the portal ids of all enabled iOS devices
func (c *Client) FetchEnabledDeviceIDs(token string) (provisioning.DeviceSet, error) {
	devices, err := listAll[Device](c, "fetch devices", token, "/v1/devices", url.Values{
		"filter[status]":   {"ENABLED"},
		"filter[platform]": {"IOS"},
		"limit":            {pageLimit},
	})
	if err != nil {
		return nil, err
	}

	ids := provisioning.NewDeviceSet()
	for _, d := range devices {
		ids.Add(d.ID)
	}
	return ids, nil
}

// RegisterDevice adds a device to the account
func (c *Client) RegisterDevice(token, name, platform, udid string) (*Device, error) {
	var req registerDeviceRequest
	req.Data.Type = "devices"
	req.Data.Attributes.Name = name
	req.Data.Attributes.Platform = platform
	req.Data.Attributes.UDID = udid

	var resp dataResponse[Device]
	if err := c.call("register device", token, http.MethodPost, c.endpoint("/v1/devices", nil), req, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("registered device", "id", resp.Data.ID, "udid", udid)
	return &resp.Data, nil
}
