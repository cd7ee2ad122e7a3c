package appstore

import (
	"fmt"
	"net/http"
	"net/url"
)

// ResolveBundleID returns the portal id of the bundle identifier registered
// for platform. When name is not empty the bundle id's name must match too.
// Exactly one bundle id has to qualify.
func (c *Client) ResolveBundleID(token, identifier, platform, name string) (string, error) {
	const op = "determine bundle id"

	var resp listResponse[BundleID]
	rawURL := c.endpoint("/v1/bundleIds", url.Values{
		"filter[identifier]": {identifier},
		"filter[platform]":   {platform},
		"limit":              {pageLimit},
	})
	if err := c.call(op, token, http.MethodGet, rawURL, nil, &resp); err != nil {
		return "", err
	}

	var ids []string
	for _, b := range resp.Data {
		if b.Attributes.Identifier != identifier || b.Attributes.Platform != platform {
			continue
		}
		if name != "" && b.Attributes.Name != name {
			continue
		}
		ids = append(ids, b.ID)
	}

	resource := fmt.Sprintf("%s (%s)", identifier, platform)
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return "", &Error{Kind: KindNotFound, Op: op, Resource: resource, Err: fmt.Errorf("no matching bundle id")}
	default:
		return "", &Error{Kind: KindNotFound, Op: op, Resource: resource, Err: fmt.Errorf("%d bundle ids match, set a bundle id name", len(ids))}
	}
}
