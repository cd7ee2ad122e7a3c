package appstore

import (
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/url"
)

// KeyMatcher reports whether a DER certificate belongs to a private key
type KeyMatcher interface {
	Matches(der []byte) (bool, error)
}

// FetchActiveCertificates lists certificates of certificateType that have not
// expired and were issued for the matcher's private key, in portal order.
// The matcher is only consulted when some certificate is still valid.
func (c *Client) FetchActiveCertificates(token string, matcher KeyMatcher, certificateType string) ([]Certificate, error) {
	const op = "fetch certificates"

	now := c.clock.Now()
	certs, err := listAll[Certificate](c, op, token, "/v1/certificates", url.Values{
		"filter[certificateType]": {certificateType},
		"limit":                   {pageLimit},
	})
	if err != nil {
		return nil, err
	}

	var valid []Certificate
	for _, cert := range certs {
		if cert.Attributes.ExpirationDate.Time().After(now) {
			valid = append(valid, cert)
		}
	}

	var active []Certificate
	for i := range valid {
		der, err := valid[i].DER()
		if err != nil {
			return nil, err
		}
		ok, err := matcher.Matches(der)
		if err != nil {
			return nil, err
		}
		if ok {
			active = append(active, valid[i])
		}
	}

	c.logger.Debug("fetched certificates", "type", certificateType, "total", len(certs), "valid", len(valid), "matching", len(active))
	return active, nil
}

// CreateCertificate submits a certificate signing request. csr may be PEM or DER.
func (c *Client) CreateCertificate(token string, csr []byte, certificateType string) (*Certificate, error) {
	der := csr
	if block, _ := pem.Decode(csr); block != nil {
		der = block.Bytes
	}

	var req createCertificateRequest
	req.Data.Type = "certificates"
	req.Data.Attributes.CertificateType = certificateType
	req.Data.Attributes.CSRContent = base64.StdEncoding.EncodeToString(der)

	var resp dataResponse[Certificate]
	if err := c.call("create certificate", token, http.MethodPost, c.endpoint("/v1/certificates", nil), req, &resp); err != nil {
		return nil, err
	}
	c.logger.Info("created certificate", "id", resp.Data.ID, "name", resp.Data.Attributes.DisplayName)
	return &resp.Data, nil
}
