package eportal

import (
	"context"
	"encoding/json"
	"fmt"
)

type pageInfoResponse struct {
	PublicKeyExponent string `json:"publicKeyExponent"`
	PublicKeyModulus  string `json:"publicKeyModulus"`
}

// FetchPageInfo asks the portal for the RSA key bound to this redirect.
// Missing key fields come back empty; the cipher rejects them later.
func (c *Client) FetchPageInfo(ctx context.Context, e Endpoints, encodedQuery string) (Session, error) {
	text, err := c.postForm(ctx, e.Timeout, e.url(e.PageInfoPath), map[string]string{
		"queryString": encodedQuery,
	})
	if err != nil {
		return Session{}, err
	}
	info, err := parsePageInfo(text)
	if err != nil {
		return Session{}, err
	}
	return Session{
		EncodedQueryString: encodedQuery,
		PublicKeyExponent:  info.PublicKeyExponent,
		PublicKeyModulus:   info.PublicKeyModulus,
	}, nil
}

func parsePageInfo(text string) (pageInfoResponse, error) {
	var info pageInfoResponse
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		return pageInfoResponse{}, fmt.Errorf("%w: pageInfo is not JSON: %w", ErrProtocolFormat, err)
	}
	return info, nil
}
