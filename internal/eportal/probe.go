package eportal

import (
	"context"
	"fmt"
	"strings"
)

// Probe reports whether the host is already authenticated. The portal
// answers the status check with a redirect; only a redirect to success.jsp
// means online. Transport failures are returned, never reported as offline.
func (c *Client) Probe(ctx context.Context, e Endpoints) (bool, error) {
	url := e.url(e.StatusCheckPath)
	resp, err := c.get(ctx, e.Timeout, url)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrProbe, err)
	}
	if resp.status < 200 || resp.status >= 400 {
		return false, fmt.Errorf("%w: %s returned status %d", ErrProbe, url, resp.status)
	}
	return isOnlineLocation(resp.header.Get("Location")), nil
}

func isOnlineLocation(location string) bool {
	return strings.Contains(location, successMarker)
}
