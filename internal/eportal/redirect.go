package eportal

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Portals inject one of these scripts into intercepted pages. Order matters:
// the first pattern that matches wins.
var redirectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`top\.self\.location\.href\s*=\s*['"]([^'"]+)['"]`),
	regexp.MustCompile(`location\.href\s*=\s*['"]([^'"]+)['"]`),
	regexp.MustCompile(`window\.location\s*=\s*['"]([^'"]+)['"]`),
}

// RedirectTarget is where the portal wanted to send the browser.
type RedirectTarget struct {
	URL          string
	RawQuery     string
	EncodedQuery string
}

// ParseRedirectURL extracts the portal redirect from a page body. Script
// inside HTML comments matches like any other text.
func ParseRedirectURL(body string) (string, bool) {
	for _, re := range redirectPatterns {
		if m := re.FindStringSubmatch(body); len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// ResolveRedirect fetches the probe URL without following redirects and
// looks for an injected redirect script. found is false when the page came
// back without one, which means nothing intercepted the request.
func (c *Client) ResolveRedirect(ctx context.Context, e Endpoints) (target RedirectTarget, found bool, err error) {
	resp, err := c.get(ctx, e.Timeout, e.ProbeURL)
	if err != nil {
		return RedirectTarget{}, false, err
	}

	raw, ok := ParseRedirectURL(string(resp.body))
	if !ok {
		return RedirectTarget{}, false, nil
	}
	target, err = newRedirectTarget(raw)
	if err != nil {
		return RedirectTarget{}, false, err
	}
	return target, true, nil
}

func newRedirectTarget(raw string) (RedirectTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return RedirectTarget{}, fmt.Errorf("%w: redirect url %q: %w", ErrProtocolFormat, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return RedirectTarget{}, fmt.Errorf("%w: redirect url %q is not absolute", ErrProtocolFormat, raw)
	}
	return RedirectTarget{
		URL:          raw,
		RawQuery:     u.RawQuery,
		EncodedQuery: EncodeURIComponent(u.RawQuery),
	}, nil
}

// EncodeURIComponent escapes s the way browsers' encodeURIComponent does,
// which differs from url.QueryEscape for space and !'()*.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isURIUnreserved(ch) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isURIUnreserved(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", ch) >= 0
}
