package eportal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"
	"unicode/utf16"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var baseHeader = map[string]string{
	"Accept":          "*/*",
	"Accept-Language": "en,zh-CN;q=0.7",
	"Connection":      "keep-alive",
	"User-Agent":      userAgent,
}

// Client talks to the portal. It holds no per-attempt state.
type Client struct {
	follow *resty.Client
	lazy   *resty.Client
	log    *zap.Logger
}

type clientOptions struct {
	localIP   net.IP
	transport http.RoundTripper
}

type Option func(*clientOptions) error

// WithLocalIP binds outgoing connections to a local address.
func WithLocalIP(ip string) Option {
	return func(o *clientOptions) error {
		if ip == "" {
			return nil
		}
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return fmt.Errorf("%w: invalid local IP %q", ErrValidation, ip)
		}
		o.localIP = parsed
		return nil
	}
}

// WithTransport replaces the round tripper, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) error {
		o.transport = rt
		return nil
	}
}

func NewClient(log *zap.Logger, opts ...Option) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var o clientOptions
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	rt := o.transport
	if rt == nil {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		if o.localIP != nil {
			dialer.LocalAddr = &net.TCPAddr{IP: o.localIP}
		}
		rt = &http.Transport{
			Proxy:       http.ProxyFromEnvironment,
			DialContext: dialer.DialContext,
		}
	}

	newResty := func() *resty.Client {
		return resty.New().
			SetTransport(rt).
			SetHeaders(baseHeader).
			SetLogger(log.Sugar())
	}
	lazy := newResty().SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		// disable 302 redirect in http module itself
		return http.ErrUseLastResponse
	}))

	return &Client{
		follow: newResty(),
		lazy:   lazy,
		log:    log,
	}, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// get never follows redirects; every caller wants the first response.
func (c *Client) get(ctx context.Context, timeout time.Duration, url string) (*response, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.lazy.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, url, err)
	}
	c.log.Debug("GET", zap.String("url", url), zap.Int("status", resp.StatusCode()))
	return &response{status: resp.StatusCode(), header: resp.Header(), body: resp.Body()}, nil
}

// postForm sends an urlencoded form and returns the unescaped response text.
func (c *Client) postForm(ctx context.Context, timeout time.Duration, url string, form map[string]string) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.follow.R().SetContext(ctx).SetFormData(form).Post(url)
	if err != nil {
		return "", fmt.Errorf("%w: POST %s: %w", ErrTransport, url, err)
	}
	c.log.Debug("POST", zap.String("url", url), zap.Int("status", resp.StatusCode()))
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("%w: POST %s: status %d", ErrTransport, url, resp.StatusCode())
	}
	return unicodeUnescape(resp.String()), nil
}

var unicodeEscape = regexp.MustCompile(`(?:\\u[0-9a-fA-F]{4})+`)

// unicodeUnescape turns runs of \uXXXX sequences into the characters they
// name. A run is decoded as UTF-16, so surrogate pairs join into one rune.
func unicodeUnescape(s string) string {
	return unicodeEscape.ReplaceAllStringFunc(s, func(m string) string {
		units := make([]uint16, 0, len(m)/6)
		for i := 0; i+6 <= len(m); i += 6 {
			n, err := strconv.ParseUint(m[i+2:i+6], 16, 16)
			if err != nil {
				return m
			}
			units = append(units, uint16(n))
		}
		return string(utf16.Decode(units))
	})
}
