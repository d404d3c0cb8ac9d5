package eportal

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const resultMarker = `"result":"`

var (
	userIndexField = regexp.MustCompile(`"userIndex":"([^"]*)"`)
	messageField   = regexp.MustCompile(`"message":"([^"]*)"`)
)

// SubmitLogin posts the encrypted credentials. A false Success is the portal
// rejecting them; a malformed reply is an ErrProtocolFormat error instead.
func (c *Client) SubmitLogin(ctx context.Context, e Endpoints, p Payload) (LoginResult, error) {
	text, err := c.postForm(ctx, e.Timeout, e.url(e.LoginPath), map[string]string{
		"userId":          p.Username,
		"password":        p.EncryptedPasswordHex,
		"service":         "",
		"queryString":     p.EncodedQueryString,
		"operatorPwd":     "",
		"operatorUserId":  "",
		"validcode":       "",
		"passwordEncrypt": "true",
		"userIndex":       "",
	})
	if err != nil {
		return LoginResult{}, err
	}
	return ParseLoginResult(text)
}

// Logout ends the session identified by the userIndex a login returned.
func (c *Client) Logout(ctx context.Context, e Endpoints, userIndex string) error {
	if userIndex == "" {
		return fmt.Errorf("%w: empty user index", ErrValidation)
	}
	text, err := c.postForm(ctx, e.Timeout, e.url(e.LogoutPath), map[string]string{
		"userIndex": userIndex,
	})
	if err != nil {
		return err
	}
	res, err := ParseLoginResult(text)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("logout rejected, maybe user index has expired: %s", res.Message)
	}
	return nil
}

// ParseLoginResult reads the seven characters after "result":" the way the
// portal's own page does. This is substring matching, not JSON parsing: the
// portal is not guaranteed to return valid JSON.
func ParseLoginResult(text string) (LoginResult, error) {
	idx := strings.Index(text, resultMarker)
	if idx < 0 {
		return LoginResult{}, fmt.Errorf("%w: no result marker in login response", ErrProtocolFormat)
	}
	start := idx + len(resultMarker)
	end := start + len("success")
	if end > len(text) {
		end = len(text)
	}
	res := LoginResult{Success: text[start:end] == "success"}
	if m := userIndexField.FindStringSubmatch(text); len(m) > 1 {
		res.UserIndex = m[1]
	}
	if m := messageField.FindStringSubmatch(text); len(m) > 1 {
		res.Message = m[1]
	}
	return res, nil
}
