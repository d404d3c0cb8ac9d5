package eportal

import (
	"errors"
	"testing"
)

func TestParseRedirectURL(t *testing.T) {
	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{`<script>top.self.location.href='http://x/?a=1&mac=AA'</script>`, "http://x/?a=1&mac=AA", true},
		{`<script>location.href = "http://y/eportal/index.jsp?b=2"</script>`, "http://y/eportal/index.jsp?b=2", true},
		{`<script>window.location='http://z/?c=3';</script>`, "http://z/?c=3", true},
		{`<!-- top.self.location.href='http://c/?in=comment' -->`, "http://c/?in=comment", true},
		{`<html><body>hello</body></html>`, "", false},
	}
	for _, tc := range cases {
		got, ok := ParseRedirectURL(tc.body)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseRedirectURL(%q) = %q, %v; want %q, %v", tc.body, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseRedirectURL_FirstPatternWins(t *testing.T) {
	body := `window.location='http://later/'; top.self.location.href='http://first/?q=1'`
	got, _ := ParseRedirectURL(body)
	if got != "http://first/?q=1" {
		t.Fatalf("expected top.self pattern to win, got %q", got)
	}
}

func TestNewRedirectTarget(t *testing.T) {
	target, err := newRedirectTarget("http://x/?a=1&mac=AA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.RawQuery != "a=1&mac=AA" {
		t.Fatalf("raw query = %q", target.RawQuery)
	}
	if target.EncodedQuery != "a%3D1%26mac%3DAA" {
		t.Fatalf("encoded query = %q", target.EncodedQuery)
	}

	if _, err := newRedirectTarget("/relative/only?a=1"); !errors.Is(err, ErrProtocolFormat) {
		t.Fatalf("expected protocol format error for relative url, got %v", err)
	}
}

func TestEncodeURIComponent(t *testing.T) {
	cases := map[string]string{
		"a b":         "a%20b",
		"!'()*-_.~":   "!'()*-_.~",
		"x=1&y=/:?#+": "x%3D1%26y%3D%2F%3A%3F%23%2B",
		"中":           "%E4%B8%AD",
	}
	for in, want := range cases {
		if got := EncodeURIComponent(in); got != want {
			t.Fatalf("EncodeURIComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLoginResult(t *testing.T) {
	res, err := ParseLoginResult(`{"userIndex":"u-1","result":"success","message":""}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.UserIndex != "u-1" {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = ParseLoginResult(`{"result":"failed0","message":"密码错误"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Message != "密码错误" {
		t.Fatalf("unexpected result %+v", res)
	}

	// truncated right after the marker is a rejection, not a panic
	if res, err := ParseLoginResult(`"result":"succ`); err != nil || res.Success {
		t.Fatalf("expected clean failure, got %+v, %v", res, err)
	}

	if _, err := ParseLoginResult(`<html>502 Bad Gateway</html>`); !errors.Is(err, ErrProtocolFormat) {
		t.Fatalf("expected protocol format error, got %v", err)
	}
}

func TestParsePageInfo(t *testing.T) {
	info, err := parsePageInfo(`{"publicKeyExponent":"10001","publicKeyModulus":"abcd"}`)
	if err != nil || info.PublicKeyExponent != "10001" || info.PublicKeyModulus != "abcd" {
		t.Fatalf("unexpected %+v, %v", info, err)
	}

	info, err = parsePageInfo(`{"other":1}`)
	if err != nil || info.PublicKeyExponent != "" || info.PublicKeyModulus != "" {
		t.Fatalf("expected empty defaults, got %+v, %v", info, err)
	}

	if _, err := parsePageInfo(`<html>`); !errors.Is(err, ErrProtocolFormat) {
		t.Fatalf("expected protocol format error, got %v", err)
	}
}

func TestUnicodeUnescape(t *testing.T) {
	got := unicodeUnescape(`{"message":"\u8ba4\u8bc1\u6210\u529f","x":"\uZZZZ"}`)
	if got != `{"message":"认证成功","x":"\uZZZZ"}` {
		t.Fatalf("unexpected %q", got)
	}
}

func TestUnicodeUnescape_SurrogatePair(t *testing.T) {
	got := unicodeUnescape(`"message":"\ud83d\ude00 ok \ud83d"`)
	if want := "\"message\":\"\U0001F600 ok \uFFFD\""; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	err := Validate(Credentials{}, Endpoints{})
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Missing) != 3 {
		t.Fatalf("expected 3 missing fields, got %v", verr.Missing)
	}
	if err := Validate(Credentials{Username: "u", Password: "p"}, DefaultEndpoints("h")); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
