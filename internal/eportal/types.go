package eportal

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	DefaultLoginPath       = "/eportal/InterFace.do?method=login"
	DefaultPageInfoPath    = "/eportal/InterFace.do?method=pageInfo"
	DefaultLogoutPath      = "/eportal/InterFace.do?method=logout"
	DefaultStatusCheckPath = "/eportal/redirectortosuccess.jsp"
	DefaultProbeURL        = "http://www.baidu.com"
	DefaultTimeout         = 10 * time.Second

	// Location of an already authenticated client contains this.
	successMarker = "success.jsp"
)

// Credentials are held in memory only.
type Credentials struct {
	Username string
	Password string
}

// Endpoints describes one portal. It is passed by value into every attempt.
type Endpoints struct {
	ServerHost      string
	LoginPath       string
	PageInfoPath    string
	LogoutPath      string
	StatusCheckPath string
	ProbeURL        string
	Timeout         time.Duration
}

// DefaultEndpoints returns the observed vendor layout for host.
func DefaultEndpoints(host string) Endpoints {
	return Endpoints{
		ServerHost:      host,
		LoginPath:       DefaultLoginPath,
		PageInfoPath:    DefaultPageInfoPath,
		LogoutPath:      DefaultLogoutPath,
		StatusCheckPath: DefaultStatusCheckPath,
		ProbeURL:        DefaultProbeURL,
		Timeout:         DefaultTimeout,
	}
}

func (e Endpoints) url(path string) string {
	return "http://" + e.ServerHost + path
}

// Validate reports every missing field at once.
func Validate(c Credentials, e Endpoints) error {
	var missing []string
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(c.Password) == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(e.ServerHost) == "" {
		missing = append(missing, "server address")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Session is what one redirect + pageInfo round trip yields. Never reuse it.
type Session struct {
	EncodedQueryString string
	PublicKeyExponent  string
	PublicKeyModulus   string
}

// Payload is consumed once by SubmitLogin.
type Payload struct {
	Username             string
	EncryptedPasswordHex string
	EncodedQueryString   string
}

type LoginResult struct {
	Success   bool
	UserIndex string
	Message   string
}

type OutcomeKind int

const (
	OutcomeOnline OutcomeKind = iota
	OutcomeAuthSucceeded
	OutcomeAuthFailed
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOnline:
		return "online"
	case OutcomeAuthSucceeded:
		return "auth_succeeded"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the result of one Attempt.
type Outcome struct {
	AttemptID string
	Kind      OutcomeKind
	Reason    string
	Err       error
	// Username and ServerHost are what the attempt ran with; a UserIndex is
	// only valid against that host.
	Username   string
	ServerHost string
	UserIndex  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Ok is true for Online and AuthSucceeded.
func (o Outcome) Ok() bool {
	return o.Kind == OutcomeOnline || o.Kind == OutcomeAuthSucceeded
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeOnline:
		return "network is online"
	case OutcomeAuthSucceeded:
		return "authentication succeeded"
	case OutcomeAuthFailed:
		if o.Reason != "" {
			return "authentication failed: " + o.Reason
		}
		return "authentication failed"
	case OutcomeError:
		if o.Err != nil {
			return "attempt error: " + o.Err.Error()
		}
		return "attempt error"
	}
	return o.Kind.String()
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		AttemptID  string      `json:"attempt_id"`
		Kind       OutcomeKind `json:"kind"`
		Reason     string      `json:"reason,omitempty"`
		Error      string      `json:"error,omitempty"`
		Message    string      `json:"message"`
		StartedAt  time.Time   `json:"started_at"`
		FinishedAt time.Time   `json:"finished_at"`
	}{
		AttemptID:  o.AttemptID,
		Kind:       o.Kind,
		Reason:     o.Reason,
		Message:    o.String(),
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}
