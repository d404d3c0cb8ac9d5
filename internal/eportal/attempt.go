package eportal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Portal is the set of round trips one attempt makes. *Client implements it.
type Portal interface {
	Probe(ctx context.Context, e Endpoints) (bool, error)
	ResolveRedirect(ctx context.Context, e Endpoints) (RedirectTarget, bool, error)
	FetchPageInfo(ctx context.Context, e Endpoints, encodedQuery string) (Session, error)
	SubmitLogin(ctx context.Context, e Endpoints, p Payload) (LoginResult, error)
}

// Authenticator runs single authentication attempts. It keeps nothing
// between calls.
type Authenticator struct {
	portal    Portal
	log       *zap.Logger
	precision int
	now       func() time.Time
}

func NewAuthenticator(portal Portal, log *zap.Logger) *Authenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{
		portal:    portal,
		log:       log,
		precision: DefaultPrecision,
		now:       time.Now,
	}
}

// Attempt probes, and if needed, logs in once. Every failure ends up in the
// returned Outcome; nothing is retried.
func (a *Authenticator) Attempt(ctx context.Context, creds Credentials, e Endpoints) Outcome {
	out := Outcome{
		AttemptID:  uuid.NewString(),
		Username:   creds.Username,
		ServerHost: e.ServerHost,
		StartedAt:  a.now(),
	}
	log := a.log.With(zap.String("attempt", out.AttemptID))

	kind, result, err := a.attempt(ctx, log, creds, e)
	out.Kind = kind
	out.FinishedAt = a.now()
	switch {
	case err != nil:
		out.Kind = OutcomeError
		out.Err = err
		log.Debug("attempt failed", zap.Error(err))
	case kind == OutcomeAuthFailed:
		out.Reason = result.Message
		log.Debug("portal rejected credentials", zap.String("user", creds.Username), zap.String("reason", result.Message))
	default:
		out.UserIndex = result.UserIndex
		log.Debug(out.String(), zap.Duration("took", out.FinishedAt.Sub(out.StartedAt)))
	}
	return out
}

func (a *Authenticator) attempt(ctx context.Context, log *zap.Logger, creds Credentials, e Endpoints) (OutcomeKind, LoginResult, error) {
	if err := Validate(creds, e); err != nil {
		return OutcomeError, LoginResult{}, err
	}

	online, err := a.portal.Probe(ctx, e)
	if err != nil {
		return OutcomeError, LoginResult{}, err
	}
	if online {
		return OutcomeOnline, LoginResult{}, nil
	}

	target, found, err := a.portal.ResolveRedirect(ctx, e)
	if err != nil {
		return OutcomeError, LoginResult{}, err
	}
	if !found {
		log.Debug("no portal redirect seen")
		return OutcomeOnline, LoginResult{}, nil
	}
	log.Debug("portal redirect", zap.String("url", target.URL))

	sess, err := a.portal.FetchPageInfo(ctx, e, target.EncodedQuery)
	if err != nil {
		return OutcomeError, LoginResult{}, err
	}

	mac := ExtractMAC(sess.EncodedQueryString)
	cipher, err := EncryptPassword(creds.Password, mac, sess.PublicKeyExponent, sess.PublicKeyModulus, a.precision)
	if err != nil {
		return OutcomeError, LoginResult{}, err
	}

	result, err := a.portal.SubmitLogin(ctx, e, Payload{
		Username:             creds.Username,
		EncryptedPasswordHex: cipher,
		EncodedQueryString:   sess.EncodedQueryString,
	})
	if err != nil {
		return OutcomeError, LoginResult{}, err
	}
	if !result.Success {
		return OutcomeAuthFailed, result, nil
	}
	return OutcomeAuthSucceeded, result, nil
}
