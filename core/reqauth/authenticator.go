// Package reqauth authenticates server-to-server requests signed with a pre-shared HMAC secret.
//
// A caller signs "{timestamp}.{nonce}.{body}" with HMAC-SHA256 and sends the lowercase hex digest in
// X-Signature, along with X-Timestamp (unix seconds), X-Nonce and a bearer credential. The server
// rejects stale or future timestamps, replayed nonces and tampered bodies, and commits each accepted
// nonce to a NonceStore so that it cannot be used again.
package reqauth

import (
	"context"
	"expvar"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/studyrelay/core"
)

// DefaultTolerance is the accepted clock skew between caller and server, both ways.
const DefaultTolerance = 300 * time.Second

// outcomes counts verification results by reason, under /debug/vars.
var outcomes = expvar.NewMap("reqauth.outcomes")

// Config is the process-wide authentication configuration. It is passed to NewAuthenticator
// explicitly and never read from the environment during verification.
type Config struct {
	Secret      string
	BearerToken string
	Tolerance   time.Duration    // default: DefaultTolerance
	NonceTTL    time.Duration    // default: DefaultNonceTTL
	Now         func() time.Time // default: time.Now
}

type (
	Authenticator struct {
		conf   Config
		store  NonceStore
		logger core.Logger
		steps  []step
	}

	// verification is the state threaded through the steps of one Authenticate call.
	verification struct {
		req Request
		now time.Time
	}

	step func(ctx context.Context, v *verification) error
)

func NewAuthenticator(conf Config, store NonceStore, logger core.Logger) *Authenticator {
	if conf.Tolerance <= 0 {
		conf.Tolerance = DefaultTolerance
	}
	if conf.NonceTTL <= 0 {
		conf.NonceTTL = DefaultNonceTTL
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}

	a := &Authenticator{conf: conf, store: store, logger: logger}

	// Config guards run first: a broken deployment must never be reported as a bad request.
	a.steps = []step{
		a.checkSecret,
		a.checkBearerConfigured,
		a.probeStore,
		a.checkBearer,
		a.checkPresence,
		a.checkTimestamp,
		a.checkReplay,
		a.checkSignature,
		a.commitNonce,
	}
	return a
}

// Authenticate runs every check in order and stops at the first failure.
// It returns nil, an *AuthError or a *ConfigError.
func (a *Authenticator) Authenticate(ctx context.Context, req Request) error {
	v := &verification{req: req, now: a.conf.Now()}
	for _, s := range a.steps {
		if err := s(ctx, v); err != nil {
			outcomes.Add(Reason(err), 1)
			return err
		}
	}
	outcomes.Add("ok", 1)
	return nil
}

// Ready reports whether the authenticator could accept a request at all.
func (a *Authenticator) Ready(ctx context.Context) error {
	v := &verification{now: a.conf.Now()}
	for _, s := range []step{a.checkSecret, a.checkBearerConfigured, a.probeStore} {
		if err := s(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (a *Authenticator) checkSecret(context.Context, *verification) error {
	return ValidateSecret(a.conf.Secret)
}

func (a *Authenticator) checkBearerConfigured(context.Context, *verification) error {
	if a.conf.BearerToken == "" {
		return newConfigError(ReasonMissingBearer, nil)
	}
	return nil
}

func (a *Authenticator) probeStore(ctx context.Context, _ *verification) error {
	if a.store == nil {
		return newConfigError(ReasonStoreUnavailable, nil)
	}
	if err := a.store.Probe(ctx); err != nil {
		if errors.Is(err, ErrStoreMissing) {
			return newConfigError(ReasonStoreMissing, err)
		}
		return newConfigError(ReasonStoreUnavailable, err)
	}
	return nil
}

func (a *Authenticator) checkBearer(_ context.Context, v *verification) error {
	token, ok := bearerToken(v.req.Authorization)
	if !ok || !ConstantTimeEqual(token, a.conf.BearerToken) {
		return newAuthError(ReasonBadBearer)
	}
	return nil
}

func (a *Authenticator) checkPresence(_ context.Context, v *verification) error {
	if v.req.Timestamp == "" || v.req.Nonce == "" || v.req.Signature == "" {
		return newAuthError(ReasonMissingHeaders)
	}
	return nil
}

func (a *Authenticator) checkTimestamp(_ context.Context, v *verification) error {
	ts, err := strconv.ParseInt(v.req.Timestamp, 10, 64)
	if err != nil {
		return newAuthError(ReasonBadTimestamp)
	}
	tolerance := int64(a.conf.Tolerance / time.Second)
	age := v.now.Unix() - ts
	switch {
	case age > tolerance:
		return newAuthError(ReasonStaleTimestamp)
	case -age > tolerance:
		return newAuthError(ReasonFutureTimestamp)
	}
	return nil
}

func (a *Authenticator) checkReplay(ctx context.Context, v *verification) error {
	seen, err := a.store.Seen(ctx, v.req.Nonce, v.now)
	if err != nil {
		return newConfigError(ReasonStoreUnavailable, err)
	}
	if seen {
		return newAuthError(ReasonReplayedNonce)
	}
	return nil
}

func (a *Authenticator) checkSignature(_ context.Context, v *verification) error {
	expected := ComputeSignature(a.conf.Secret, v.req.Timestamp, v.req.Nonce, v.req.Body)
	if !ConstantTimeEqual(v.req.Signature, expected) {
		return newAuthError(ReasonBadSignature)
	}
	return nil
}

// commitNonce only runs once the signature is verified. Losing a reservation race is a replay;
// a store failure only weakens future replay protection, so the current request proceeds.
func (a *Authenticator) commitNonce(ctx context.Context, v *verification) error {
	rec := NonceRecord{Nonce: v.req.Nonce, ExpiresAt: v.now.Add(a.conf.NonceTTL)}
	status, err := a.store.Reserve(ctx, rec, v.now)
	if err == nil && status == AlreadyUsed {
		return newAuthError(ReasonReplayedNonce)
	}
	if err != nil || status != Reserved {
		if err == nil {
			err = errors.New("nonce store unavailable")
		}
		a.logger.Warn(
			fmt.Sprintf("reqauth: could not commit nonce: %v", err),
			errors.Wrap(err, "committing nonce"),
			map[string]interface{}{"nonce": v.req.Nonce, "status": status.String()},
		)
		outcomes.Add("commit_failed", 1)
	}
	return nil
}
