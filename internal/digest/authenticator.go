package digest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrAuthenticationRequired is matched by every *ChallengeError.
var ErrAuthenticationRequired = errors.New("authentication required")

// ChallengeError is returned when a request fails authentication. Challenge
// is the WWW-Authenticate value carrying a freshly generated nonce. It never
// says which check failed.
type ChallengeError struct {
	Challenge string
}

func (e *ChallengeError) Error() string { return ErrAuthenticationRequired.Error() }

// Is lets errors.Is(err, ErrAuthenticationRequired) match.
func (e *ChallengeError) Is(target error) bool { return target == ErrAuthenticationRequired }

// Authenticator verifies digest replies against a CredentialStore.
type Authenticator struct {
	realm   string
	creds   *CredentialStore
	tracker NonceTracker // nil keeps the protocol stateless
	logger  *zap.Logger
}

// NewAuthenticator creates a stateless Authenticator for realm.
func NewAuthenticator(realm string, creds *CredentialStore, logger *zap.Logger) *Authenticator {
	return &Authenticator{realm: realm, creds: creds, logger: logger}
}

// SetNonceTracker makes issued nonces single-use. Passing nil restores the
// stateless behaviour.
func (a *Authenticator) SetNonceTracker(t NonceTracker) {
	a.tracker = t
}

// Realm returns the realm advertised in challenges.
func (a *Authenticator) Realm() string {
	return a.realm
}

// Authenticate checks the Authorization header of a request. It returns nil
// when the reply matches, a *ChallengeError when it does not, and any other
// error only if a challenge could not be produced.
func (a *Authenticator) Authenticate(ctx context.Context, header, method, path string) error {
	if a.verify(ctx, header, method, path) {
		return nil
	}
	return a.challenge(ctx)
}

func (a *Authenticator) verify(ctx context.Context, header, method, path string) bool {
	if header == "" {
		return false
	}

	reply, err := ParseAuthorization(header)
	if err != nil {
		a.logger.Debug("unreadable authorization header", zap.Error(err))
		return false
	}

	secret, ok := a.creds.Secret(reply.Username)
	if !ok {
		return false
	}

	h1 := CredentialHash(reply.Username, a.realm, secret)
	h2 := RequestHash(method, path)
	expected := ResponseHash(h1, reply.Nonce, h2)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(reply.Response)) != 1 {
		return false
	}

	if a.tracker != nil {
		fresh, err := a.tracker.Consume(ctx, reply.Nonce)
		if err != nil {
			a.logger.Warn("consume nonce", zap.Error(err))
			return false
		}
		if !fresh {
			return false
		}
	}
	return true
}

func (a *Authenticator) challenge(ctx context.Context) error {
	nonce, err := NewNonce()
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	if a.tracker != nil {
		if err := a.tracker.Issue(ctx, nonce); err != nil {
			return fmt.Errorf("record nonce: %w", err)
		}
	}
	return &ChallengeError{Challenge: FormatChallenge(a.realm, nonce)}
}
