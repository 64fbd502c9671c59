// Package identity resolves the user id that scopes a meal plan document.
//
// Authentication is delegated to an external provider. When the provider
// cannot be reached the session continues with a random local id, which
// the rest of the system cannot tell apart from a real one.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State of the identity provider adapter.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	Unavailable
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sign-in paths recorded on an Identity.
const (
	ProviderCustomToken = "custom"
	ProviderAnonymous   = "anonymous"
	ProviderLocal       = "local"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("identity provider already started")

// Identity is the resolved user.
type Identity struct {
	ID        string
	Provider  string
	Synthetic bool
}

// DisplayID is the shortened id shown to users.
func (i Identity) DisplayID() string {
	if len(i.ID) <= 8 {
		return i.ID
	}
	return i.ID[:8] + "..."
}

// Credentials are the tokens returned by the external provider.
type Credentials struct {
	UserID       string
	IDToken      string
	RefreshToken string
	Provider     string
	ExpiresAt    time.Time
}

// Authenticator is the external identity provider.
type Authenticator interface {
	SignInAnonymously(ctx context.Context) (Credentials, error)
	SignInWithCustomToken(ctx context.Context, token string) (Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
}

// CredentialStore persists credentials between sessions.
type CredentialStore interface {
	Load(ctx context.Context, sessionKey string) (*Credentials, error)
	Save(ctx context.Context, sessionKey string, creds Credentials) error
}

// refreshSkew treats tokens about to expire as expired.
const refreshSkew = time.Minute

// Provider drives the sign-in state machine for one session.
type Provider struct {
	auth        Authenticator
	store       CredentialStore
	customToken string
	log         logrus.FieldLogger

	now   func() time.Time
	newID func() string

	mu      sync.RWMutex
	state   State
	current Identity
	started bool
}

// NewProvider creates a Provider. auth and store may be nil: without an
// authenticator the provider goes straight to Unavailable, without a store
// sessions are not restored.
func NewProvider(auth Authenticator, store CredentialStore, customToken string, log logrus.FieldLogger) *Provider {
	return &Provider{
		auth:        auth,
		store:       store,
		customToken: customToken,
		log:         log,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// State returns the current state.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Current returns the last resolved identity, if any.
func (p *Provider) Current() (Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.current.ID != ""
}

// Start resolves the identity of sessionKey in the background and emits it
// on the returned channel. Only one listener is supported. The channel is
// closed when ctx is done.
func (p *Provider) Start(ctx context.Context, sessionKey string) (<-chan Identity, error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	p.started = true
	p.state = Authenticating
	p.mu.Unlock()

	ch := make(chan Identity, 1)
	go func() {
		defer close(ch)

		id, state := p.resolve(ctx, sessionKey)

		p.mu.Lock()
		p.state = state
		p.current = id
		p.mu.Unlock()

		ch <- id
		<-ctx.Done()
	}()

	return ch, nil
}

func (p *Provider) resolve(ctx context.Context, sessionKey string) (Identity, State) {
	log := p.log.WithField("session", sessionKey)

	if p.auth == nil {
		return p.fallback(log, errors.New("no identity provider configured"))
	}

	if creds, ok := p.restore(ctx, log, sessionKey); ok {
		log.WithField("user_id", creds.UserID).Debug("session restored")
		return Identity{ID: creds.UserID, Provider: creds.Provider}, Authenticated
	}

	var (
		creds Credentials
		err   error
	)
	if p.customToken != "" {
		creds, err = p.auth.SignInWithCustomToken(ctx, p.customToken)
	} else {
		creds, err = p.auth.SignInAnonymously(ctx)
	}
	if err != nil {
		return p.fallback(log, err)
	}

	p.persist(ctx, log, sessionKey, creds)
	log.WithFields(logrus.Fields{"user_id": creds.UserID, "provider": creds.Provider}).Info("signed in")
	return Identity{ID: creds.UserID, Provider: creds.Provider}, Authenticated
}

// restore reuses stored credentials, refreshing them when expired. Any
// failure here falls through to a fresh sign-in.
func (p *Provider) restore(ctx context.Context, log logrus.FieldLogger, sessionKey string) (Credentials, bool) {
	if p.store == nil {
		return Credentials{}, false
	}

	stored, err := p.store.Load(ctx, sessionKey)
	if err != nil {
		log.WithError(err).Warn("failed to load stored session")
		return Credentials{}, false
	}
	if stored == nil || stored.UserID == "" {
		return Credentials{}, false
	}

	if p.now().Add(refreshSkew).Before(stored.ExpiresAt) {
		return *stored, true
	}
	if stored.RefreshToken == "" {
		return Credentials{}, false
	}

	fresh, err := p.auth.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		log.WithError(err).Warn("failed to refresh stored session")
		return Credentials{}, false
	}
	if fresh.UserID == "" {
		fresh.UserID = stored.UserID
	}
	if fresh.Provider == "" {
		fresh.Provider = stored.Provider
	}

	p.persist(ctx, log, sessionKey, fresh)
	return fresh, true
}

func (p *Provider) persist(ctx context.Context, log logrus.FieldLogger, sessionKey string, creds Credentials) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, sessionKey, creds); err != nil {
		log.WithError(err).Warn("failed to persist session")
	}
}

func (p *Provider) fallback(log logrus.FieldLogger, cause error) (Identity, State) {
	id := Identity{ID: p.newID(), Provider: ProviderLocal, Synthetic: true}
	log.WithError(cause).WithField("user_id", id.ID).Warn("authentication failed, using local identity")
	return id, Unavailable
}
