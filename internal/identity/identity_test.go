package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu         sync.Mutex
	anonErr    error
	customErr  error
	refreshErr error
	calls      []string
}

func (f *fakeAuth) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAuth) SignInAnonymously(ctx context.Context) (Credentials, error) {
	f.record("anonymous")
	if f.anonErr != nil {
		return Credentials{}, f.anonErr
	}
	return Credentials{UserID: "anon-uid", IDToken: "t", RefreshToken: "r", Provider: ProviderAnonymous, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) SignInWithCustomToken(ctx context.Context, token string) (Credentials, error) {
	f.record("custom:" + token)
	if f.customErr != nil {
		return Credentials{}, f.customErr
	}
	return Credentials{UserID: "custom-uid", IDToken: "t", RefreshToken: "r", Provider: ProviderCustomToken, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	f.record("refresh:" + refreshToken)
	if f.refreshErr != nil {
		return Credentials{}, f.refreshErr
	}
	return Credentials{IDToken: "t2", RefreshToken: "r2", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type memStore struct {
	mu    sync.Mutex
	creds map[string]Credentials
}

func newMemStore() *memStore { return &memStore{creds: map[string]Credentials{}} }

func (m *memStore) Load(ctx context.Context, key string) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[key]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) Save(ctx context.Context, key string, c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[key] = c
	return nil
}

func startAndWait(t *testing.T, p *Provider) Identity {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ch, err := p.Start(ctx, "session-1")
	require.NoError(t, err)

	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for identity")
		return Identity{}
	}
}

func TestProvider(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("AnonymousSignIn", func(t *testing.T) {
		auth, store := &fakeAuth{}, newMemStore()
		p := NewProvider(auth, store, "", logger)
		assert.Equal(t, Unauthenticated, p.State())

		id := startAndWait(t, p)
		assert.Equal(t, "anon-uid", id.ID)
		assert.False(t, id.Synthetic)
		assert.Equal(t, Authenticated, p.State())
		assert.Equal(t, []string{"anonymous"}, auth.calls)

		saved, _ := store.Load(context.Background(), "session-1")
		require.NotNil(t, saved)
		assert.Equal(t, "anon-uid", saved.UserID)
	})

	t.Run("CustomTokenPreferred", func(t *testing.T) {
		auth := &fakeAuth{}
		p := NewProvider(auth, newMemStore(), "tok", logger)

		id := startAndWait(t, p)
		assert.Equal(t, "custom-uid", id.ID)
		assert.Equal(t, ProviderCustomToken, id.Provider)
		assert.Equal(t, []string{"custom:tok"}, auth.calls)
	})

	t.Run("RestoresValidSession", func(t *testing.T) {
		auth, store := &fakeAuth{}, newMemStore()
		store.creds["session-1"] = Credentials{UserID: "kept-uid", Provider: ProviderAnonymous, ExpiresAt: time.Now().Add(time.Hour)}
		p := NewProvider(auth, store, "", logger)

		id := startAndWait(t, p)
		assert.Equal(t, "kept-uid", id.ID)
		assert.Empty(t, auth.calls)
	})

	t.Run("RefreshesExpiredSession", func(t *testing.T) {
		auth, store := &fakeAuth{}, newMemStore()
		store.creds["session-1"] = Credentials{UserID: "kept-uid", RefreshToken: "old", Provider: ProviderAnonymous, ExpiresAt: time.Now().Add(-time.Hour)}
		p := NewProvider(auth, store, "", logger)

		id := startAndWait(t, p)
		assert.Equal(t, "kept-uid", id.ID)
		assert.Equal(t, ProviderAnonymous, id.Provider)
		assert.Equal(t, []string{"refresh:old"}, auth.calls)
		assert.Equal(t, "r2", store.creds["session-1"].RefreshToken)
	})

	t.Run("FailedRefreshSignsInAgain", func(t *testing.T) {
		auth, store := &fakeAuth{refreshErr: errors.New("TOKEN_EXPIRED")}, newMemStore()
		store.creds["session-1"] = Credentials{UserID: "kept-uid", RefreshToken: "old", ExpiresAt: time.Now().Add(-time.Hour)}
		p := NewProvider(auth, store, "", logger)

		id := startAndWait(t, p)
		assert.Equal(t, "anon-uid", id.ID)
		assert.Equal(t, []string{"refresh:old", "anonymous"}, auth.calls)
	})

	t.Run("ProviderFailureFallsBackToLocalID", func(t *testing.T) {
		p := NewProvider(&fakeAuth{anonErr: errors.New("ADMIN_ONLY_OPERATION")}, nil, "", logger)
		p.newID = func() string { return "local-uuid" }

		id := startAndWait(t, p)
		assert.Equal(t, "local-uuid", id.ID)
		assert.True(t, id.Synthetic)
		assert.Equal(t, ProviderLocal, id.Provider)
		assert.Equal(t, Unavailable, p.State())
	})

	t.Run("NoAuthenticator", func(t *testing.T) {
		p := NewProvider(nil, nil, "", logger)

		id := startAndWait(t, p)
		assert.True(t, id.Synthetic)
		assert.Len(t, id.ID, 36)
		assert.Equal(t, Unavailable, p.State())

		current, ok := p.Current()
		assert.True(t, ok)
		assert.Equal(t, id, current)
	})

	t.Run("SingleListener", func(t *testing.T) {
		p := NewProvider(nil, nil, "", logger)
		startAndWait(t, p)

		_, err := p.Start(context.Background(), "session-2")
		assert.True(t, errors.Is(err, ErrAlreadyStarted))
	})

	t.Run("ChannelClosedOnCancel", func(t *testing.T) {
		p := NewProvider(nil, nil, "", logger)
		ctx, cancel := context.WithCancel(context.Background())

		ch, err := p.Start(ctx, "session-1")
		require.NoError(t, err)
		<-ch
		cancel()

		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("channel not closed")
		}
	})
}

func TestIdentityDisplayID(t *testing.T) {
	assert.Equal(t, "abcdefgh...", Identity{ID: "abcdefghijkl"}.DisplayID())
	assert.Equal(t, "short", Identity{ID: "short"}.DisplayID())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "authenticating", Authenticating.String())
	assert.Equal(t, "unavailable", Unavailable.String())
}
