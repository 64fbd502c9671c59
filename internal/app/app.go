package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smartchef/internal/config"
	"smartchef/internal/docstore"
	"smartchef/internal/generator"
	"smartchef/internal/identity"
	"smartchef/internal/logging"
	"smartchef/internal/mealplan"
	"smartchef/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// App holds the application's dependencies and the live sessions.
type App struct {
	cfg          *config.Config
	generator    *generator.Generator
	store        docstore.Store
	auth         identity.Authenticator
	credentials  identity.CredentialStore
	metricsStore *metrics.Store
	log          logrus.FieldLogger

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// Deps are the collaborators of an App. Everything except Config, Generator
// and Logger may be nil and degrades to local-only behavior.
type Deps struct {
	Config       *config.Config
	Generator    *generator.Generator
	Store        docstore.Store
	Auth         identity.Authenticator
	Credentials  identity.CredentialStore
	MetricsStore *metrics.Store
	Logger       logrus.FieldLogger
}

// NewApp creates and initializes a new App instance.
func NewApp(d Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:          d.Config,
		generator:    d.Generator,
		store:        d.Store,
		auth:         d.Auth,
		credentials:  d.Credentials,
		metricsStore: d.MetricsStore,
		log:          logging.WithComponent(d.Logger, "app"),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		sessions:     make(map[string]*Session),
	}
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// NewSessionKey returns a fresh random session key.
func NewSessionKey() string {
	return uuid.NewString()
}

// Session returns the live session for key, starting it on first use.
func (a *App) Session(key string) *Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.sessions[key]; ok {
		s.touch()
		return s
	}

	log := a.log.WithField("session", key)
	provider := identity.NewProvider(a.auth, a.credentials, a.cfg.InitialAuthToken, logging.WithComponent(log, "identity"))
	manager := mealplan.NewManager(a.store, log)
	s := newSession(a.ctx, key, a.cfg.AppID, provider, manager, log, a.now())

	a.sessions[key] = s
	metrics.ActiveSessions.Set(float64(len(a.sessions)))
	log.Debug("session started")
	return s
}

// SessionCount is the number of live sessions.
func (a *App) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// GenerateRecipes runs the recipe generator and records the run.
func (a *App) GenerateRecipes(ctx context.Context, req generator.Request) (generator.Result, error) {
	res, err := a.generator.Generate(ctx, req)
	if err != nil {
		return res, err
	}

	if a.metricsStore != nil {
		if err := a.metricsStore.RecordMeta(ctx, res.Meta); err != nil {
			a.log.WithError(err).Warn("failed to record generation metrics")
		}
	} else {
		metrics.ObserveGeneration(res.Meta)
	}
	return res, nil
}

// EvictIdle closes sessions without watchers that were not used for ttl.
func (a *App) EvictIdle(ttl time.Duration) int {
	cutoff := a.now().Add(-ttl)

	a.mu.Lock()
	var stale []*Session
	for key, s := range a.sessions {
		if s.idle(cutoff) {
			stale = append(stale, s)
			delete(a.sessions, key)
		}
	}
	metrics.ActiveSessions.Set(float64(len(a.sessions)))
	a.mu.Unlock()

	for _, s := range stale {
		s.close()
		s.log.Debug("idle session evicted")
	}
	return len(stale)
}

// Run evicts idle sessions until ctx is done.
func (a *App) Run(ctx context.Context) {
	ttl := a.cfg.SessionIdleTTL
	if ttl <= 0 {
		return
	}
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.EvictIdle(ttl); n > 0 {
				a.log.WithField("evicted", n).Info("evicted idle sessions")
			}
		}
	}
}

// Close ends every session, waiting for their pending writes, then closes
// the document store.
func (a *App) Close() error {
	a.mu.Lock()
	sessions := make([]*Session, 0, len(a.sessions))
	for key, s := range a.sessions {
		sessions = append(sessions, s)
		delete(a.sessions, key)
	}
	metrics.ActiveSessions.Set(0)
	a.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	a.cancel()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			return fmt.Errorf("failed to close document store: %w", err)
		}
	}
	return nil
}
