package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/apiclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authstate"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/config"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/events"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/metrics"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

// runtime is everything a command needs, wired from the client config.
type runtime struct {
	cfg      *config.ClientConfig
	log      *slog.Logger
	bus      *events.Bus
	store    session.Store
	oidc     *authclient.OIDCAuthenticator
	provider *authstate.Provider
	api      *apiclient.Client
	metrics  *metrics.Auth
	redis    *redis.Client
	relay    *events.RedisRelay
	unsubs   []func()
}

// newRuntime loads the config and wires the auth stack. logTo nil keeps the
// log quiet unless --verbose is set.
func newRuntime(ctx context.Context, opts *rootOptions, logTo io.Writer) (*runtime, error) {
	cfg, err := config.LoadClient(opts.configPath)
	if err != nil {
		return nil, err
	}

	env := cfg.Environment
	switch {
	case opts.verbose:
		logTo, env = os.Stderr, "debug"
	case logTo == nil:
		logTo = io.Discard
	}
	log := logger.InitWriter(logTo, env)

	rt := &runtime{
		cfg:     cfg,
		log:     log,
		bus:     events.NewBus(),
		metrics: metrics.New(),
	}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis_url: %w", err)
		}
		rt.redis = redis.NewClient(redisOpts)
	}

	switch cfg.Store {
	case config.StoreRedis:
		rt.store = session.NewRedisStore(rt.redis, "", cfg.StayLoggedInTTL)
	case config.StoreMemory:
		rt.store = session.NewMemoryStore()
	default:
		rt.store = session.NewFileStore(cfg.StorePath)
	}

	var auth authclient.Authenticator
	var revoker authclient.Revoker
	if cfg.OIDC.Enabled() {
		rt.oidc, err = authclient.NewOIDCAuthenticator(ctx, authclient.OIDCConfig{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
			Timeout:      cfg.RequestTimeout,
		})
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("oidc: %w", err)
		}
		auth = rt.oidc
	} else {
		backend := authclient.NewHTTPAuthenticator(cfg.BackendURL, cfg.RequestTimeout, nil)
		auth, revoker = backend, backend
	}

	validator := authclient.NewValidator(auth, authclient.Policy{
		IdleTimeout:     cfg.IdleTimeout,
		StayLoggedInTTL: cfg.StayLoggedInTTL,
	}, cfg.RequestTimeout)

	rt.provider = authstate.New(rt.store, auth, validator, rt.bus, authstate.Options{
		RevalidateInterval: cfg.RevalidateInterval,
		Revoker:            revoker,
		Metrics:            rt.metrics,
		Logger:             logger.With("auth_provider"),
	})

	rt.api = apiclient.New(cfg.BackendURL, rt.provider, rt.bus, apiclient.Options{
		Timeout:  cfg.RequestTimeout,
		Activity: rt.provider,
	})

	if cfg.Broadcast {
		rt.relay = events.NewRedisRelay(rt.bus, rt.redis, "")
	}
	return rt, nil
}

// start restores the persisted session. One-shot commands announce their
// logouts directly; serve runs the relay instead.
func (rt *runtime) start(ctx context.Context, oneShot bool) error {
	if oneShot && rt.relay != nil {
		rt.unsubs = append(rt.unsubs, rt.bus.Subscribe(events.LoggedOut, func(e events.Event) {
			if err := rt.relay.Broadcast(ctx, e); err != nil {
				rt.log.Warn("failed to broadcast logout", "error", err)
			}
		}))
	}
	return rt.provider.Start(ctx)
}

func (rt *runtime) close() {
	for _, u := range rt.unsubs {
		u()
	}
	if rt.provider != nil {
		rt.provider.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}
