package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/apicache/auth"
	"github.com/jonwraymond/apicache/cache"
	"github.com/jonwraymond/apicache/config"
	"github.com/jonwraymond/apicache/health"
	"github.com/jonwraymond/apicache/observe"
	"github.com/jonwraymond/apicache/resilience"
)

var (
	serveAddr     string
	serveUpstream string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve a caching HTTP front for the upstream API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveUpstream, "upstream", "", "upstream API base URL (overrides server.upstream)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := firstNonEmpty(serveAddr, cfg.Server.Addr)
	upstream := firstNonEmpty(serveUpstream, cfg.Server.Upstream)
	if upstream == "" {
		return errors.New("serve: an upstream is required (--upstream or server.upstream)")
	}

	obs, err := observe.NewObserver(ctx, cfg.Observe.ToObserve(Version))
	if err != nil {
		return fmt.Errorf("serve: observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()
	logger := obs.Logger()

	rc, transport, err := buildCache(obs, upstream)
	if err != nil {
		return err
	}
	defer rc.Close()

	reg, err := observe.ObserveStats(obs.Meter(), rc)
	if err != nil {
		return fmt.Errorf("serve: stats gauges: %w", err)
	}
	defer func() { _ = reg.Unregister() }()

	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 5 * time.Second})
	agg.Register(health.NewCacheChecker(rc, health.CacheCheckerConfig{
		RequireJanitor: cfg.Cache.JanitorInterval >= 0,
		MaxPending:     cfg.Server.MaxPending,
	}))
	agg.Register(health.NewMemoryChecker(health.MemoryCheckerConfig{}))

	guard := cfg.Server.Guard(config.GuardHooks{
		Retryable: upstreamRetryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn(ctx, "retrying upstream request",
				observe.F("attempt", attempt),
				observe.F("delay", delay.String()),
				observe.F("error", err),
			)
		},
		OnStateChange: func(from, to resilience.State) {
			logger.Warn(ctx, "upstream circuit changed state",
				observe.F("from", from.String()),
				observe.F("to", to.String()),
			)
		},
	})
	agg.Register(upstreamChecker(transport, guard.Breaker))

	admin := adminAuthenticator(cfg.Server.Admin)
	if admin == nil {
		logger.Warn(ctx, "admin endpoints are not protected; set server.admin.api_keys or server.admin.jwt_secret")
	}

	var metricsHandler http.Handler
	if cfg.Observe.Metrics.Enabled && cfg.Observe.Metrics.Exporter == "prometheus" {
		metricsHandler = promhttp.Handler()
	}

	front := newServer(rc, wrapTransport(obs, guard, transport), logger, agg, metricsHandler)
	front.admin, front.adminRole = admin, cfg.Server.Admin.Role

	srv := &http.Server{
		Addr:              addr,
		Handler:           front.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "listening", observe.F("addr", addr), observe.F("upstream", upstream))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info(shutdownCtx, "shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildCache creates the request cache and the upstream transport from cfg.
func buildCache(obs observe.Observer, upstream string) (*cache.RequestCache, *HTTPTransport, error) {
	policy, err := cfg.Cache.Policy()
	if err != nil {
		return nil, nil, err
	}

	transport, err := NewHTTPTransport(upstream, cfg.Server.UpstreamTimeout)
	if err != nil {
		return nil, nil, err
	}

	rec, err := observe.RecorderFromObserver(obs)
	if err != nil {
		return nil, nil, err
	}

	rc, err := cache.New(cache.Config{
		Policy:          policy,
		Recorder:        rec,
		JanitorInterval: cfg.Cache.JanitorInterval,
	})
	if err != nil {
		return nil, nil, err
	}
	return rc, transport, nil
}

// wrapTransport records a span and latency per upstream attempt, then applies
// the guard around those attempts.
func wrapTransport(obs observe.Observer, guard resilience.Guard, t *HTTPTransport) cache.Transport {
	next := cache.Transport(t.Do)
	if mw, err := observe.MiddlewareFromObserver(obs); err == nil {
		next = mw.WrapTransport(next)
	}
	return guard.Wrap(next)
}

// upstreamChecker pings the upstream and reports an open breaker.
func upstreamChecker(t *HTTPTransport, breaker *resilience.CircuitBreaker) health.Checker {
	return health.CheckFunc("upstream", func(ctx context.Context) health.Result {
		if breaker != nil {
			if snap := breaker.Snapshot(); snap.State != resilience.StateClosed {
				return health.Degraded("upstream circuit " + snap.State.String()).WithDetails(map[string]any{
					"failures": snap.Failures,
					"rejected": snap.Rejected,
				})
			}
		}
		if err := t.Ping(ctx); err != nil {
			return health.Degraded("upstream unreachable: " + err.Error())
		}
		return health.Healthy("upstream reachable")
	})
}

// adminAuthenticator builds the /cache guard from configured API keys and
// JWT secret. It returns nil when neither is set.
func adminAuthenticator(cfg config.AdminConfig) auth.Authenticator {
	if !cfg.Protected() {
		return nil
	}

	var chain auth.Chain
	if cfg.JWTSecret != "" {
		chain = append(chain, auth.NewJWTAuthenticator(auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}))
	}
	if len(cfg.APIKeys) > 0 {
		store := auth.NewMemoryKeyStore()
		for i, key := range cfg.APIKeys {
			store.AddKey(fmt.Sprintf("key-%d", i+1), key, cfg.Role)
		}
		chain = append(chain, auth.NewAPIKeyAuthenticator("", store))
	}
	return chain
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
