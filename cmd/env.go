package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visitor-enrich/internal/config"
	"github.com/sells-group/visitor-enrich/internal/contact"
	"github.com/sells-group/visitor-enrich/internal/db"
	"github.com/sells-group/visitor-enrich/internal/identity"
	"github.com/sells-group/visitor-enrich/internal/monitoring"
	"github.com/sells-group/visitor-enrich/internal/resilience"
	"github.com/sells-group/visitor-enrich/internal/store"
	"github.com/sells-group/visitor-enrich/internal/waterfall"
	"github.com/sells-group/visitor-enrich/internal/waterfall/provider"
	"github.com/sells-group/visitor-enrich/internal/worker"
	"github.com/sells-group/visitor-enrich/pkg/apollo"
	"github.com/sells-group/visitor-enrich/pkg/clearbit"
	"github.com/sells-group/visitor-enrich/pkg/enrichso"
	"github.com/sells-group/visitor-enrich/pkg/hunter"
	"github.com/sells-group/visitor-enrich/pkg/ipapi"
	"github.com/sells-group/visitor-enrich/pkg/ipdata"
	"github.com/sells-group/visitor-enrich/pkg/ipinfo"
)

// clearbitMemoTTL bounds how long a Clearbit company lookup is reused.
const clearbitMemoTTL = 10 * time.Minute

// enrichEnv holds the store, provider chain, and worker shared by the
// work and enrich commands.
type enrichEnv struct {
	Store   store.Gateway
	Pool    *pgxpool.Pool // nil unless store.driver is postgres
	Worker  *worker.Worker
	Metrics *monitoring.Metrics
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured gateway. The pgx pool is returned as well
// when the driver is postgres so the job queue can share it.
func initStore(ctx context.Context) (store.Gateway, *pgxpool.Pool, error) {
	opts := []store.Option{}
	if cfg.Store.WriteTimeoutSecs > 0 {
		opts = append(opts, store.WithWriteTimeout(time.Duration(cfg.Store.WriteTimeoutSecs)*time.Second))
	}

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "visitor-enrich.db"
		}
		gw, err := store.NewSQLite(dsn, opts...)
		return gw, nil, err
	case "postgres":
		var pool *pgxpool.Pool
		err := resilience.Do(ctx, resilience.RetryConfig{
			MaxAttempts: 5,
			ShouldRetry: func(error) bool { return true },
			OnRetry:     resilience.RetryLogger("postgres", "connect"),
		}, func(ctx context.Context) error {
			p, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
			pool = p
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(pool, opts...), pool, nil
	default:
		return nil, nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv opens and migrates the store and builds the worker. reg may be
// nil, in which case no metrics are recorded.
func initEnv(ctx context.Context, reg prometheus.Registerer) (*enrichEnv, error) {
	gw, pool, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := gw.Migrate(ctx); err != nil {
		_ = gw.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	order, err := config.LoadProviderOrder(cfg.Providers.OrderFile)
	if err != nil {
		_ = gw.Close()
		return nil, err
	}

	var metrics *monitoring.Metrics
	if reg != nil {
		metrics = monitoring.NewMetrics(reg)
	}

	limits := providerLimits(cfg.Providers)
	cb := clearbitClient(cfg.Providers.Clearbit)
	resolver := buildResolver(cfg.Providers, order, limits, metrics, cb)
	contacts := buildContacts(cfg.Providers, order, limits, metrics, cb)

	zap.L().Info("providers configured",
		zap.Strings("identity", order.Identity),
		zap.String("deepen", order.Deepen),
		zap.Strings("contact", order.Contact),
	)

	w := worker.New(gw, resolver, contacts,
		worker.WithMetrics(metrics),
		worker.WithJobTimeout(time.Duration(cfg.Worker.JobTimeoutSecs)*time.Second),
	)

	return &enrichEnv{Store: gw, Pool: pool, Worker: w, Metrics: metrics}, nil
}

// providerLimits bounds every provider call with its configured timeout and
// a per-provider circuit breaker.
func providerLimits(pc config.ProvidersConfig) waterfall.Limits {
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	if pc.Breaker.FailureThreshold > 0 {
		breakerCfg.FailureThreshold = pc.Breaker.FailureThreshold
	}
	if pc.Breaker.ResetTimeoutSecs > 0 {
		breakerCfg.ResetTimeout = time.Duration(pc.Breaker.ResetTimeoutSecs) * time.Second
	}
	breakerCfg.ShouldTrip = resilience.ShouldTripProvider
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("provider circuit breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return waterfall.Limits{
		Timeout:  pc.Timeout,
		Breakers: resilience.NewBreakers(breakerCfg),
	}
}

// enabled reports whether a keyed provider should get a client. Providers
// without one stay registered and report provider.ErrNotConfigured.
func enabled(p config.ProviderConfig) bool {
	return p.Key != "" && !p.Disabled
}

// clearbitClient returns the Clearbit client shared by deepening and the
// contact fan-out, or nil when Clearbit is not configured. Lookups are
// memoized so a job asks Clearbit about its domain once.
func clearbitClient(c config.ProviderConfig) clearbit.Client {
	if !enabled(c) {
		return nil
	}
	return clearbit.NewMemo(clearbit.NewClient(c.Key, clearbit.WithBaseURL(c.BaseURL)), clearbitMemoTTL)
}

func buildResolver(pc config.ProvidersConfig, order config.ProviderOrder, limits waterfall.Limits, m *monitoring.Metrics, cb clearbit.Client) *identity.Resolver {
	reg := provider.NewRegistry[provider.IdentityProvider]()

	var es enrichso.Client
	if c := pc.EnrichSo; enabled(c) {
		es = enrichso.NewClient(c.Key, enrichso.WithBaseURL(c.BaseURL))
	}
	reg.Register(identity.NewEnrichSo(es))

	var ipd ipdata.Client
	if c := pc.IPData; enabled(c) {
		ipd = ipdata.NewClient(c.Key, ipdata.WithBaseURL(c.BaseURL))
	}
	reg.Register(identity.NewIPData(ipd))

	// ip-api and ipinfo have free tiers and need no key.
	var ipa ipapi.Client
	if c := pc.IPAPI; !c.Disabled {
		opts := []ipapi.Option{ipapi.WithBaseURL(c.BaseURL)}
		if c.RatePerMinute > 0 {
			opts = append(opts, ipapi.WithRatePerMinute(c.RatePerMinute))
		}
		ipa = ipapi.NewClient(opts...)
	}
	reg.Register(identity.NewIPAPI(ipa))

	var ipi ipinfo.Client
	if c := pc.IPInfo; !c.Disabled {
		ipi = ipinfo.NewClient(c.Key, ipinfo.WithBaseURL(c.BaseURL))
	}
	reg.Register(identity.NewIPInfo(ipi))

	opts := []identity.Option{
		identity.WithLimits(limits),
		identity.WithObserver(m.Observer(monitoring.StageIdentity)),
		identity.WithDeepenObserver(m.Observer(monitoring.StageDeepen)),
	}
	if order.Deepen == config.ProviderClearbit {
		opts = append(opts, identity.WithDeepener(identity.NewClearbit(cb)))
	} else if order.Deepen != "" {
		zap.L().Warn("unknown deepening provider, skipping", zap.String("provider", order.Deepen))
	}

	return identity.NewResolver(reg.Ordered(order.Identity), opts...)
}

func buildContacts(pc config.ProvidersConfig, order config.ProviderOrder, limits waterfall.Limits, m *monitoring.Metrics, cb clearbit.Client) *contact.FanOut {
	reg := provider.NewRegistry[provider.ContactProvider]()
	reg.Register(contact.NewClearbit(cb))

	var ap apollo.Client
	if c := pc.Apollo; enabled(c) {
		ap = apollo.NewClient(c.Key, apollo.WithBaseURL(c.BaseURL))
	}
	reg.Register(contact.NewApollo(ap))

	var hu hunter.Client
	if c := pc.Hunter; enabled(c) {
		hu = hunter.NewClient(c.Key, hunter.WithBaseURL(c.BaseURL))
	}
	reg.Register(contact.NewHunter(hu))

	return contact.NewFanOut(reg.Ordered(order.Contact),
		contact.WithLimits(limits),
		contact.WithObserver(m.Observer(monitoring.StageContact)),
	)
}
