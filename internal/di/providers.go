package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/repository"
	internalrepo "MarketPull/internal/repository"
	"MarketPull/internal/service/auth"
	"MarketPull/internal/service/sources"
	"MarketPull/internal/usecase"
	"MarketPull/pkg/cache"
	pkgch "MarketPull/pkg/clickhouse"
	"MarketPull/pkg/config"
	pkghttp "MarketPull/pkg/http"
	pkgkafka "MarketPull/pkg/kafka"
	applogger "MarketPull/pkg/logger"
	"MarketPull/pkg/metrics"
	"MarketPull/pkg/server"
)

// ProvideLogger creates the structured logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	})
}

// ProvideCatalog loads the tracked-asset catalog.
func ProvideCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

// ProvideHTTPClient creates the shared outbound HTTP client.
func ProvideHTTPClient(cfg *config.Config) *pkghttp.Client {
	timeout := cfg.Resolver.AttemptTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return pkghttp.NewClient(pkghttp.WithTimeout(timeout))
}

// ProvideTokenCache creates the token cache: Redis when enabled so parallel
// processes share one refresh, in-memory otherwise.
func ProvideTokenCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, err
	}
	// memory in front of Redis so repeated token reads within a run stay local
	return cache.NewLayeredCache(rc), nil
}

// ProvideSession creates the shared exchange auth session.
func ProvideSession(cfg *config.Config, client *pkghttp.Client, store cache.Service) *auth.Session {
	return auth.NewSession(auth.Config{
		Mode:          cfg.Exchange.Mode,
		TokenURL:      cfg.Exchange.BaseURL + cfg.Exchange.TokenPath,
		AppKey:        cfg.Exchange.AppKey,
		AppSecret:     cfg.Exchange.AppSecret,
		RefreshMargin: cfg.Exchange.RefreshMargin,
	}, client, store)
}

// ProvideAdapters registers every fetch strategy. Network-bound adapters are
// wrapped in the rate-limit/circuit-breaker guard; the deterministic sim
// source needs none.
func ProvideAdapters(cfg *config.Config, session *auth.Session, client *pkghttp.Client) ([]sources.Adapter, error) {
	series := make(map[string]sources.Endpoint, len(cfg.Exchange.Series))
	for sym, ep := range cfg.Exchange.Series {
		series[sym] = sources.Endpoint{
			Path:        ep.Path,
			TrID:        ep.TrID,
			Params:      ep.Params,
			PeriodParam: ep.PeriodParam,
			ResultPath:  ep.ResultPath,
			DateField:   ep.DateField,
			ValueField:  ep.ValueField,
		}
	}
	exchange := sources.NewExchangeAdapter(cfg.Exchange.BaseURL, session, client, series)
	vendor := sources.NewVendorAdapter(cfg.Vendor.BaseURL, client)

	pages := make(map[string]sources.Page, len(cfg.Scrape.Pages))
	for sym, p := range cfg.Scrape.Pages {
		pages[sym] = sources.Page{URL: p.URL, Pattern: p.Pattern}
	}
	scrape, err := sources.NewScrapeAdapter(client, pages)
	if err != nil {
		return nil, fmt.Errorf("scrape adapter: %w", err)
	}

	rps, burst := cfg.Guard.RPS, cfg.Guard.Burst
	return []sources.Adapter{
		sources.NewGuard(exchange, rps, burst),
		sources.NewGuard(vendor, rps, burst),
		sources.NewGuard(scrape, rps, burst),
		sources.NewSimAdapter(cfg.Exchange.Mode, nil),
	}, nil
}

// ProvideResolver creates the fallback resolver.
func ProvideResolver(cfg *config.Config, adapters []sources.Adapter, m repository.Metrics, log *applogger.Logger) *usecase.FallbackResolver {
	return usecase.NewFallbackResolver(adapters, cfg.Resolver.Workers, cfg.Resolver.AttemptTimeout, m, log)
}

// ProvideReconciler creates the morning/afternoon reconciler.
func ProvideReconciler(cat *catalog.Catalog, log *applogger.Logger) *usecase.Reconciler {
	return usecase.NewReconciler(cat, log)
}

// ProvideStore creates the filesystem snapshot store.
func ProvideStore(cfg *config.Config, cat *catalog.Catalog, log *applogger.Logger) (repository.SnapshotStore, error) {
	cols := make([]string, 0, len(cat.HistoryColumns()))
	for _, c := range cat.HistoryColumns() {
		cols = append(cols, c.Column)
	}
	return internalrepo.NewFileStore(cfg.Store.Root,
		internalrepo.WithHistoryColumns(cols),
		internalrepo.WithRawFormat(cfg.Store.RawFormat),
		internalrepo.WithStoreLogger(log),
	)
}

// ProvideRunLog creates the per-day run log.
func ProvideRunLog(cfg *config.Config) (repository.RunLog, error) {
	return internalrepo.NewFileRunLog(cfg.Store.Root + "/runlog")
}

// ProvideMirror creates the optional ClickHouse history mirror. Disabled
// config yields a nil mirror, which the runner treats as absent.
func ProvideMirror(cfg *config.Config, log *applogger.Logger) (repository.Mirror, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mirror, err := internalrepo.NewCHHistoryMirror(ctx, client, log)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse mirror: %w", err)
	}
	return mirror, nil
}

// ProvidePublisher creates the optional Kafka publisher for confirmed rows.
func ProvidePublisher(cfg *config.Config, log *applogger.Logger) (repository.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic, log), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRunner wires the pipeline use case.
func ProvideRunner(
	cat *catalog.Catalog,
	resolver *usecase.FallbackResolver,
	recon *usecase.Reconciler,
	store repository.SnapshotStore,
	mirror repository.Mirror,
	publisher repository.Publisher,
	runlog repository.RunLog,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Runner {
	return usecase.NewRunner(cat, resolver, recon, store, mirror, publisher, runlog, m, log)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	runner *usecase.Runner,
	mirror repository.Mirror,
	publisher repository.Publisher,
	log *applogger.Logger,
) *server.App {
	if kp, ok := publisher.(*internalrepo.KafkaPublisher); ok && kp != nil {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.Topic + ".errorlog",
			Publisher:      kp,
		})
	}
	return server.New(cfg, runner, mirror, publisher, log)
}
