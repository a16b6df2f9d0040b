package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"FxSignal/internal/domain/repository"
	"FxSignal/internal/handler/api"
	internalrepo "FxSignal/internal/repository"
	"FxSignal/internal/service/ratelimit"
	"FxSignal/internal/service/scoring"
	"FxSignal/internal/service/twelvedata"
	"FxSignal/internal/usecase"
	"FxSignal/pkg/cache"
	pkgch "FxSignal/pkg/clickhouse"
	"FxSignal/pkg/config"
	xhttp "FxSignal/pkg/http"
	pkgkafka "FxSignal/pkg/kafka"
	applogger "FxSignal/pkg/logger"
	"FxSignal/pkg/metrics"
	"FxSignal/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer. It returns nil when no brokers
// are configured; events then stay in process.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the root logger. With a producer, error logs are also
// aggregated and shipped to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics registers the recorder on the default registry served at /metrics.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideCache returns a layered memory+Redis cache when Redis is configured and
// a memory cache otherwise.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if cfg.Redis.Addr == "" {
		mem := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.MarketData.CacheSize))
		return mem, func() { _ = mem.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache connected", applogger.String("addr", cfg.Redis.Addr))
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.MarketData.CacheSize))
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideLocker guards the monitor pass across instances. Without Redis there is
// a single instance and no lock is taken.
func ProvideLocker(cfg *config.Config, c cache.Service) repository.Locker {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return c
}

// ProvideClickHouseClient connects and creates the schema when the ledger backend
// is ClickHouse. It returns nil for the memory backend.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Ledger.Backend != "clickhouse" {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideSignalLedger(ch *pkgch.Client, l *applogger.Logger) repository.SignalLedger {
	if ch == nil {
		return internalrepo.NewMemoryLedger()
	}
	return internalrepo.NewClickHouseLedger(ch, l)
}

func ProvideSignalLogStore(ch *pkgch.Client, l *applogger.Logger) repository.SignalLogStore {
	if ch == nil {
		return internalrepo.NewMemorySignalLog(1000)
	}
	return internalrepo.NewClickHouseSignalLog(ch, l)
}

func ProvideSignalLogService(store repository.SignalLogStore, l *applogger.Logger) *usecase.SignalLogService {
	return usecase.NewSignalLogService(store, l)
}

// ProvideEventPublisher sends events to Kafka, or straight to the signal log
// when no broker is configured.
func ProvideEventPublisher(producer *pkgkafka.Producer, sink *usecase.SignalLogService) repository.EventPublisher {
	if producer == nil {
		return usecase.NewLocalPublisher(sink)
	}
	return internalrepo.NewKafkaEventPublisher(producer)
}

// ProvideKafkaConsumer feeds signal.resolved into the signal log. It returns nil
// without brokers.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, sink *usecase.SignalLogService) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook()))
	consumer.RegisterHandler(sink)
	return consumer, nil
}

func ProvideKeyPool(cfg *config.Config) *ratelimit.KeyPool {
	return ratelimit.NewKeyPool(cfg.MarketData.APIKeys,
		ratelimit.WithCallsPerKey(cfg.MarketData.CallsPerKey),
		ratelimit.WithCooldown(cfg.MarketData.KeyCooldown),
	)
}

func ProvideMarketData(
	cfg *config.Config,
	keys *ratelimit.KeyPool,
	c cache.Service,
	m *metrics.Recorder,
	l *applogger.Logger,
) repository.MarketDataSource {
	return twelvedata.New(keys,
		twelvedata.WithBaseURL(cfg.MarketData.BaseURL),
		twelvedata.WithCache(c, cfg.MarketData.CacheTTL),
		twelvedata.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.MarketData.Timeout))),
		twelvedata.WithMetrics(m),
		twelvedata.WithLogger(l),
	)
}

// ProvideScoringEngine applies configured weight overrides to the built-in table.
func ProvideScoringEngine(cfg *config.Config) (*scoring.Engine, error) {
	w, err := scoring.DefaultWeights().Override(cfg.Signals.Weights)
	if err != nil {
		return nil, fmt.Errorf("scoring weights: %w", err)
	}
	return scoring.New(scoring.WithWeights(w)), nil
}

func ProvideSignalRepository() *internalrepo.SignalRepository {
	return internalrepo.NewSignalRepository()
}

func ProvideSignalGenerator(
	cfg *config.Config,
	market repository.MarketDataSource,
	ledger repository.SignalLedger,
	repo *internalrepo.SignalRepository,
	events repository.EventPublisher,
	engine *scoring.Engine,
	m *metrics.Recorder,
	l *applogger.Logger,
) *usecase.SignalGenerator {
	return usecase.NewSignalGenerator(market, ledger, repo, events, engine, m, l, usecase.GeneratorConfig{
		MinConfidence: cfg.Signals.MinConfidence,
		SLMultiplier:  cfg.Signals.SLMultiplier,
		TPMultiplier:  cfg.Signals.TPMultiplier,
	})
}

func ProvideTradeMonitor(
	cfg *config.Config,
	market repository.MarketDataSource,
	ledger repository.SignalLedger,
	repo *internalrepo.SignalRepository,
	events repository.EventPublisher,
	locker repository.Locker,
	m *metrics.Recorder,
	l *applogger.Logger,
) *usecase.TradeMonitor {
	return usecase.NewTradeMonitor(market, ledger, repo, events, locker, m, l, usecase.MonitorConfig{
		MaxConcurrency: cfg.Monitor.MaxConcurrency,
		LockTTL:        cfg.Monitor.LockTTL,
	})
}

func ProvideLedgerSync(ledger repository.SignalLedger, repo *internalrepo.SignalRepository, l *applogger.Logger) *usecase.LedgerSync {
	return usecase.NewLedgerSync(ledger, repo, l)
}

func ProvideSignalBook(
	ledger repository.SignalLedger,
	repo *internalrepo.SignalRepository,
	events repository.EventPublisher,
	l *applogger.Logger,
) *usecase.SignalBook {
	return usecase.NewSignalBook(ledger, repo, events, l)
}

func ProvideBacktestRunner(
	cfg *config.Config,
	market repository.MarketDataSource,
	engine *scoring.Engine,
	l *applogger.Logger,
) *usecase.BacktestRunner {
	return usecase.NewBacktestRunner(market, engine, l, cfg.Backtest.Timeout)
}

// ProvideHTTPHandler combines the REST handler and the live stream.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	repo *internalrepo.SignalRepository,
	ch *pkgch.Client,
	gen *usecase.SignalGenerator,
	mon *usecase.TradeMonitor,
	sync *usecase.LedgerSync,
	book *usecase.SignalBook,
	bt *usecase.BacktestRunner,
	signalLog *usecase.SignalLogService,
) xhttp.Handler {
	opts := []api.Option{
		api.WithThrottle(ratelimit.New(), cfg.Server.RateLimit, cfg.Server.RateBurst),
		api.WithBacktestSize(cfg.Backtest.DefaultSize),
	}
	if ch != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", ch.Health))
	}
	signals := api.NewSignalsHandler(l, api.Services{
		Generator: gen,
		Monitor:   mon,
		Sync:      sync,
		Book:      book,
		Backtest:  bt,
		SignalLog: signalLog,
	}, opts...)
	return xhttp.Handlers{signals, api.NewStreamHandler(l, repo, cfg.Monitor.StreamInterval)}
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetrics(cfg.Metrics.Enabled),
		xhttp.WithLogger(l),
	)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	mon *usecase.TradeMonitor,
	sync *usecase.LedgerSync,
	consumer *pkgkafka.Consumer,
) *server.App {
	return server.New(cfg, l, srv, mon, sync, consumer)
}
