//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FxSignal/pkg/config"
	"FxSignal/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,
		ProvideLocker,
		ProvideClickHouseClient,

		// Repositories
		ProvideSignalLedger,
		ProvideSignalLogStore,
		ProvideSignalRepository,
		ProvideKeyPool,
		ProvideMarketData,

		// Use cases
		ProvideSignalLogService,
		ProvideEventPublisher,
		ProvideKafkaConsumer,
		ProvideScoringEngine,
		ProvideSignalGenerator,
		ProvideTradeMonitor,
		ProvideLedgerSync,
		ProvideSignalBook,
		ProvideBacktestRunner,

		// Application server
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
