//go:build wireinject
// +build wireinject

package di

import (
	"MarketPull/pkg/config"
	"MarketPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Static data
		ProvideCatalog,

		// Infrastructure clients
		ProvideHTTPClient,
		ProvideTokenCache,
		ProvideSession,

		// Fetch strategies
		ProvideAdapters,

		// Persistence and sinks
		ProvideStore,
		ProvideRunLog,
		ProvideMirror,
		ProvidePublisher,

		// Use cases
		ProvideResolver,
		ProvideReconciler,
		ProvideRunner,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
