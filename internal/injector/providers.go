package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/otsync/internal/config"
	"github.com/zeusync/otsync/internal/core/events/bus"
	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/internal/core/repository"
)

// ProviderSet holds the providers shared by every injector.
var ProviderSet = wire.NewSet(ProvideLogger, ProvideEventBus, repository.New)

func ProvideLogger(cfg *config.Config) log.Log {
	return log.New(cfg.LogLevel())
}

// ProvideEventBus returns a bus that is closed by the cleanup function.
func ProvideEventBus() (bus.EventBus, func()) {
	events := bus.New()
	return events, func() { _ = events.Close() }
}
