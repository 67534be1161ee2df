//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/otsync/internal/config"
	"github.com/zeusync/otsync/internal/core/repository"
	"github.com/zeusync/otsync/internal/server"
)

// InitializeServer builds the document server for cfg.
func InitializeServer(cfg *config.Config) (*server.Server, func(), error) {
	wire.Build(ProviderSet, server.New)
	return nil, nil, nil
}

// InitializeRepository builds a standalone repository with its event bus.
func InitializeRepository(cfg *config.Config) (*repository.Repository, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
