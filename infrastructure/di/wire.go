//go:build wireinject
// +build wireinject

package di

import (
	"net/http"

	"github.com/google/wire"
	"go.uber.org/zap"

	"flowsketch-backend/application/engine"
	"flowsketch-backend/infrastructure/config"
	"flowsketch-backend/interfaces/websocket"
)

// Container holds everything cmd/api needs to run
type Container struct {
	Config     *config.Config
	Dynamic    *config.Dynamic
	Logger     *zap.Logger
	Engine     *engine.Engine
	Hub        *websocket.Hub
	Dispatcher *websocket.Dispatcher
	Router     http.Handler
}

// SuperSet is the main provider set
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDynamic,
	ProvideModelRepository,
	ProvideModelStore,
	ProvideMetrics,
	ProvideHub,
	ProvideDispatcher,
	ProvideEngine,
	ProvideSpecParser,
	ProvideAuthValidator,
	ProvideWebSocketServer,
	ProvideHandlers,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
