// Package di assembles the application with google/wire
package di

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"flowsketch-backend/application/engine"
	"flowsketch-backend/application/ports"
	"flowsketch-backend/application/store"
	"flowsketch-backend/domain/core/aggregates"
	"flowsketch-backend/infrastructure/acl"
	"flowsketch-backend/infrastructure/config"
	"flowsketch-backend/infrastructure/persistence/memory"
	"flowsketch-backend/interfaces/http/rest"
	"flowsketch-backend/interfaces/http/rest/handlers"
	"flowsketch-backend/interfaces/websocket"
	"flowsketch-backend/pkg/auth"
	"flowsketch-backend/pkg/observability"
)

// ProvideLogger creates the process logger for the configured environment
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		zapCfg := zap.NewProductionConfig()
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			return zapCfg.Build()
		}
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideDynamic loads the dynamic tuning values
func ProvideDynamic(cfg *config.Config, log *zap.Logger) *config.Dynamic {
	return config.NewDynamic(cfg.DynamicPath, log)
}

// ProvideModelRepository creates the in-memory model repository
func ProvideModelRepository() ports.ModelRepository {
	return memory.NewModelRepository()
}

// ProvideModelStore creates the model store with limits read from the
// dynamic config on every commit
func ProvideModelStore(repo ports.ModelRepository, dynamic *config.Dynamic) *store.ModelStore {
	return store.NewModelStore(repo,
		store.WithLimits(func() aggregates.Limits {
			v := dynamic.Values()
			return aggregates.Limits{
				MaxEntities:      v.MaxEntities,
				MaxRelationships: v.MaxRelationships,
			}
		}),
	)
}

// ProvideMetrics creates the metrics registry
func ProvideMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

// ProvideHub creates the websocket room hub
func ProvideHub(metrics *observability.Metrics, log *zap.Logger) *websocket.Hub {
	return websocket.NewHub(metrics, log)
}

// ProvideDispatcher creates the version-ordered broadcast dispatcher
func ProvideDispatcher(hub *websocket.Hub, metrics *observability.Metrics, dynamic *config.Dynamic, log *zap.Logger) *websocket.Dispatcher {
	return websocket.NewDispatcher(hub, metrics,
		func() time.Duration { return dynamic.Values().FlushInterval }, log)
}

// ProvideEngine creates the synchronization engine
func ProvideEngine(modelStore *store.ModelStore, dispatcher *websocket.Dispatcher, metrics *observability.Metrics, dynamic *config.Dynamic, log *zap.Logger) *engine.Engine {
	return engine.NewEngine(modelStore, dispatcher, metrics,
		func() time.Duration { return dynamic.Values().ConflictTTL }, metrics, log)
}

// ProvideSpecParser creates the parser service client
func ProvideSpecParser(cfg *config.Config, log *zap.Logger) ports.SpecParser {
	return acl.NewParserClient(cfg.ParserBaseURL, cfg.ParserTimeout, log)
}

// ProvideAuthValidator creates the token validator
func ProvideAuthValidator(cfg *config.Config) *auth.Validator {
	return auth.NewValidator(cfg.JWTSecret)
}

// ProvideWebSocketServer creates the websocket upgrade endpoint
func ProvideWebSocketServer(hub *websocket.Hub, eng *engine.Engine, cfg *config.Config, log *zap.Logger) *websocket.Server {
	return websocket.NewServer(hub, eng, cfg.AllowedOrigins, log)
}

// ProvideHandlers bundles the REST handlers
func ProvideHandlers(modelStore *store.ModelStore, eng *engine.Engine, parser ports.SpecParser, wsServer *websocket.Server) rest.Handlers {
	return rest.Handlers{
		Diagram:   handlers.NewDiagramHandler(modelStore, eng),
		Spec:      handlers.NewSpecHandler(modelStore, eng),
		Parse:     handlers.NewParseHandler(eng, parser),
		WebSocket: wsServer,
	}
}

// ProvideRouter assembles the HTTP router
func ProvideRouter(cfg *config.Config, h rest.Handlers, validator *auth.Validator, metrics *observability.Metrics, log *zap.Logger) http.Handler {
	return rest.NewRouter(cfg, h, validator, metrics, log)
}
