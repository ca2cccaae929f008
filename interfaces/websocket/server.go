package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flowsketch-backend/application/engine"
	"flowsketch-backend/pkg/common"
)

// Server upgrades HTTP requests to websocket connections. Authentication
// happens before the upgrade via the surrounding middleware.
type Server struct {
	hub      *Hub
	engine   *engine.Engine
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewServer creates the websocket endpoint handler
func NewServer(hub *Hub, eng *engine.Engine, allowedOrigins []string, log *zap.Logger) *Server {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Server{
		hub:    hub,
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins[origin] || origins["*"]
			},
		},
		log: log,
	}
}

// ServeHTTP handles the upgrade and starts the client pumps
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(s.hub, s.engine, conn, userID, s.log)
	s.hub.register <- client

	// The request context dies with this handler; the pumps outlive it
	go client.writePump()
	go client.readPump(context.Background())
}
