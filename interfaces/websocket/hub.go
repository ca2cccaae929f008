package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"flowsketch-backend/pkg/observability"
)

// Hub tracks connected clients and their project-room membership and fans
// frames out to rooms. All membership changes go through its run loop.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	join       chan roomChange
	leave      chan roomChange
	broadcast  chan roomFrame

	mu      sync.RWMutex
	rooms   map[string]map[*Client]bool
	clients map[*Client]bool

	metrics *observability.Metrics
	log     *zap.Logger
}

type roomChange struct {
	client    *Client
	projectID string
}

type roomFrame struct {
	projectID string
	data      []byte
	// exclude skips one client, used for presence relays back to the sender
	exclude *Client
}

// NewHub creates a hub; call Run before registering clients
func NewHub(metrics *observability.Metrics, log *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan roomChange),
		leave:      make(chan roomChange),
		broadcast:  make(chan roomFrame, 256),
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		metrics:    metrics,
		log:        log,
	}
}

// Run processes membership and broadcast traffic until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case change := <-h.join:
			h.joinRoom(change.client, change.projectID)
		case change := <-h.leave:
			h.leaveRoom(change.client, change.projectID)
		case frame := <-h.broadcast:
			h.fanOut(frame)
		}
	}
}

// Broadcast queues a frame for every subscriber of the project room
func (h *Hub) Broadcast(projectID string, data []byte) {
	h.broadcast <- roomFrame{projectID: projectID, data: data}
}

// Relay queues a frame for the room excluding the sender
func (h *Hub) Relay(projectID string, data []byte, sender *Client) {
	h.broadcast <- roomFrame{projectID: projectID, data: data, exclude: sender}
}

// RoomSize reports the current subscriber count for a project
func (h *Hub) RoomSize(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectedClients.Set(float64(count))
	}
	h.log.Debug("client connected", zap.String("user_id", client.userID))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for projectID, room := range h.rooms {
		if room[client] {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, projectID)
			}
		}
	}
	clientCount, roomCount := len(h.clients), len(h.rooms)
	h.mu.Unlock()

	close(client.send)
	if h.metrics != nil {
		h.metrics.ConnectedClients.Set(float64(clientCount))
		h.metrics.ProjectRooms.Set(float64(roomCount))
	}
	h.log.Debug("client disconnected", zap.String("user_id", client.userID))
}

func (h *Hub) joinRoom(client *Client, projectID string) {
	h.mu.Lock()
	if h.rooms[projectID] == nil {
		h.rooms[projectID] = make(map[*Client]bool)
	}
	h.rooms[projectID][client] = true
	roomCount := len(h.rooms)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ProjectRooms.Set(float64(roomCount))
	}
	h.log.Debug("client joined room",
		zap.String("user_id", client.userID),
		zap.String("project_id", projectID))
}

func (h *Hub) leaveRoom(client *Client, projectID string) {
	h.mu.Lock()
	if room := h.rooms[projectID]; room != nil {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, projectID)
		}
	}
	roomCount := len(h.rooms)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ProjectRooms.Set(float64(roomCount))
	}
}

func (h *Hub) fanOut(frame roomFrame) {
	h.mu.RLock()
	room := h.rooms[frame.projectID]
	targets := make([]*Client, 0, len(room))
	for client := range room {
		if client != frame.exclude {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- frame.data:
		default:
			// Slow consumer; drop the connection rather than the room
			h.log.Warn("dropping slow websocket client", zap.String("user_id", client.userID))
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.rooms = make(map[string]map[*Client]bool)
}
