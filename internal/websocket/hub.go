// Package websocket fans job progress out to connected admin clients.
package websocket

import (
	"github.com/goccy/go-json"

	"github.com/vrsandeep/anime-sync/internal/logging"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run owns the client set. It must run in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client.
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastJSON marshals v and queues it for every client. Messages are
// dropped rather than blocking the caller when the hub is behind.
func (h *Hub) BroadcastJSON(v any) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal broadcast message")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logging.Warn().Msg("Broadcast channel full, dropping progress message")
	}
}
