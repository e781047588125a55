package main

import "sync"

const (
	maxConnsPerIP = 8
	maxTotalConns = 256
)

// Hub tracks connected clients and hands them to the arena
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	unregister chan *Client
	arena      *Arena
	auth       *Auth
	db         *DB
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
	stop       chan struct{}
}

// NewHub creates a new Hub. db may be nil when storage is disabled.
func NewHub(arena *Arena, auth *Auth, db *DB) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		unregister: make(chan *Client, 64),
		arena:      arena,
		auth:       auth,
		db:         db,
		ipConns:    make(map[string]int),
		stop:       make(chan struct{}),
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Register adds a client. Called from the HTTP handler before its pumps start,
// so it always happens before the matching unregister.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

// Run processes unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.arena.Inbox <- Leave{PlayerID: client.playerID}

		case <-h.stop:
			return
		}
	}
}

// Stop ends the Run loop
func (h *Hub) Stop() {
	close(h.stop)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
