package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"trivia-party/internal/flow"

	"github.com/gorilla/websocket"
)

// wsHub fans game snapshots out to every viewer of a game. Host connections
// are tracked separately because only they receive the online-players feed.
type wsHub struct {
	mu     sync.Mutex
	groups map[string]map[*websocket.Conn]struct{}
	hosts  map[string]map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		groups: make(map[string]map[*websocket.Conn]struct{}),
		hosts:  make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *wsHub) Add(gameID string, conn *websocket.Conn, isHost bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.groups[gameID] = group
	}
	group[conn] = struct{}{}
	if isHost {
		hostGroup := h.hosts[gameID]
		if hostGroup == nil {
			hostGroup = make(map[*websocket.Conn]struct{})
			h.hosts[gameID] = hostGroup
		}
		hostGroup[conn] = struct{}{}
	}
}

// Remove drops a connection from both maps; host membership is not trusted
// from the caller because write failures surface outside the host path.
func (h *wsHub) Remove(gameID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		return
	}
	delete(group, conn)
	_ = conn.Close()
	if len(group) == 0 {
		delete(h.groups, gameID)
	}
	if hostGroup := h.hosts[gameID]; hostGroup != nil {
		delete(hostGroup, conn)
		if len(hostGroup) == 0 {
			delete(h.hosts, gameID)
		}
	}
}

func (h *wsHub) Send(conn *websocket.Conn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (h *wsHub) Broadcast(gameID string, payload any) {
	h.broadcast(h.snapshotConns(gameID, false), gameID, payload)
}

func (h *wsHub) BroadcastHosts(gameID string, payload any) {
	h.broadcast(h.snapshotConns(gameID, true), gameID, payload)
}

func (h *wsHub) snapshotConns(gameID string, hostsOnly bool) []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if hostsOnly {
		group = h.hosts[gameID]
	}
	conns := make([]*websocket.Conn, 0, len(group))
	for conn := range group {
		conns = append(conns, conn)
	}
	return conns
}

func (h *wsHub) broadcast(conns []*websocket.Conn, gameID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.Remove(gameID, conn)
		}
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseWebsocketPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	game, err := s.client.Get(r.Context(), flow.CollectionGames, gameID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	role := r.URL.Query().Get("role")
	isHost := role == "host"
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	log.Printf("ws connected game_id=%s role=%s remote=%s", gameID, role, r.RemoteAddr)
	s.ws.Add(gameID, conn, isHost)
	s.ws.Send(conn, s.gameSnapshot(game))
	if isHost {
		s.ws.Send(conn, map[string]any{
			"online": s.classifyOnline(r.Context(), gameID, time.Now()),
		})
	}
	go s.readWS(gameID, conn)
}

// readWS drains the connection until it drops. Viewers never send application
// messages; all mutations go through the HTTP API.
func (s *Server) readWS(gameID string, conn *websocket.Conn) {
	defer s.ws.Remove(gameID, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Printf("ws disconnected game_id=%s error=%v", gameID, err)
			return
		}
	}
}
