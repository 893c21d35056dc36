package server

import (
	"context"
	"net/http"
	"time"

	"trivia-party/internal/config"
	"trivia-party/internal/flow"
	"trivia-party/internal/presence"
	"trivia-party/internal/scoreboard"
	"trivia-party/internal/store"

	"gorm.io/gorm"
)

type Server struct {
	client     store.Client
	controller *flow.Controller
	aggregator *scoreboard.Aggregator
	db         *gorm.DB
	ws         *wsHub
	cfg        config.Config
	stops      []func()
}

func New(client store.Client, conn *gorm.DB, cfg config.Config) *Server {
	s := &Server{
		client:     client,
		controller: flow.NewController(client),
		aggregator: scoreboard.NewAggregator(client),
		db:         conn,
		ws:         newWSHub(),
		cfg:        cfg,
	}
	// The controller and aggregator only write records; pushing the result to
	// connected viewers rides on the store's change feed.
	s.stops = append(s.stops,
		s.client.Subscribe(flow.CollectionGames, s.onGameEvent),
		s.client.Subscribe(presence.CollectionOnline, s.onPresenceEvent),
		s.aggregator.Watch(),
	)
	return s
}

// Close detaches the server from the store's change feed.
func (s *Server) Close() {
	for _, stop := range s.stops {
		stop()
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("POST /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("GET /api/questions/categories", s.handleQuestionCategories)
	mux.HandleFunc("GET /ws/games/", s.handleWebsocket)
	return mux
}

func (s *Server) onGameEvent(event store.Event) {
	if event.Action == store.ActionDelete {
		return
	}
	s.ws.Broadcast(event.Record.ID, s.gameSnapshot(event.Record))
}

func (s *Server) onPresenceEvent(event store.Event) {
	gameID := event.Record.String("game")
	if gameID == "" {
		return
	}
	s.ws.BroadcastHosts(gameID, map[string]any{
		"online": s.classifyOnline(context.Background(), gameID, time.Now()),
	})
}

func (s *Server) staleAfter() time.Duration {
	return time.Duration(s.cfg.StaleAfterSeconds) * time.Second
}
