// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/lernspiel/arena/internal/auth"
	"github.com/lernspiel/arena/internal/cache"
	"github.com/lernspiel/arena/internal/config"
	"github.com/lernspiel/arena/internal/database"
	"github.com/lernspiel/arena/internal/events"
	"github.com/lernspiel/arena/internal/handlers"
	"github.com/lernspiel/arena/internal/hub"
	"github.com/lernspiel/arena/internal/lobby"
	"github.com/lernspiel/arena/internal/middleware"
	"github.com/lernspiel/arena/internal/session"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := auth.Init(); err != nil {
		log.Fatalf("init auth keys: %v", err)
	}

	ctx := context.Background()
	store, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer store.Close()

	// The event journal is optional; without redis events are push-only.
	var journal *cache.Journal
	if cfg.RedisAddr != "" {
		journal, err = cache.NewJournal(cfg.RedisAddr, cfg.RedisDB, cfg.EventQueue)
		if err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer journal.Close()
	}

	h := hub.New(hub.Config{
		MaxConnections:           cfg.Hub.MaxConnections,
		MaxChannelsPerConnection: cfg.Hub.MaxChannelsPerConnection,
		EvictionBatch:            cfg.Hub.EvictionBatch,
		EvictionGrace:            cfg.Hub.EvictionGrace,
		HeartbeatInterval:        cfg.Hub.HeartbeatInterval,
		CleanupInterval:          cfg.Hub.CleanupInterval,
		IdleTimeout:              cfg.Hub.IdleTimeout,
		SendBuffer:               cfg.Hub.SendBuffer,
	}, logger)
	go h.Run(ctx)

	bus := events.NewBus(h, journal, logger)

	lobbies := lobby.NewManager(store, store, bus, logger)
	sessions := session.NewManager(store, bus, logger)
	lobbies.SetSeeder(sessions)

	srv := handlers.NewServer(lobbies, sessions, h, store, store, logger)

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	// user endpoints
	mux.Handle("POST /user/create", logged(http.HandlerFunc(srv.CreateUserHandler)))
	mux.Handle("POST /user/login", logged(http.HandlerFunc(srv.LoginHandler)))
	mux.Handle("POST /user/guest", logged(http.HandlerFunc(srv.GuestHandler)))

	// lobby endpoints
	mux.Handle("POST /lobby/create", logged(http.HandlerFunc(srv.CreateLobbyHandler)))
	mux.Handle("POST /lobby/activate", logged(http.HandlerFunc(srv.ActivateLobbyHandler)))
	mux.Handle("POST /lobby/close", logged(http.HandlerFunc(srv.CloseLobbyHandler)))
	mux.Handle("POST /lobby/expiration", logged(http.HandlerFunc(srv.SetLobbyExpirationHandler)))
	mux.Handle("GET /lobby/list", logged(http.HandlerFunc(srv.ListMyLobbiesHandler)))
	mux.Handle("GET /lobby/code/{code}", logged(http.HandlerFunc(srv.FindLobbyByCodeHandler)))
	mux.Handle("GET /lobby/{id}", logged(http.HandlerFunc(srv.GetLobbyHandler)))
	mux.Handle("GET /lobby/{id}/sessions", logged(http.HandlerFunc(srv.ListSessionsHandler)))

	// catalog read-through
	mux.Handle("GET /game/{id}", logged(http.HandlerFunc(srv.GetGameHandler)))

	// session endpoints
	mux.Handle("POST /session/join", logged(http.HandlerFunc(srv.JoinLobbyHandler)))
	mux.Handle("POST /session/create", logged(http.HandlerFunc(srv.CreateSessionHandler)))
	mux.Handle("POST /session/leave", logged(http.HandlerFunc(srv.LeaveSessionHandler)))
	mux.Handle("POST /session/state", logged(http.HandlerFunc(srv.UpdateGameStateHandler)))

	// realtime event stream
	mux.Handle("GET /realtime/ws", http.HandlerFunc(srv.RealtimeWSHandler))
	mux.Handle("POST /realtime/subscribe", logged(http.HandlerFunc(srv.SubscribeHandler)))

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
