package main

import (
	"log"
	"net/http"
	"os"

	"trivia-party/internal/config"
	"trivia-party/internal/db"
	"trivia-party/internal/server"
	"trivia-party/internal/store"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	conn, err := db.Open()
	if err != nil {
		log.Printf("running without database mirror: %v", err)
		conn = nil
	} else {
		if err := db.ConfigurePool(conn, cfg); err != nil {
			log.Printf("db pool config failed: %v", err)
		}
		if err := db.Migrate(conn); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
	}

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}

	srv := server.New(store.NewMemory(), conn, cfg)
	defer srv.Close()
	log.Printf("trivia-party server listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
