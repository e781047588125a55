package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *DB
	var analytics *Analytics
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("open db %s: %v", cfg.DBPath, err)
		}
		defer db.Close()
		analytics = NewAnalytics(db)
	}

	auth, err := NewAuth(cfg, db)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	arena := NewArena(cfg.Game, analytics)
	go arena.Run()

	hub := NewHub(arena, auth, db)
	go hub.Run()

	mux := SetupRoutes(hub, cfg)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s (%.0fx%.0f arena, %d Hz)", cfg.Addr, cfg.Game.BoundX, cfg.Game.BoundY, cfg.Game.TickRate)
		log.Printf("Serving spectator files from %s", cfg.SpectatorDir)
		if cfg.DevMode {
			log.Println("Dev mode: any API key is accepted")
		}
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Printf("Shutting down with %d clients...", hub.ClientCount())
	server.Close()
	hub.Stop()
	arena.Stop()
	analytics.Stop()
}
