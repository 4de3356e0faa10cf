package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhate/outlookcal/config"
	"github.com/tazhate/outlookcal/internal/auth"
	"github.com/tazhate/outlookcal/internal/notify"
	"github.com/tazhate/outlookcal/internal/server"
	"github.com/tazhate/outlookcal/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	reporter := notify.New()
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		reporter, err = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatalf("Failed to init telegram reporter: %v", err)
		}
	}

	provider := auth.New(cfg.ClientID, cfg.Tenant, cfg.RedirectURI, store)

	srv := server.New(cfg, provider, store, reporter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("outlookcal started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping server: %v", err)
	}

	log.Println("outlookcal stopped")
}
