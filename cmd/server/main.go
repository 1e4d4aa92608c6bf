package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenochca/dementia-chat-app/internal/config"
	"github.com/tenochca/dementia-chat-app/internal/dialogue"
	"github.com/tenochca/dementia-chat-app/internal/httpserver"
	"github.com/tenochca/dementia-chat-app/internal/llm"
	"github.com/tenochca/dementia-chat-app/internal/session"
	"github.com/tenochca/dementia-chat-app/internal/storage"
	"github.com/tenochca/dementia-chat-app/internal/stt"
	"github.com/tenochca/dementia-chat-app/internal/tts"
	"github.com/tenochca/dementia-chat-app/internal/ws"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	completion := llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)

	opts := session.Options{
		Responder: dialogue.NewManager(completion, cfg.LLMTimeout),
		Interval:  cfg.ScoreInterval,
	}
	if cfg.DeepgramKey != "" {
		opts.Transcriber = stt.NewDeepgramClient(cfg.DeepgramKey, "")
		if cfg.SpeakReplies {
			opts.Synthesizer = tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramTTSVoice, nil)
		}
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		store, err := storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
		if err != nil {
			log.Printf("supabase init error, transcripts will not be persisted: %v", err)
		} else {
			opts.Store = store
		}
	}

	host := ws.NewHost(completion, opts)
	srv := httpserver.New(host)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
