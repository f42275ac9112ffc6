package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"

	"streamer-quiz-server/api"
	"streamer-quiz-server/config"
	"streamer-quiz-server/loghandler"
	"streamer-quiz-server/store"
	"streamer-quiz-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Print("No .env file found; using environment variables.")
	}

	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, slog.LevelInfo)))

	cfg := config.Load()
	slog.Info("configuration loaded", "tag", "main",
		"port", cfg.Port,
		"maxImageBytes", cfg.MaxImageBytes,
		"emptyMatchTTLSec", cfg.EmptyMatchTTLSec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New()

	hub := ws.NewHub(cfg, st)
	go hub.Run(ctx)

	apiHandler := api.NewHandler(cfg, st)

	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/ws", hub.ServeWS)
	router.GET("/healthz", apiHandler.Health)
	router.GET("/api/health", apiHandler.Health)
	router.GET("/api/matches/:id/qr", apiHandler.MatchQR)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("streamer quiz server listening", "tag", "main", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "tag", "main", "err", err)
	}
}
