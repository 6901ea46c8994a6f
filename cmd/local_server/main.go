// Command local_server serves the callable functions over plain HTTP for
// local development. Callers authenticate with an HS256 bearer token signed
// with LOCAL_SERVER_JWT_SECRET.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"blood-donation-functions/internal/app"
	"blood-donation-functions/internal/callable"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize local server: %v", err)
	}
	logger := application.Logger
	defer logger.Sync()

	var verifier callable.TokenVerifier
	if secret := application.Config.LocalServer.JWTSecret; secret != "" {
		verifier = callable.HS256Verifier{Secret: []byte(secret)}
	} else {
		logger.Warn("LOCAL_SERVER_JWT_SECRET not set; all calls are unauthenticated")
	}

	functions := application.Functions()
	server := &http.Server{
		Addr:              ":" + application.Config.LocalServer.Port,
		Handler:           callable.NewRouter(functions, verifier, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Local server listening", zap.String("addr", server.Addr), zap.Int("functions", len(functions)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Local server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("Local server stopped")
}
