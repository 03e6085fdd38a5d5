package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storekit/identity/internal/auth"
	"github.com/storekit/identity/internal/httpapi"
	"github.com/storekit/identity/internal/obs"
	"github.com/storekit/identity/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("IDENTITY_PG_DSN")
	if dsn == "" {
		log.Fatal("IDENTITY_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	codecOpts := []auth.CodecOption{}
	if secret := os.Getenv("IDENTITY_AUTH_SECRET"); secret != "" {
		codecOpts = append(codecOpts, auth.WithSecret(secret))
	}
	if ttl := os.Getenv("IDENTITY_TOKEN_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatalf("parse IDENTITY_TOKEN_TTL: %v", err)
		}
		codecOpts = append(codecOpts, auth.WithTokenTTL(d))
	}
	codec, err := auth.NewCodec(codecOpts...)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	authSvc, err := auth.NewService(store, codec)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	rbacSvc, err := auth.NewRBACService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}

	// Make sure USER/ADMIN and the builtin permissions exist before
	// the first request arrives.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := rbacSvc.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("ensure builtin roles: %v", err)
	}
	cancel()

	api := httpapi.New(authSvc, rbacSvc, codec, httpapi.ReadyProbe{DB: store.DB()}, version)

	handler := api.Handler()
	if os.Getenv("IDENTITY_RATE_LIMIT_DISABLED") == "" {
		handler = httpapi.RateLimit(handler, 20, 10)
	}

	addr := os.Getenv("IDENTITY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting identity-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
