package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relay/proxy/internal/access"
	"relay/proxy/internal/authn"
	"relay/proxy/internal/config"
	"relay/proxy/internal/metrics"
	"relay/proxy/internal/proxy"
	"relay/proxy/internal/store"
	"relay/proxy/internal/workos"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.WorkOSAPIKey == "" || cfg.WorkOSClientID == "" || cfg.WorkOSCookiePassword == "" {
		log.Fatalf("WorkOS credentials not configured (WORKOS_API_KEY, WORKOS_CLIENT_ID, WORKOS_COOKIE_PASSWORD)")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()
	dataStore := store.NewPostgresStore(db)

	proxyMetrics := metrics.New()

	var cache access.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for access-context cache")
		redisCache, err := access.NewRedisCache(cfg.RedisURL, access.DefaultTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
	} else {
		log.Printf("Using in-process access-context cache")
		cache = access.NewMemoryCache()
	}
	resolver := access.NewResolver(dataStore, cache, proxyMetrics)

	workosClient := workos.NewClient(cfg.WorkOSAPIKey, cfg.WorkOSClientID, cfg.IdentityTimeout)
	loadSession := func(sealed string) (authn.Session, error) {
		return workosClient.LoadSealedSession(sealed, cfg.WorkOSCookiePassword)
	}
	authenticator := authn.NewAuthenticator(loadSession, dataStore, resolver)

	forwarder, err := proxy.NewForwarder(cfg.ElectricURL, cfg.ElectricSourceID, cfg.ElectricSourceSecret, cfg.UpstreamTimeout, proxyMetrics)
	if err != nil {
		log.Fatalf("invalid upstream configuration: %v", err)
	}

	if cfg.OTLPEndpoint != "" {
		log.Printf("Telemetry collector endpoint configured: %s", cfg.OTLPEndpoint)
	}

	httpServer := proxy.NewHTTPServer(authenticator, forwarder, dataStore, proxyMetrics, cfg.CORSOrigin, cfg.DevMode)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Live-mode shape requests hold the response open; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Relay electric proxy listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
