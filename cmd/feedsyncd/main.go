// Command feedsyncd runs the feed session for one viewer and serves it to the UI.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"animelight/internal/bootstrap"
	"animelight/internal/config"
	"animelight/internal/observability"
	"animelight/internal/server"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.ConfigureLogging(cfg.LogLevel, cfg.IsProduction())

	flush, err := observability.InitErrorReporting(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		log.Printf("Error reporting disabled: %v", err)
	}
	defer flush()

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "feedsyncd",
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	res, err := rt.Session.Start(ctx)
	if err != nil {
		// The listener keeps retrying in the background; the feed still loads.
		log.Printf("Feed session started with errors: %v", err)
	}
	log.Printf("Feed session %s started (first launch: %v, restored %d posts)",
		rt.Session.ID, res.FirstLaunch, res.Restored)

	srv := server.NewServer(cfg, server.Deps{
		Session: rt.Session,
		Alerts:  rt.Alerts,
		Signal:  rt.Signal,
		Hub:     rt.Hub,
		Flags:   rt.Flags,
		Checks:  rt.Checks,
	})
	app := srv.NewApp()

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down feed daemon...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Session shutdown error: %v", err)
		}
		if err := rt.Close(); err != nil {
			log.Printf("Connection close error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	log.Printf("Bridge listening on port %s...", cfg.BridgePort)
	if err := app.Listen(":" + cfg.BridgePort); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	<-stopped
}
