package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"tourbook-chat/internal/bootstrap"
	"tourbook-chat/internal/config"
	"tourbook-chat/internal/server"
	"tourbook-chat/internal/tracer"
	"tourbook-chat/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer, err := tracer.InitTracer(context.Background(), cfg.Tracing, cfg.App.Environment)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}
	defer shutdownTracer(context.Background())

	// 3. Initialize Database
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.Database.Debug)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 4. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	// 5. Start Background Services
	if err := container.Start(gctx); err != nil {
		log.Panicf("Unable to start background services: %v", err)
	}

	// 6. Initialize Server
	srv := server.New(cfg, container)

	// 7. Run Server until a signal arrives or listening fails
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		return srv.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
