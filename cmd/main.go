// status-service
//
// Participant status transition engine for the multi-employer hiring
// pipeline. Exposes the Coordinator over:
//   - REST (net/http) for the gateway: transition, bulk engage, hide, history
//   - gRPC ParticipantStatusService for internal callers
//
// Publishes EVENT_PARTICIPANT_STATUS_CHANGED after each committed transition
// and CMD_ACKNOWLEDGEMENT_REMINDER from the reminder cron.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"workforce/status-service/internal/config"
	"workforce/status-service/internal/db"
	"workforce/status-service/internal/events"
	"workforce/status-service/internal/grpcserver"
	"workforce/status-service/internal/pipeline"
	"workforce/status-service/internal/reminder"
	"workforce/status-service/internal/storage/postgres"
	"workforce/status-service/internal/storage/sqlite"
	"workforce/status-service/internal/telemetry"
)

const (
	serviceName = "status-service"
	version     = "1.0.0"
)

// storeBackend is a pipeline.Store that also lists reminders.
type storeBackend interface {
	pipeline.Store
	reminder.Lister
}

// eventSink publishes both status changes and reminder commands.
type eventSink interface {
	pipeline.Publisher
	reminder.Notifier
}

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[status-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Tracing ─────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, version, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("[status-service] Telemetry: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("[status-service] Telemetry shutdown: %v", err)
		}
	}()

	// ── Storage ─────────────────────────────────────────────────────────────
	var store storeBackend
	if cfg.UsePostgres() {
		log.Println("[status-service] Connecting to PostgreSQL…")
		pool, err := db.OpenPostgres(ctx, cfg.DatabaseURL, db.PoolOptions{})
		if err != nil {
			log.Fatalf("[status-service] PostgreSQL: %v", err)
		}
		defer pool.Close()
		pg := postgres.NewStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("[status-service] PostgreSQL migrate: %v", err)
		}
		store = pg
		log.Println("[status-service] PostgreSQL connected ✓")
	} else {
		log.Printf("[status-service] Opening SQLite store at %s…", cfg.SQLitePath)
		sq, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[status-service] SQLite: %v", err)
		}
		defer sq.Close()
		store = sq
		log.Println("[status-service] SQLite ready ✓")
	}

	// ── Events ──────────────────────────────────────────────────────────────
	var sink eventSink = events.NewLogPublisher(nil)
	if cfg.RedisURL != "" {
		log.Println("[status-service] Connecting to Redis…")
		rdb, err := db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[status-service] Redis: %v", err)
		}
		defer rdb.Close()
		sink = events.NewRedisPublisher(rdb)
		log.Println("[status-service] Redis connected ✓")
	} else {
		log.Println("[status-service] REDIS_URL not set, events go to the log")
	}

	coord := pipeline.NewCoordinator(store, sink,
		pipeline.WithBulkConcurrency(cfg.BulkEngageConcurrency),
	)

	// ── Reminder cron ───────────────────────────────────────────────────────
	sched := reminder.New(store, sink, cfg.AckReminderIntervalHours, cfg.AckReminderMinAgeHours)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[status-service] Scheduler: %v", err)
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	pipeline.NewHandler(coord).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[status-service] v%s HTTP listening on :%s", version, cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[status-service] HTTP server error: %v", err)
		}
	}()

	// ── gRPC server ─────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("[status-service] gRPC listen: %v", err)
	}
	grpcSrv := grpc.NewServer()
	grpcserver.Register(grpcSrv, grpcserver.NewServer(coord))
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	go func() {
		log.Printf("[status-service] gRPC listening on :%s", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("[status-service] gRPC server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[status-service] Shutting down…")
	healthSrv.Shutdown()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[status-service] HTTP shutdown error: %v", err)
	}
	grpcSrv.GracefulStop()
	cancel()
	log.Println("[status-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": serviceName,
		"version": version,
	})
}
