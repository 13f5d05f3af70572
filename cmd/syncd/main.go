// Command syncd runs the portal synchronization daemon: scheduled fleet
// syncs plus the admin HTTP API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ayzhao/gradesync/internal/crypto"
	"github.com/ayzhao/gradesync/internal/migrate"
	"github.com/ayzhao/gradesync/internal/portal"
	"github.com/ayzhao/gradesync/internal/repository/postgres"
	"github.com/ayzhao/gradesync/internal/server"
	"github.com/ayzhao/gradesync/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and starts the scheduler and
// admin HTTP server.
func main() {
	_ = godotenv.Load()

	// Flags; secrets fall back to the environment.
	addr := flag.String("addr", ":8080", "admin listen address")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
	credSecret := flag.String("cred-secret", os.Getenv("CRED_SECRET"), "credential encryption secret (required)")
	adminToken := flag.String("admin-token", os.Getenv("ADMIN_TOKEN"), "bearer token for admin endpoints")
	portalURL := flag.String("portal-url", portal.DefaultBaseURL, "portal login endpoint")
	portalTimeout := flag.Duration("portal-timeout", 30*time.Second, "portal request timeout")
	cronSpec := flag.String("cron", "0 1 * * *", "fleet sync schedule")
	staleAfter := flag.Duration("stale-after", service.DefaultStaleAfter, "staleness cutoff for fleet sync")
	concurrency := flag.Int("concurrency", service.DefaultConcurrency, "concurrent user syncs in a fleet run")
	syncAll := flag.Bool("sync-all", false, "run one fleet sync and exit")
	syncStudent := flag.String("sync-student", "", "sync one user from stored credentials and exit")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", *addr),
	)

	if *dsn == "" {
		logger.Fatal("missing PostgreSQL DSN (--dsn or DATABASE_URL)")
	}
	if *credSecret == "" {
		logger.Fatal("missing credential secret (--cred-secret or CRED_SECRET)")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, *dsn); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, *dsn)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	userRepo := postgres.NewUserRepo(db)
	courseRepo := postgres.NewCourseRepo(db)

	client := portal.NewClient(*portalURL, *portalTimeout)
	syncSvc := service.NewSyncService(userRepo, courseRepo, client, crypto.DeriveKey(*credSecret))
	fleetSvc := service.NewFleetService(userRepo, syncSvc, logger, *concurrency)

	// One-shot administrative modes.
	if *syncStudent != "" {
		u, err := userRepo.GetByStudentID(ctx, *syncStudent)
		if err != nil {
			logger.Fatal("lookup user", zap.String("student_id", *syncStudent), zap.Error(err))
		}
		report, err := syncSvc.SyncStored(ctx, u, true)
		if err != nil {
			logger.Fatal("sync", zap.String("student_id", *syncStudent), zap.Error(err))
		}
		logger.Info("sync complete",
			zap.String("student_id", report.StudentID),
			zap.Int("inserted", report.Inserted),
			zap.Int("updated", report.Updated),
			zap.Int("deleted", report.Deleted),
			zap.Int("mark_changes", len(report.MarkChanges)),
		)
		return
	}
	if *syncAll {
		fleetSvc.SyncAll(ctx, *staleAfter)
		return
	}

	// Scheduled fleet sync. Jobs run on a background context so a daemon
	// shutdown lets in-flight per-user syncs finish.
	cr := cron.New()
	if _, err := cr.AddFunc(*cronSpec, func() {
		fleetSvc.SyncAll(context.Background(), *staleAfter)
	}); err != nil {
		logger.Fatal("cron spec", zap.String("spec", *cronSpec), zap.Error(err))
	}
	cr.Start()
	logger.Info("fleet sync scheduled", zap.String("spec", *cronSpec))

	srv := &http.Server{
		Addr:    *addr,
		Handler: server.New(syncSvc, fleetSvc, *adminToken, *staleAfter, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		select {
		case <-cr.Stop().Done():
		case <-shutdownCtx.Done():
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
