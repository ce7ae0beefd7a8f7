package main

import (
    "context"
    "fmt"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/go-chi/chi/v5"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/adapters/crawler"
    httpadapter "github.com/aaj441/wcag-ai-platform-sub007/internal/adapters/http"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/adapters/memory"
    pg "github.com/aaj441/wcag-ai-platform-sub007/internal/adapters/postgres"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/config"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/oracle"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/report"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/review"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scans"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scanstate"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scoring"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/workers/scanrunner"
)

// repositories is the bundle every storage adapter satisfies.
type repositories interface {
    ports.ScanRepository
    ports.FindingRepository
    ports.AssignmentRepository
    ports.AuditRepository
    ports.JobRepository
}

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Printf("warning: %v", err)
    }

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    var repo repositories
    if cfg.DatabaseURL != "" {
        db, err := pg.Connect(ctx, cfg.DatabaseURL)
        if err != nil {
            log.Fatalf("db connect error: %v", err)
        }
        defer db.Close()
        if err := db.Migrate(ctx); err != nil {
            log.Fatalf("db migrate error: %v", err)
        }
        repo = db
    } else {
        log.Printf("running with in-memory store; state is lost on restart")
        repo = memory.New()
    }

    var oracleClient ports.Oracle
    if cfg.OracleAPIKey != "" {
        oracleClient = oracle.NewGemini(cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleBase)
    } else {
        log.Printf("warning: ORACLE_API_KEY not set; scoring falls back to rule-based plus neutral oracle")
    }

    machine := scanstate.New(repo, repo, repo, repo)
    scorer := scoring.New(repo, repo, oracleClient, scoring.NewPatternTable(), cfg.OracleTimeout)
    scanSvc := scans.New(repo, repo)
    reviews := review.New(repo, repo, repo, repo, machine, cfg.ReviewShowLowConfidence)
    reports := report.New(repo, repo)

    processor := scanrunner.NewProcessor(repo, repo, repo, crawler.Sample(), scorer, machine)
    processor.ChunkSize = cfg.ScoringChunkSize
    processor.ChunkDelay = cfg.ScoringChunkDelay
    processor.Retries = cfg.ScoringRetries

    srv := httpadapter.New(scanSvc, reviews, reports, machine, repo, repo, processor, processor)
    r := chi.NewRouter()
    r.Mount("/", srv.Routes())

    if cfg.PipelineWorkers > 0 {
        go scanrunner.Run(ctx, repo, processor, cfg.PipelineWorkers, 500*time.Millisecond)
        log.Printf("pipeline workers started: %d", cfg.PipelineWorkers)
    }

    errCh := make(chan error, 1)
    go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
    log.Printf("listening on %s", cfg.ListenAddr)

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    select {
    case sig := <-sigCh:
        log.Printf("shutting down on %s", sig)
        cancel()
        time.Sleep(300 * time.Millisecond)
    case err := <-errCh:
        log.Fatal(fmt.Errorf("server error: %w", err))
    }
}
