package config

import (
    "fmt"
    "os"
    "time"
)

type Config struct {
    Env         string
    ListenAddr  string
    DatabaseURL string

    PipelineWorkers int

    // Scoring backpressure: chunked oracle calls with a mandatory delay
    // between chunks so the oracle cannot be starved or rate-ban us.
    ScoringChunkSize  int
    ScoringChunkDelay time.Duration
    ScoringRetries    int

    OracleAPIKey  string
    OracleModel   string
    OracleBase    string
    OracleTimeout time.Duration

    // Whether LOW-confidence findings appear in the default review queue.
    // Report inclusion is governed purely by the APPROVED decision.
    ReviewShowLowConfidence bool
}

func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        var out int
        _, err := fmt.Sscanf(v, "%d", &out)
        if err == nil { return out }
    }
    return def
}

func getenvBool(key string, def bool) bool {
    switch os.Getenv(key) {
    case "1", "true", "TRUE", "yes":
        return true
    case "0", "false", "FALSE", "no":
        return false
    }
    return def
}

func Load() (Config, error) {
    cfg := Config{
        Env:         getenv("APP_ENV", "development"),
        ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
        DatabaseURL: os.Getenv("DATABASE_URL"),

        PipelineWorkers: getenvInt("PIPELINE_WORKERS", 2),

        ScoringChunkSize:  getenvInt("SCORING_CHUNK_SIZE", 10),
        ScoringChunkDelay: time.Duration(getenvInt("SCORING_CHUNK_DELAY_MS", 1000)) * time.Millisecond,
        ScoringRetries:    getenvInt("SCORING_RETRIES", 2),

        OracleAPIKey:  os.Getenv("ORACLE_API_KEY"),
        OracleModel:   getenv("ORACLE_MODEL", "gemini-2.5-flash"),
        OracleBase:    os.Getenv("ORACLE_API_BASE"),
        OracleTimeout: time.Duration(getenvInt("ORACLE_TIMEOUT_MS", 15000)) * time.Millisecond,

        ReviewShowLowConfidence: getenvBool("REVIEW_SHOW_LOW_CONFIDENCE", true),
    }
    if cfg.ScoringChunkSize < 1 { cfg.ScoringChunkSize = 1 }
    if cfg.DatabaseURL == "" {
        // Not fatal; main falls back to the in-memory store for local runs.
        return cfg, fmt.Errorf("DATABASE_URL not set")
    }
    return cfg, nil
}
