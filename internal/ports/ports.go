package ports

import (
    "context"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
)

// RawFinding is what the crawler hands the pipeline before ingestion
// assigns identity.
type RawFinding struct {
    Criteria         []string
    Severity         domain.Severity
    ElementSignature string
    Context          string
    ScreenshotRef    *string
}

// Crawler produces raw findings for a target. The real crawler lives outside
// this service; adapters implement this port.
type Crawler interface {
    Crawl(ctx context.Context, targetURL string) ([]RawFinding, error)
}

type OracleRequest struct {
    FindingID        string
    Criteria         []string
    Severity         domain.Severity
    ElementSignature string
    ContextExcerpt   string
}

type OracleResponse struct {
    IsViolation bool     `json:"isViolation"`
    Confidence  float64  `json:"confidence"`
    Analysis    string   `json:"analysis"`
    Concerns    []string `json:"concerns"`
}

// Oracle is the external AI analysis call. Implementations must respect ctx
// deadlines; the scorer treats any error or out-of-range confidence as
// unavailable and falls back.
type Oracle interface {
    Analyze(ctx context.Context, req OracleRequest) (OracleResponse, error)
}
