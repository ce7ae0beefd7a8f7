package httpadapter

import (
    "encoding/json"
    "net/http"
    "time"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
)

type scanJSON struct {
    ID                string           `json:"id"`
    TargetURL         string           `json:"targetUrl"`
    RegistrableDomain string           `json:"registrableDomain"`
    Priority          domain.Priority  `json:"priority"`
    State             domain.ScanState `json:"state"`
    FailureReason     *string          `json:"failureReason,omitempty"`
    CrawlStartedAt    *time.Time       `json:"crawlStartedAt,omitempty"`
    CrawlFinishedAt   *time.Time       `json:"crawlFinishedAt,omitempty"`
    ReviewStartedAt   *time.Time       `json:"reviewStartedAt,omitempty"`
    ReviewFinishedAt  *time.Time       `json:"reviewFinishedAt,omitempty"`
    CreatedAt         time.Time        `json:"createdAt"`
}

func scanView(s *domain.Scan) scanJSON {
    return scanJSON{
        ID:                s.ID,
        TargetURL:         s.TargetURL,
        RegistrableDomain: s.RegistrableDomain,
        Priority:          s.Priority,
        State:             s.State,
        FailureReason:     s.FailureReason,
        CrawlStartedAt:    s.CrawlStartedAt,
        CrawlFinishedAt:   s.CrawlFinishedAt,
        ReviewStartedAt:   s.ReviewStartedAt,
        ReviewFinishedAt:  s.ReviewFinishedAt,
        CreatedAt:         s.CreatedAt,
    }
}

type findingJSON struct {
    ID               string                    `json:"id"`
    ScanID           string                    `json:"scanId"`
    Criteria         []string                  `json:"criteria"`
    Severity         domain.Severity           `json:"severity"`
    ElementSignature string                    `json:"elementSignature"`
    Context          string                    `json:"context"`
    ScreenshotRef    *string                   `json:"screenshotRef,omitempty"`
    ConfidenceScore  *float64                  `json:"confidenceScore,omitempty"`
    ConfidenceLevel  domain.ConfidenceLevel    `json:"confidenceLevel,omitempty"`
    Factors          *domain.ConfidenceFactors `json:"confidenceFactors,omitempty"`
    AIRecommendation string                    `json:"aiRecommendation,omitempty"`
    Uncertainties    []string                  `json:"uncertainties,omitempty"`
    FinalDecision    *domain.Decision          `json:"finalDecision,omitempty"`
    ReviewerID       *string                   `json:"reviewerId,omitempty"`
    ReviewedAt       *time.Time                `json:"reviewedAt,omitempty"`
    Notes            string                    `json:"notes,omitempty"`
}

func findingView(f *domain.Finding) findingJSON {
    return findingJSON{
        ID:               f.ID,
        ScanID:           f.ScanID,
        Criteria:         f.Criteria,
        Severity:         f.Severity,
        ElementSignature: f.ElementSignature,
        Context:          f.Context,
        ScreenshotRef:    f.ScreenshotRef,
        ConfidenceScore:  f.ConfidenceScore,
        ConfidenceLevel:  f.ConfidenceLevel,
        Factors:          f.ConfidenceFactors,
        AIRecommendation: f.AIRecommendation,
        Uncertainties:    f.Uncertainties,
        FinalDecision:    f.FinalDecision,
        ReviewerID:       f.ReviewerID,
        ReviewedAt:       f.ReviewedAt,
        Notes:            f.Notes,
    }
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
    status := http.StatusInternalServerError
    switch {
    case domain.IsValidation(err):
        status = http.StatusBadRequest
    case domain.IsNotFound(err):
        status = http.StatusNotFound
    case domain.IsConflict(err):
        status = http.StatusConflict
    case domain.IsIllegalTransition(err):
        status = http.StatusUnprocessableEntity
    }
    writeJSON(w, status, map[string]string{"error": err.Error()})
}
