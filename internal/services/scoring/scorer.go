package scoring

import (
    "context"
    "fmt"
    "log"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

// Merge weights and rule-component shares. Each rule factor is clipped to
// its share; the merged score stays in [0,1] by construction.
const (
    ruleWeight   = 0.6
    oracleWeight = 0.4

    patternShare = 0.4
    clarityShare = 0.3

    multiCriteriaBonus  = 0.15
    singleCriteriaBonus = 0.05
    screenshotBonus     = 0.15
    noScreenshotBonus   = 0.05

    fallbackOracleConfidence = 0.5
)

const (
    uncertaintyNovelPattern      = "novel pattern"
    uncertaintyOracleUnavailable = "AI analysis unavailable"
)

const contextExcerptLimit = 2000

// Scorer computes the hybrid confidence score for findings. The oracle is
// the only nondeterministic input; its response is cached per finding so a
// repeated scoring request never re-invokes the call.
type Scorer struct {
    findings ports.FindingRepository
    audit    ports.AuditRepository
    oracle   ports.Oracle
    patterns *PatternTable
    timeout  time.Duration

    mu    sync.Mutex
    cache map[string]ports.OracleResponse
}

func New(findings ports.FindingRepository, audit ports.AuditRepository, oracle ports.Oracle, patterns *PatternTable, timeout time.Duration) *Scorer {
    if patterns == nil {
        patterns = NewPatternTable()
    }
    return &Scorer{
        findings: findings,
        audit:    audit,
        oracle:   oracle,
        patterns: patterns,
        timeout:  timeout,
        cache:    make(map[string]ports.OracleResponse),
    }
}

// Score computes the confidence result for a finding without persisting it.
// The returned recommendation is the oracle's analysis text, empty when the
// oracle was unavailable.
func (s *Scorer) Score(ctx context.Context, f *domain.Finding) (domain.ConfidenceResult, string, error) {
    if f == nil {
        return domain.ConfidenceResult{}, "", &domain.ValidationError{Field: "finding", Reason: "nil"}
    }
    if err := ctx.Err(); err != nil {
        return domain.ConfidenceResult{}, "", err
    }

    ruleScore, factors, uncertainties := s.ruleBased(f)

    resp, available := s.consultOracle(ctx, f)
    if !available && ctx.Err() != nil {
        // The pipeline itself was cancelled, not the oracle call; this is
        // not an unavailability fallback.
        return domain.ConfidenceResult{}, "", ctx.Err()
    }
    oracleScore := fallbackOracleConfidence
    recommendation := ""
    if available {
        oracleScore = resp.Confidence
        recommendation = resp.Analysis
        uncertainties = append(uncertainties, resp.Concerns...)
    } else {
        uncertainties = append(uncertainties, uncertaintyOracleUnavailable)
    }

    factors.RuleBased = ruleScore
    factors.Oracle = oracleScore

    score := ruleWeight*ruleScore + oracleWeight*oracleScore
    level := domain.LevelForScore(score)

    reasoning := fmt.Sprintf("rule-based %.3f (pattern %.3f, clarity %.3f), oracle %.3f",
        ruleScore, factors.PatternMatch, factors.ContextClarity, oracleScore)

    return domain.ConfidenceResult{
        Score:         score,
        Level:         level,
        Factors:       factors,
        Reasoning:     reasoning,
        Uncertainties: uncertainties,
    }, recommendation, nil
}

// ScoreAndStore scores one finding, persists the result and appends the
// mandatory audit entry.
func (s *Scorer) ScoreAndStore(ctx context.Context, f *domain.Finding) (domain.ConfidenceResult, error) {
    res, recommendation, err := s.Score(ctx, f)
    if err != nil {
        return domain.ConfidenceResult{}, err
    }
    before := domain.SnapshotFinding(f)
    applied, err := s.findings.StoreScore(ctx, f.ID, res, recommendation)
    if err != nil {
        return domain.ConfidenceResult{}, fmt.Errorf("store score for %s: %w", f.ID, err)
    }
    if !applied {
        // Re-delivered job hit an already-scored finding; nothing was
        // written, so nothing is audited.
        return res, nil
    }
    scored := *f
    scored.ConfidenceScore = &res.Score
    scored.ConfidenceLevel = res.Level
    entry := &domain.AuditEntry{
        ID:         uuid.NewString(),
        ScanID:     f.ScanID,
        EntityType: domain.AuditEntityFinding,
        EntityID:   f.ID,
        Action:     domain.AuditActionScored,
        Actor:      "confidence-scorer",
        Before:     before,
        After:      domain.SnapshotFinding(&scored),
        At:         time.Now().UTC(),
    }
    if err := s.audit.AppendAudit(ctx, entry); err != nil {
        return domain.ConfidenceResult{}, fmt.Errorf("audit score for %s: %w", f.ID, err)
    }
    return res, nil
}

func (s *Scorer) ruleBased(f *domain.Finding) (float64, domain.ConfidenceFactors, []string) {
    var factors domain.ConfidenceFactors
    var uncertainties []string

    elementClass := ElementClass(f.ElementSignature)
    if acc, ok := s.patterns.Accuracy(f.Criteria, elementClass); ok {
        factors.PatternMatch = patternShare * acc
    } else {
        uncertainties = append(uncertainties, uncertaintyNovelPattern)
    }

    factors.ContextClarity = clarityShare * clarityScore(f.Context)

    if len(f.Criteria) > 1 {
        factors.CriteriaBonus = multiCriteriaBonus
    } else {
        factors.CriteriaBonus = singleCriteriaBonus
    }

    if f.ScreenshotRef != nil && *f.ScreenshotRef != "" {
        factors.VisualBonus = screenshotBonus
    } else {
        factors.VisualBonus = noScreenshotBonus
    }

    score := factors.PatternMatch + factors.ContextClarity + factors.CriteriaBonus + factors.VisualBonus
    if score > 1 {
        score = 1
    }
    return score, factors, uncertainties
}

// consultOracle returns the oracle response for a finding, served from the
// per-finding cache when present. Any error, timeout or out-of-range
// confidence degrades to unavailable; the pipeline never blocks on the
// oracle.
func (s *Scorer) consultOracle(ctx context.Context, f *domain.Finding) (ports.OracleResponse, bool) {
    if s.oracle == nil {
        return ports.OracleResponse{}, false
    }
    s.mu.Lock()
    if resp, ok := s.cache[f.ID]; ok {
        s.mu.Unlock()
        return resp, true
    }
    s.mu.Unlock()

    callCtx := ctx
    if s.timeout > 0 {
        var cancel context.CancelFunc
        callCtx, cancel = context.WithTimeout(ctx, s.timeout)
        defer cancel()
    }

    excerpt := f.Context
    if len(excerpt) > contextExcerptLimit {
        excerpt = excerpt[:contextExcerptLimit]
    }
    resp, err := s.oracle.Analyze(callCtx, ports.OracleRequest{
        FindingID:        f.ID,
        Criteria:         f.Criteria,
        Severity:         f.Severity,
        ElementSignature: f.ElementSignature,
        ContextExcerpt:   excerpt,
    })
    if err != nil {
        log.Printf("scoring: %v", &domain.OracleTimeoutError{FindingID: f.ID, Err: err})
        return ports.OracleResponse{}, false
    }
    if resp.Confidence < 0 || resp.Confidence > 1 {
        log.Printf("scoring: %v", &domain.OracleTimeoutError{
            FindingID: f.ID,
            Err:       fmt.Errorf("confidence %v out of range", resp.Confidence),
        })
        return ports.OracleResponse{}, false
    }
    resp.Analysis = strings.TrimSpace(resp.Analysis)

    s.mu.Lock()
    s.cache[f.ID] = resp
    s.mu.Unlock()
    return resp, true
}
