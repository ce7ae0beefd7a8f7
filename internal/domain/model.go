package domain

import "time"

// Core domain models for the finding verification pipeline. API shapes live
// in the http adapter; keep these decoupled where helpful.

type Severity string

const (
    SeverityCritical Severity = "CRITICAL"
    SeverityHigh     Severity = "HIGH"
    SeverityMedium   Severity = "MEDIUM"
    SeverityLow      Severity = "LOW"
)

// Rank orders severities for review queues: lower rank is more severe.
func (s Severity) Rank() int {
    switch s {
    case SeverityCritical:
        return 0
    case SeverityHigh:
        return 1
    case SeverityMedium:
        return 2
    case SeverityLow:
        return 3
    }
    return 4
}

func (s Severity) Valid() bool { return s.Rank() < 4 }

type ConfidenceLevel string

const (
    ConfidenceHigh   ConfidenceLevel = "HIGH"
    ConfidenceMedium ConfidenceLevel = "MEDIUM"
    ConfidenceLow    ConfidenceLevel = "LOW"
)

// LevelForScore derives the confidence level from a score. The level is never
// stored independently of the score that produced it.
func LevelForScore(score float64) ConfidenceLevel {
    switch {
    case score >= 0.8:
        return ConfidenceHigh
    case score >= 0.5:
        return ConfidenceMedium
    default:
        return ConfidenceLow
    }
}

type Decision string

const (
    DecisionApproved Decision = "APPROVED"
    DecisionRejected Decision = "REJECTED"
    DecisionModified Decision = "MODIFIED"
)

func (d Decision) Valid() bool {
    return d == DecisionApproved || d == DecisionRejected || d == DecisionModified
}

type Priority string

const (
    PriorityStandard Priority = "STANDARD"
    PriorityUrgent   Priority = "URGENT"
    PriorityCritical Priority = "CRITICAL"
)

// ConfidenceFactors is the structured breakdown behind a confidence score.
type ConfidenceFactors struct {
    PatternMatch   float64 `json:"patternMatch"`
    ContextClarity float64 `json:"contextClarity"`
    CriteriaBonus  float64 `json:"criteriaBonus"`
    VisualBonus    float64 `json:"visualBonus"`
    RuleBased      float64 `json:"ruleBased"`
    Oracle         float64 `json:"oracle"`
}

// ConfidenceResult is the scorer output for a single finding.
type ConfidenceResult struct {
    Score         float64
    Level         ConfidenceLevel
    Factors       ConfidenceFactors
    Reasoning     string
    Uncertainties []string
}

// Finding is one detected, not yet human-verified candidate violation.
// Identity and scanner-provided fields are immutable after ingestion;
// scoring fields are written once by the scorer and decision fields at most
// once through the compare-and-set path in the repositories.
type Finding struct {
    ID               string
    ScanID           string
    Criteria         []string
    Severity         Severity
    ElementSignature string
    Context          string
    ScreenshotRef    *string

    ConfidenceScore   *float64
    ConfidenceLevel   ConfidenceLevel
    ConfidenceFactors *ConfidenceFactors
    AIRecommendation  string
    Uncertainties     []string

    FinalDecision *Decision
    ReviewerID    *string
    ReviewedAt    *time.Time
    Notes         string

    CreatedAt time.Time
}

func (f *Finding) Scored() bool  { return f.ConfidenceScore != nil }
func (f *Finding) Decided() bool { return f.FinalDecision != nil }

type ScanState string

const (
    ScanPending        ScanState = "PENDING"
    ScanCrawling       ScanState = "CRAWLING"
    ScanScoring        ScanState = "SCORING"
    ScanReadyForReview ScanState = "READY_FOR_REVIEW"
    ScanInReview       ScanState = "IN_REVIEW"
    ScanCompleted      ScanState = "COMPLETED"
    ScanFailed         ScanState = "FAILED"
)

func (s ScanState) Terminal() bool { return s == ScanCompleted || s == ScanFailed }

// Scan is one crawl-and-verify unit of work. It is created on submission,
// mutated only through the state machine and never deleted; failure is
// terminal and a new Scan must be submitted for the same target.
type Scan struct {
    ID                string
    TargetURL         string
    RegistrableDomain string
    Priority          Priority
    State             ScanState
    FailureReason     *string

    CrawlStartedAt   *time.Time
    CrawlFinishedAt  *time.Time
    ReviewStartedAt  *time.Time
    ReviewFinishedAt *time.Time

    CreatedAt time.Time
}

type AssignmentStatus string

const (
    AssignmentOpen   AssignmentStatus = "OPEN"
    AssignmentClosed AssignmentStatus = "CLOSED"
)

// ReviewAssignment ties a consultant to a scan under review.
type ReviewAssignment struct {
    ID           string
    ScanID       string
    ConsultantID string
    Status       AssignmentStatus
    AssignedAt   time.Time
    ClosedAt     *time.Time
}

// AuditEntry is one append-only record of a score or decision write.
type AuditEntry struct {
    ID         string
    ScanID     string
    EntityType string
    EntityID   string
    Action     string
    Actor      string
    Before     []byte
    After      []byte
    At         time.Time
}

const (
    AuditEntityFinding = "finding"
    AuditEntityScan    = "scan"

    AuditActionScored  = "scored"
    AuditActionDecided = "decided"
    AuditActionFailed  = "failed"
)
