package ports

import (
    "context"
    "time"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
)

// ScanRepository manages scan records.
type ScanRepository interface {
    CreateScan(ctx context.Context, scan *domain.Scan) error
    GetScan(ctx context.Context, id string) (*domain.Scan, error)
    // TransitionScan atomically moves a scan from one state to another,
    // stamping phase timestamps for the target state. Returns false without
    // error when the scan exists but is no longer in the expected state.
    TransitionScan(ctx context.Context, id string, from, to domain.ScanState, reason *string) (bool, error)
}

// FindingRepository stores findings and enforces the write-once semantics on
// score and decision fields.
type FindingRepository interface {
    InsertFindings(ctx context.Context, findings []*domain.Finding) error
    GetFinding(ctx context.Context, id string) (*domain.Finding, error)
    ListFindings(ctx context.Context, scanID string) ([]*domain.Finding, error)
    // StoreScore writes the scoring fields for a finding. Scoring happens
    // exactly once per finding per scan; a retried write of an already
    // scored finding is a no-op reported as applied=false so callers do
    // not audit a write that never happened.
    StoreScore(ctx context.Context, findingID string, res domain.ConfidenceResult, recommendation string) (applied bool, err error)
    // DecideFinding is the per-finding compare-and-set: the decision fields
    // are written only if finalDecision is currently null. When the set was
    // not applied the current row is returned so callers can distinguish an
    // idempotent resubmission from a conflict.
    DecideFinding(ctx context.Context, id string, reviewerID string, decision domain.Decision, notes string, at time.Time) (applied bool, current *domain.Finding, err error)
    CountUndecided(ctx context.Context, scanID string) (int, error)
    CountUnscored(ctx context.Context, scanID string) (int, error)
}

// AssignmentRepository manages review assignments.
type AssignmentRepository interface {
    CreateAssignment(ctx context.Context, a *domain.ReviewAssignment) error
    ListOpenAssignments(ctx context.Context, scanID string) ([]*domain.ReviewAssignment, error)
    CloseAssignments(ctx context.Context, scanID string, at time.Time) error
}

// AuditRepository is append-only. One entry per score write and one per
// decision write is a hard invariant of the pipeline.
type AuditRepository interface {
    AppendAudit(ctx context.Context, e *domain.AuditEntry) error
    ListAuditByScan(ctx context.Context, scanID string) ([]*domain.AuditEntry, error)
}
