package review

import (
    "context"
    "log"
    "sort"
    "time"

    "github.com/google/uuid"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scanstate"
)

// Coordinator routes scored findings to consultants and enforces the
// at-most-one-decision guarantee. All decision writes go through the
// repository compare-and-set; there is no cross-finding locking.
type Coordinator struct {
    scans       ports.ScanRepository
    findings    ports.FindingRepository
    assignments ports.AssignmentRepository
    audit       ports.AuditRepository
    machine     *scanstate.Machine

    // Policy flag: whether LOW-confidence findings surface in the default
    // queue. Independent of report inclusion, which follows approval only.
    showLowConfidence bool
}

func New(scans ports.ScanRepository, findings ports.FindingRepository, assignments ports.AssignmentRepository, audit ports.AuditRepository, machine *scanstate.Machine, showLowConfidence bool) *Coordinator {
    return &Coordinator{
        scans:             scans,
        findings:          findings,
        assignments:       assignments,
        audit:             audit,
        machine:           machine,
        showLowConfidence: showLowConfidence,
    }
}

// ListPending returns the undecided, scored findings of a scan ordered by
// confidence score descending then severity ascending, front-loading the
// items a consultant can clear fastest.
func (c *Coordinator) ListPending(ctx context.Context, scanID string) ([]*domain.Finding, error) {
    if _, err := c.scans.GetScan(ctx, scanID); err != nil {
        return nil, err
    }
    all, err := c.findings.ListFindings(ctx, scanID)
    if err != nil {
        return nil, err
    }
    pending := make([]*domain.Finding, 0, len(all))
    for _, f := range all {
        if !f.Scored() || f.Decided() {
            continue
        }
        if !c.showLowConfidence && f.ConfidenceLevel == domain.ConfidenceLow {
            continue
        }
        pending = append(pending, f)
    }
    sort.SliceStable(pending, func(i, j int) bool {
        si, sj := *pending[i].ConfidenceScore, *pending[j].ConfidenceScore
        if si != sj {
            return si > sj
        }
        return pending[i].Severity.Rank() < pending[j].Severity.Rank()
    })
    return pending, nil
}

// ClaimAssignment opens a review assignment for a consultant. The first
// assignment on a scan moves it into IN_REVIEW.
func (c *Coordinator) ClaimAssignment(ctx context.Context, scanID, consultantID string) (*domain.ReviewAssignment, error) {
    if consultantID == "" {
        return nil, &domain.ValidationError{Field: "consultantId", Reason: "required"}
    }
    scan, err := c.scans.GetScan(ctx, scanID)
    if err != nil {
        return nil, err
    }
    if scan.State != domain.ScanReadyForReview && scan.State != domain.ScanInReview {
        return nil, &domain.IllegalTransitionError{ScanID: scanID, From: scan.State, To: domain.ScanInReview}
    }
    a, err := c.ensureAssignment(ctx, scan, consultantID)
    if err != nil {
        return nil, err
    }
    return a, nil
}

func (c *Coordinator) ensureAssignment(ctx context.Context, scan *domain.Scan, consultantID string) (*domain.ReviewAssignment, error) {
    open, err := c.assignments.ListOpenAssignments(ctx, scan.ID)
    if err != nil {
        return nil, err
    }
    for _, a := range open {
        if a.ConsultantID == consultantID {
            return a, nil
        }
    }
    a := &domain.ReviewAssignment{
        ID:           uuid.NewString(),
        ScanID:       scan.ID,
        ConsultantID: consultantID,
        Status:       domain.AssignmentOpen,
        AssignedAt:   time.Now().UTC(),
    }
    if err := c.assignments.CreateAssignment(ctx, a); err != nil {
        return nil, err
    }
    if scan.State == domain.ScanReadyForReview {
        if err := c.machine.OpenReview(ctx, scan.ID); err != nil {
            // Another consultant may have opened review first.
            if !domain.IsIllegalTransition(err) {
                return nil, err
            }
        }
    }
    return a, nil
}

// SubmitDecision records a consultant's final decision on a finding.
// Exactly one non-idempotent write ever succeeds per finding; a loser in a
// race gets a ConflictError and must re-fetch. Resubmitting the identical
// decision by the identical reviewer is an idempotent success.
func (c *Coordinator) SubmitDecision(ctx context.Context, findingID, consultantID string, decision domain.Decision, notes string) (*domain.Finding, error) {
    if consultantID == "" {
        return nil, &domain.ValidationError{Field: "consultantId", Reason: "required"}
    }
    if !decision.Valid() {
        return nil, &domain.ValidationError{Field: "decision", Reason: "must be APPROVED, REJECTED or MODIFIED"}
    }
    f, err := c.findings.GetFinding(ctx, findingID)
    if err != nil {
        return nil, err
    }
    scan, err := c.scans.GetScan(ctx, f.ScanID)
    if err != nil {
        return nil, err
    }
    switch scan.State {
    case domain.ScanInReview:
    case domain.ScanCompleted:
        // A consultant retrying a timed-out submission may race the scan's
        // completion. The CAS path below sorts exact resubmission from
        // conflict; the decision guarantee is per finding, not per scan.
    case domain.ScanReadyForReview:
        // Deciding straight off the queue counts as claiming.
        if _, err := c.ensureAssignment(ctx, scan, consultantID); err != nil {
            return nil, err
        }
    default:
        return nil, &domain.IllegalTransitionError{ScanID: scan.ID, From: scan.State, To: domain.ScanCompleted}
    }

    now := time.Now().UTC()
    applied, current, err := c.findings.DecideFinding(ctx, findingID, consultantID, decision, notes, now)
    if err != nil {
        return nil, err
    }
    if !applied {
        if current != nil && current.FinalDecision != nil &&
            *current.FinalDecision == decision &&
            current.ReviewerID != nil && *current.ReviewerID == consultantID &&
            current.Notes == notes {
            return current, nil
        }
        conflict := &domain.ConflictError{FindingID: findingID}
        if current != nil && current.FinalDecision != nil {
            conflict.Decision = *current.FinalDecision
            if current.ReviewerID != nil {
                conflict.ReviewerID = *current.ReviewerID
            }
        }
        return nil, conflict
    }

    entry := &domain.AuditEntry{
        ID:         uuid.NewString(),
        ScanID:     f.ScanID,
        EntityType: domain.AuditEntityFinding,
        EntityID:   findingID,
        Action:     domain.AuditActionDecided,
        Actor:      consultantID,
        Before:     domain.SnapshotFinding(f),
        After:      domain.SnapshotFinding(current),
        At:         now,
    }
    if err := c.audit.AppendAudit(ctx, entry); err != nil {
        return nil, err
    }

    if done, err := c.machine.CompleteIfDecided(ctx, f.ScanID); err != nil {
        log.Printf("review: completion check for scan %s: %v", f.ScanID, err)
    } else if done {
        log.Printf("review: scan %s completed", f.ScanID)
    }
    return current, nil
}
