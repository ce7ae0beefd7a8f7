package scanstate

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/google/uuid"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

// transitions is the full lifecycle graph. FAILED is reachable from every
// non-terminal state and handled separately in Fail.
var transitions = map[domain.ScanState][]domain.ScanState{
    domain.ScanPending:        {domain.ScanCrawling},
    domain.ScanCrawling:       {domain.ScanScoring},
    domain.ScanScoring:        {domain.ScanReadyForReview, domain.ScanCompleted},
    domain.ScanReadyForReview: {domain.ScanInReview},
    domain.ScanInReview:       {domain.ScanCompleted},
}

func Allowed(from, to domain.ScanState) bool {
    if to == domain.ScanFailed {
        return !from.Terminal()
    }
    for _, next := range transitions[from] {
        if next == to {
            return true
        }
    }
    return false
}

// Machine drives scans through their lifecycle. All scan mutation funnels
// through here; illegal transition attempts return a typed error, never a
// silent no-op.
type Machine struct {
    scans       ports.ScanRepository
    findings    ports.FindingRepository
    assignments ports.AssignmentRepository
    audit       ports.AuditRepository
}

func New(scans ports.ScanRepository, findings ports.FindingRepository, assignments ports.AssignmentRepository, audit ports.AuditRepository) *Machine {
    return &Machine{scans: scans, findings: findings, assignments: assignments, audit: audit}
}

// Transition moves a scan to the target state, validating against the
// transition graph and guarding against concurrent movers.
func (m *Machine) Transition(ctx context.Context, scanID string, to domain.ScanState) error {
    scan, err := m.scans.GetScan(ctx, scanID)
    if err != nil {
        return err
    }
    if !Allowed(scan.State, to) {
        return &domain.IllegalTransitionError{ScanID: scanID, From: scan.State, To: to}
    }
    ok, err := m.scans.TransitionScan(ctx, scanID, scan.State, to, nil)
    if err != nil {
        return err
    }
    if !ok {
        // Lost a race; report against the state we actually find now.
        current, gerr := m.scans.GetScan(ctx, scanID)
        if gerr != nil {
            return gerr
        }
        return &domain.IllegalTransitionError{ScanID: scanID, From: current.State, To: to}
    }
    return nil
}

func (m *Machine) BeginCrawl(ctx context.Context, scanID string) error {
    return m.Transition(ctx, scanID, domain.ScanCrawling)
}

func (m *Machine) FinishCrawl(ctx context.Context, scanID string) error {
    return m.Transition(ctx, scanID, domain.ScanScoring)
}

// FinishScoring gates SCORING on batch completion: every finding must carry
// a score before the scan advances. A scan with no findings at all completes
// immediately with an empty report.
func (m *Machine) FinishScoring(ctx context.Context, scanID string) error {
    findings, err := m.findings.ListFindings(ctx, scanID)
    if err != nil {
        return err
    }
    if len(findings) == 0 {
        return m.Transition(ctx, scanID, domain.ScanCompleted)
    }
    unscored, err := m.findings.CountUnscored(ctx, scanID)
    if err != nil {
        return err
    }
    if unscored > 0 {
        return fmt.Errorf("scan %s: %d findings still unscored", scanID, unscored)
    }
    return m.Transition(ctx, scanID, domain.ScanReadyForReview)
}

// OpenReview marks the scan in review when the first assignment opens.
func (m *Machine) OpenReview(ctx context.Context, scanID string) error {
    return m.Transition(ctx, scanID, domain.ScanInReview)
}

// CompleteIfDecided transitions IN_REVIEW -> COMPLETED once every finding
// has a final decision, and closes open assignments. Safe to call after
// every decision; it does nothing while findings remain undecided.
func (m *Machine) CompleteIfDecided(ctx context.Context, scanID string) (bool, error) {
    undecided, err := m.findings.CountUndecided(ctx, scanID)
    if err != nil {
        return false, err
    }
    if undecided > 0 {
        return false, nil
    }
    if err := m.Transition(ctx, scanID, domain.ScanCompleted); err != nil {
        return false, err
    }
    if err := m.assignments.CloseAssignments(ctx, scanID, time.Now().UTC()); err != nil {
        log.Printf("scanstate: close assignments for %s: %v", scanID, err)
    }
    return true, nil
}

// Fail is the irreversible error transition, reachable from any non-terminal
// state. Open assignments are voided and the failure is audited.
func (m *Machine) Fail(ctx context.Context, scanID, reason string) error {
    scan, err := m.scans.GetScan(ctx, scanID)
    if err != nil {
        return err
    }
    if scan.State.Terminal() {
        return &domain.IllegalTransitionError{ScanID: scanID, From: scan.State, To: domain.ScanFailed}
    }
    ok, err := m.scans.TransitionScan(ctx, scanID, scan.State, domain.ScanFailed, &reason)
    if err != nil {
        return err
    }
    if !ok {
        current, gerr := m.scans.GetScan(ctx, scanID)
        if gerr != nil {
            return gerr
        }
        return &domain.IllegalTransitionError{ScanID: scanID, From: current.State, To: domain.ScanFailed}
    }
    if err := m.assignments.CloseAssignments(ctx, scanID, time.Now().UTC()); err != nil {
        log.Printf("scanstate: close assignments for %s: %v", scanID, err)
    }
    entry := &domain.AuditEntry{
        ID:         uuid.NewString(),
        ScanID:     scanID,
        EntityType: domain.AuditEntityScan,
        EntityID:   scanID,
        Action:     domain.AuditActionFailed,
        Actor:      "state-machine",
        Before:     []byte(fmt.Sprintf("%q", scan.State)),
        After:      []byte(fmt.Sprintf("%q", domain.ScanFailed)),
        At:         time.Now().UTC(),
    }
    if err := m.audit.AppendAudit(ctx, entry); err != nil {
        log.Printf("scanstate: audit failure of %s: %v", scanID, err)
    }
    return nil
}

// Cancel halts a scan before completion. Terminal per the failure path; a
// cancelled scan must be resubmitted as a new scan.
func (m *Machine) Cancel(ctx context.Context, scanID string) error {
    return m.Fail(ctx, scanID, "cancelled")
}
