package review

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/adapters/memory"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scanstate"
)

type fixture struct {
    store   *memory.Store
    coord   *Coordinator
    machine *scanstate.Machine
    scan    *domain.Scan
}

func setup(t *testing.T, showLow bool) *fixture {
    t.Helper()
    store := memory.New()
    machine := scanstate.New(store, store, store, store)
    coord := New(store, store, store, store, machine, showLow)
    scan := &domain.Scan{
        ID:        "scan-1",
        TargetURL: "https://example.com",
        Priority:  domain.PriorityStandard,
        State:     domain.ScanReadyForReview,
        CreatedAt: time.Now().UTC(),
    }
    if err := store.CreateScan(context.Background(), scan); err != nil {
        t.Fatal(err)
    }
    return &fixture{store: store, coord: coord, machine: machine, scan: scan}
}

func (fx *fixture) addFinding(t *testing.T, id string, score float64, severity domain.Severity) *domain.Finding {
    t.Helper()
    f := &domain.Finding{
        ID:       id,
        ScanID:   fx.scan.ID,
        Criteria: []string{"1.1.1"},
        Severity: severity,
    }
    if err := fx.store.InsertFindings(context.Background(), []*domain.Finding{f}); err != nil {
        t.Fatal(err)
    }
    res := domain.ConfidenceResult{Score: score, Level: domain.LevelForScore(score)}
    if _, err := fx.store.StoreScore(context.Background(), id, res, ""); err != nil {
        t.Fatal(err)
    }
    return f
}

func TestListPendingOrder(t *testing.T) {
    fx := setup(t, true)
    fx.addFinding(t, "low-med", 0.45, domain.SeverityMedium)
    fx.addFinding(t, "high-crit", 0.91, domain.SeverityCritical)
    fx.addFinding(t, "high-low", 0.91, domain.SeverityLow)
    fx.addFinding(t, "mid", 0.72, domain.SeverityHigh)

    got, err := fx.coord.ListPending(context.Background(), fx.scan.ID)
    if err != nil {
        t.Fatal(err)
    }
    want := []string{"high-crit", "high-low", "mid", "low-med"}
    if len(got) != len(want) {
        t.Fatalf("pending = %d findings, want %d", len(got), len(want))
    }
    for i, id := range want {
        if got[i].ID != id {
            t.Errorf("pending[%d] = %s, want %s", i, got[i].ID, id)
        }
    }
}

func TestListPendingHidesDecidedAndLow(t *testing.T) {
    fx := setup(t, false)
    fx.addFinding(t, "visible", 0.85, domain.SeverityHigh)
    fx.addFinding(t, "low-conf", 0.3, domain.SeverityCritical)
    decided := fx.addFinding(t, "decided", 0.9, domain.SeverityHigh)
    if _, _, err := fx.store.DecideFinding(context.Background(), decided.ID, "c1", domain.DecisionApproved, "", time.Now().UTC()); err != nil {
        t.Fatal(err)
    }

    got, err := fx.coord.ListPending(context.Background(), fx.scan.ID)
    if err != nil {
        t.Fatal(err)
    }
    if len(got) != 1 || got[0].ID != "visible" {
        t.Errorf("pending = %+v, want only 'visible'", got)
    }
}

func TestSubmitDecisionLifecycle(t *testing.T) {
    ctx := context.Background()
    fx := setup(t, true)
    f1 := fx.addFinding(t, "f1", 0.9, domain.SeverityHigh)
    f2 := fx.addFinding(t, "f2", 0.6, domain.SeverityMedium)

    decided, err := fx.coord.SubmitDecision(ctx, f1.ID, "consultant-1", domain.DecisionApproved, "looks real")
    if err != nil {
        t.Fatal(err)
    }
    if decided.FinalDecision == nil || *decided.FinalDecision != domain.DecisionApproved {
        t.Fatalf("decision not recorded: %+v", decided)
    }
    if decided.ReviewedAt == nil {
        t.Error("reviewedAt not stamped")
    }

    // First decision implicitly claimed: scan is now IN_REVIEW.
    scan, _ := fx.store.GetScan(ctx, fx.scan.ID)
    if scan.State != domain.ScanInReview {
        t.Errorf("scan state = %s, want IN_REVIEW", scan.State)
    }
    open, _ := fx.store.ListOpenAssignments(ctx, fx.scan.ID)
    if len(open) != 1 || open[0].ConsultantID != "consultant-1" {
        t.Errorf("assignments = %+v", open)
    }

    entries, _ := fx.store.ListAuditByScan(ctx, fx.scan.ID)
    if len(entries) != 1 || entries[0].Action != domain.AuditActionDecided {
        t.Errorf("decision not audited: %+v", entries)
    }

    // Last decision completes the scan and closes the assignment.
    if _, err := fx.coord.SubmitDecision(ctx, f2.ID, "consultant-1", domain.DecisionRejected, ""); err != nil {
        t.Fatal(err)
    }
    scan, _ = fx.store.GetScan(ctx, fx.scan.ID)
    if scan.State != domain.ScanCompleted {
        t.Errorf("scan state = %s, want COMPLETED", scan.State)
    }
    open, _ = fx.store.ListOpenAssignments(ctx, fx.scan.ID)
    if len(open) != 0 {
        t.Errorf("assignments still open: %+v", open)
    }
}

func TestIdempotentResubmission(t *testing.T) {
    ctx := context.Background()
    fx := setup(t, true)
    f := fx.addFinding(t, "f1", 0.9, domain.SeverityHigh)
    fx.addFinding(t, "f2", 0.6, domain.SeverityMedium)

    if _, err := fx.coord.SubmitDecision(ctx, f.ID, "c1", domain.DecisionModified, "tweak alt"); err != nil {
        t.Fatal(err)
    }
    // Exact resubmission succeeds as a no-op.
    again, err := fx.coord.SubmitDecision(ctx, f.ID, "c1", domain.DecisionModified, "tweak alt")
    if err != nil {
        t.Fatalf("identical resubmission should be idempotent: %v", err)
    }
    if *again.FinalDecision != domain.DecisionModified {
        t.Errorf("resubmission returned %s", *again.FinalDecision)
    }

    // Any difference is a conflict: decision, notes, or reviewer.
    if _, err := fx.coord.SubmitDecision(ctx, f.ID, "c1", domain.DecisionApproved, "tweak alt"); !domain.IsConflict(err) {
        t.Errorf("differing decision = %v, want ConflictError", err)
    }
    if _, err := fx.coord.SubmitDecision(ctx, f.ID, "c1", domain.DecisionModified, "other notes"); !domain.IsConflict(err) {
        t.Errorf("differing notes = %v, want ConflictError", err)
    }
    if _, err := fx.coord.SubmitDecision(ctx, f.ID, "c2", domain.DecisionModified, "tweak alt"); !domain.IsConflict(err) {
        t.Errorf("differing reviewer = %v, want ConflictError", err)
    }

    // One audit entry: only the winning write.
    entries, _ := fx.store.ListAuditByScan(ctx, fx.scan.ID)
    if len(entries) != 1 {
        t.Errorf("audit entries = %d, want 1", len(entries))
    }
}

func TestResubmitAfterScanCompleted(t *testing.T) {
    ctx := context.Background()
    fx := setup(t, true)
    f := fx.addFinding(t, "last", 0.9, domain.SeverityHigh)

    // Deciding the only finding completes the scan.
    if _, err := fx.coord.SubmitDecision(ctx, f.ID, "c1", domain.DecisionApproved, "ok"); err != nil {
        t.Fatal(err)
    }
    scan, _ := fx.store.GetScan(ctx, fx.scan.ID)
    if scan.State != domain.ScanCompleted {
        t.Fatalf("scan state = %s, want COMPLETED", scan.State)
    }

    // A retried request for that same decision lands after completion and
    // must still succeed as a no-op.
    again, err := fx.coord.SubmitDecision(ctx, f.ID, "c1", domain.DecisionApproved, "ok")
    if err != nil {
        t.Fatalf("resubmission after completion = %v, want idempotent success", err)
    }
    if again.FinalDecision == nil || *again.FinalDecision != domain.DecisionApproved {
        t.Errorf("resubmission returned %+v", again)
    }

    // A different decision is still a conflict, and a failed scan still
    // rejects outright.
    if _, err := fx.coord.SubmitDecision(ctx, f.ID, "c2", domain.DecisionRejected, ""); !domain.IsConflict(err) {
        t.Errorf("conflicting post-completion decision = %v, want ConflictError", err)
    }
    entries, _ := fx.store.ListAuditByScan(ctx, fx.scan.ID)
    if len(entries) != 1 {
        t.Errorf("audit entries = %d, want 1 (no entry for the no-op)", len(entries))
    }
}

func TestConcurrentDecisionsSingleWinner(t *testing.T) {
    ctx := context.Background()
    fx := setup(t, true)
    f := fx.addFinding(t, "contested", 0.8, domain.SeverityHigh)
    fx.addFinding(t, "other", 0.6, domain.SeverityLow)

    type outcome struct {
        err error
    }
    results := make([]outcome, 2)
    var wg sync.WaitGroup
    start := make(chan struct{})
    decisions := []domain.Decision{domain.DecisionApproved, domain.DecisionRejected}
    for i := 0; i < 2; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            <-start
            _, err := fx.coord.SubmitDecision(ctx, f.ID, "consultant-"+string(rune('a'+i)), decisions[i], "")
            results[i] = outcome{err: err}
        }(i)
    }
    close(start)
    wg.Wait()

    winners, conflicts := 0, 0
    for _, r := range results {
        switch {
        case r.err == nil:
            winners++
        case domain.IsConflict(r.err):
            conflicts++
        default:
            t.Fatalf("unexpected error: %v", r.err)
        }
    }
    if winners != 1 || conflicts != 1 {
        t.Errorf("winners=%d conflicts=%d, want exactly one of each", winners, conflicts)
    }

    stored, _ := fx.store.GetFinding(ctx, f.ID)
    if stored.FinalDecision == nil {
        t.Fatal("no decision recorded")
    }
}

func TestDecisionGatedByScanState(t *testing.T) {
    ctx := context.Background()
    fx := setup(t, true)
    f := fx.addFinding(t, "early", 0.9, domain.SeverityHigh)

    // Drag the scan back to SCORING to simulate a premature submission.
    fx.scan.State = domain.ScanScoring
    if err := fx.store.CreateScan(ctx, fx.scan); err != nil {
        t.Fatal(err)
    }

    _, err := fx.coord.SubmitDecision(ctx, f.ID, "c1", domain.DecisionApproved, "")
    if !domain.IsIllegalTransition(err) {
        t.Errorf("decision while SCORING = %v, want IllegalTransitionError", err)
    }
}

func TestSubmitDecisionValidation(t *testing.T) {
    ctx := context.Background()
    fx := setup(t, true)
    f := fx.addFinding(t, "f1", 0.9, domain.SeverityHigh)

    if _, err := fx.coord.SubmitDecision(ctx, f.ID, "", domain.DecisionApproved, ""); !domain.IsValidation(err) {
        t.Errorf("empty consultant = %v, want ValidationError", err)
    }
    if _, err := fx.coord.SubmitDecision(ctx, f.ID, "c1", domain.Decision("MAYBE"), ""); !domain.IsValidation(err) {
        t.Errorf("bogus decision = %v, want ValidationError", err)
    }
    if _, err := fx.coord.SubmitDecision(ctx, "ghost", "c1", domain.DecisionApproved, ""); !domain.IsNotFound(err) {
        t.Errorf("unknown finding = %v, want NotFoundError", err)
    }
}

func TestClaimAssignmentOpensReview(t *testing.T) {
    ctx := context.Background()
    fx := setup(t, true)
    fx.addFinding(t, "f1", 0.9, domain.SeverityHigh)

    a, err := fx.coord.ClaimAssignment(ctx, fx.scan.ID, "consultant-1")
    if err != nil {
        t.Fatal(err)
    }
    if a.Status != domain.AssignmentOpen {
        t.Errorf("assignment status = %s", a.Status)
    }
    scan, _ := fx.store.GetScan(ctx, fx.scan.ID)
    if scan.State != domain.ScanInReview {
        t.Errorf("scan state = %s, want IN_REVIEW", scan.State)
    }

    // Claiming again returns the existing open assignment.
    b, err := fx.coord.ClaimAssignment(ctx, fx.scan.ID, "consultant-1")
    if err != nil {
        t.Fatal(err)
    }
    if b.ID != a.ID {
        t.Errorf("second claim created a new assignment")
    }
}
