package memory

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

// Store is the in-memory implementation of every repository port. It backs
// tests and DATABASE_URL-less local runs; the postgres adapter is the
// production twin. All methods hand out copies so callers never share
// mutable state with the store.
type Store struct {
    mu          sync.Mutex
    scans       map[string]*domain.Scan
    findings    map[string]*domain.Finding
    findingIDs  map[string][]string // scanID -> finding ids, insertion order
    assignments map[string][]*domain.ReviewAssignment
    audit       []*domain.AuditEntry
    jobs        map[string]*jobRecord
    jobOrder    []string
}

type jobRecord struct {
    id     string
    scanID string
    status string // queued|running|completed|failed
    reason string
}

func New() *Store {
    return &Store{
        scans:       make(map[string]*domain.Scan),
        findings:    make(map[string]*domain.Finding),
        findingIDs:  make(map[string][]string),
        assignments: make(map[string][]*domain.ReviewAssignment),
        jobs:        make(map[string]*jobRecord),
    }
}

func cloneScan(s *domain.Scan) *domain.Scan {
    c := *s
    return &c
}

func cloneFinding(f *domain.Finding) *domain.Finding {
    c := *f
    c.Criteria = append([]string(nil), f.Criteria...)
    c.Uncertainties = append([]string(nil), f.Uncertainties...)
    if f.ConfidenceScore != nil {
        v := *f.ConfidenceScore
        c.ConfidenceScore = &v
    }
    if f.ConfidenceFactors != nil {
        v := *f.ConfidenceFactors
        c.ConfidenceFactors = &v
    }
    if f.FinalDecision != nil {
        v := *f.FinalDecision
        c.FinalDecision = &v
    }
    if f.ReviewerID != nil {
        v := *f.ReviewerID
        c.ReviewerID = &v
    }
    if f.ReviewedAt != nil {
        v := *f.ReviewedAt
        c.ReviewedAt = &v
    }
    if f.ScreenshotRef != nil {
        v := *f.ScreenshotRef
        c.ScreenshotRef = &v
    }
    return &c
}

// -- ScanRepository --

func (s *Store) CreateScan(_ context.Context, scan *domain.Scan) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.scans[scan.ID] = cloneScan(scan)
    return nil
}

func (s *Store) GetScan(_ context.Context, id string) (*domain.Scan, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    scan, ok := s.scans[id]
    if !ok {
        return nil, &domain.NotFoundError{Entity: "scan", ID: id}
    }
    return cloneScan(scan), nil
}

func (s *Store) TransitionScan(_ context.Context, id string, from, to domain.ScanState, reason *string) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    scan, ok := s.scans[id]
    if !ok {
        return false, &domain.NotFoundError{Entity: "scan", ID: id}
    }
    if scan.State != from {
        return false, nil
    }
    now := time.Now().UTC()
    scan.State = to
    switch to {
    case domain.ScanCrawling:
        scan.CrawlStartedAt = &now
    case domain.ScanScoring:
        scan.CrawlFinishedAt = &now
    case domain.ScanInReview:
        scan.ReviewStartedAt = &now
    case domain.ScanCompleted:
        scan.ReviewFinishedAt = &now
    case domain.ScanFailed:
        scan.FailureReason = reason
    }
    return true, nil
}

// -- FindingRepository --

func (s *Store) InsertFindings(_ context.Context, findings []*domain.Finding) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, f := range findings {
        s.findings[f.ID] = cloneFinding(f)
        s.findingIDs[f.ScanID] = append(s.findingIDs[f.ScanID], f.ID)
    }
    return nil
}

func (s *Store) GetFinding(_ context.Context, id string) (*domain.Finding, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    f, ok := s.findings[id]
    if !ok {
        return nil, &domain.NotFoundError{Entity: "finding", ID: id}
    }
    return cloneFinding(f), nil
}

func (s *Store) ListFindings(_ context.Context, scanID string) ([]*domain.Finding, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    ids := s.findingIDs[scanID]
    out := make([]*domain.Finding, 0, len(ids))
    for _, id := range ids {
        out = append(out, cloneFinding(s.findings[id]))
    }
    return out, nil
}

func (s *Store) StoreScore(_ context.Context, findingID string, res domain.ConfidenceResult, recommendation string) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    f, ok := s.findings[findingID]
    if !ok {
        return false, &domain.NotFoundError{Entity: "finding", ID: findingID}
    }
    if f.ConfidenceScore != nil {
        // Scored exactly once; a retried write of the same batch is a no-op.
        return false, nil
    }
    score := res.Score
    factors := res.Factors
    f.ConfidenceScore = &score
    f.ConfidenceLevel = res.Level
    f.ConfidenceFactors = &factors
    f.AIRecommendation = recommendation
    f.Uncertainties = append([]string(nil), res.Uncertainties...)
    return true, nil
}

func (s *Store) DecideFinding(_ context.Context, id, reviewerID string, decision domain.Decision, notes string, at time.Time) (bool, *domain.Finding, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    f, ok := s.findings[id]
    if !ok {
        return false, nil, &domain.NotFoundError{Entity: "finding", ID: id}
    }
    if f.FinalDecision != nil {
        return false, cloneFinding(f), nil
    }
    f.FinalDecision = &decision
    f.ReviewerID = &reviewerID
    f.ReviewedAt = &at
    f.Notes = notes
    return true, cloneFinding(f), nil
}

func (s *Store) CountUndecided(_ context.Context, scanID string) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    n := 0
    for _, id := range s.findingIDs[scanID] {
        if s.findings[id].FinalDecision == nil {
            n++
        }
    }
    return n, nil
}

func (s *Store) CountUnscored(_ context.Context, scanID string) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    n := 0
    for _, id := range s.findingIDs[scanID] {
        if s.findings[id].ConfidenceScore == nil {
            n++
        }
    }
    return n, nil
}

// -- AssignmentRepository --

func (s *Store) CreateAssignment(_ context.Context, a *domain.ReviewAssignment) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    c := *a
    s.assignments[a.ScanID] = append(s.assignments[a.ScanID], &c)
    return nil
}

func (s *Store) ListOpenAssignments(_ context.Context, scanID string) ([]*domain.ReviewAssignment, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []*domain.ReviewAssignment
    for _, a := range s.assignments[scanID] {
        if a.Status == domain.AssignmentOpen {
            c := *a
            out = append(out, &c)
        }
    }
    return out, nil
}

func (s *Store) CloseAssignments(_ context.Context, scanID string, at time.Time) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, a := range s.assignments[scanID] {
        if a.Status == domain.AssignmentOpen {
            a.Status = domain.AssignmentClosed
            t := at
            a.ClosedAt = &t
        }
    }
    return nil
}

// -- AuditRepository --

func (s *Store) AppendAudit(_ context.Context, e *domain.AuditEntry) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    c := *e
    s.audit = append(s.audit, &c)
    return nil
}

func (s *Store) ListAuditByScan(_ context.Context, scanID string) ([]*domain.AuditEntry, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []*domain.AuditEntry
    for _, e := range s.audit {
        if e.ScanID == scanID {
            c := *e
            out = append(out, &c)
        }
    }
    return out, nil
}

// -- JobRepository --

func (s *Store) EnqueueJob(_ context.Context, scanID string) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    j := &jobRecord{id: uuid.NewString(), scanID: scanID, status: "queued"}
    s.jobs[j.id] = j
    s.jobOrder = append(s.jobOrder, j.id)
    return j.id, nil
}

func (s *Store) ClaimNext(_ context.Context) (ports.ScanJob, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, id := range s.jobOrder {
        j := s.jobs[id]
        if j.status == "queued" {
            j.status = "running"
            return ports.ScanJob{ID: j.id, ScanID: j.scanID}, true, nil
        }
    }
    return ports.ScanJob{}, false, nil
}

func (s *Store) MarkCompleted(_ context.Context, jobID string) error {
    return s.setJobStatus(jobID, "completed", "")
}

func (s *Store) MarkFailed(_ context.Context, jobID string, reason string) error {
    return s.setJobStatus(jobID, "failed", reason)
}

func (s *Store) setJobStatus(jobID, status, reason string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    j, ok := s.jobs[jobID]
    if !ok {
        return &domain.NotFoundError{Entity: "job", ID: jobID}
    }
    j.status = status
    j.reason = reason
    return nil
}

func (s *Store) StartJobForScan(_ context.Context, scanID string) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, id := range s.jobOrder {
        j := s.jobs[id]
        if j.scanID == scanID && j.status == "queued" {
            j.status = "running"
            return j.id, nil
        }
    }
    return "", &domain.NotFoundError{Entity: "job for scan", ID: scanID}
}
