package report

import (
    "context"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

// Metrics aggregates decision outcomes for one scan. falsePositiveRate is
// computed over every decided finding, not just the approved subset.
type Metrics struct {
    TotalFindings     int                            `json:"totalFindings"`
    Decided           int                            `json:"decided"`
    Approved          int                            `json:"approved"`
    Rejected          int                            `json:"rejected"`
    Modified          int                            `json:"modified"`
    BySeverity        map[domain.Severity]int        `json:"bySeverity"`
    ByConfidenceLevel map[domain.ConfidenceLevel]int `json:"byConfidenceLevel"`
    FalsePositiveRate float64                        `json:"falsePositiveRate"`
}

// Report is the assembled, filtered output set for a scan.
type Report struct {
    Scan     *domain.Scan
    Findings []*domain.Finding
    Metrics  Metrics
}

// Assembler builds the final report from approved findings. Inclusion is
// governed solely by the APPROVED decision: a consultant-approved
// LOW-confidence finding is legitimately part of the report.
type Assembler struct {
    scans    ports.ScanRepository
    findings ports.FindingRepository
}

func New(scans ports.ScanRepository, findings ports.FindingRepository) *Assembler {
    return &Assembler{scans: scans, findings: findings}
}

func (a *Assembler) Assemble(ctx context.Context, scanID string) (*Report, error) {
    scan, err := a.scans.GetScan(ctx, scanID)
    if err != nil {
        return nil, err
    }
    all, err := a.findings.ListFindings(ctx, scanID)
    if err != nil {
        return nil, err
    }

    m := Metrics{
        TotalFindings:     len(all),
        BySeverity:        make(map[domain.Severity]int),
        ByConfidenceLevel: make(map[domain.ConfidenceLevel]int),
    }
    approved := make([]*domain.Finding, 0, len(all))
    for _, f := range all {
        if !f.Decided() {
            continue
        }
        m.Decided++
        switch *f.FinalDecision {
        case domain.DecisionApproved:
            m.Approved++
        case domain.DecisionRejected:
            m.Rejected++
        case domain.DecisionModified:
            m.Modified++
        }
        if *f.FinalDecision != domain.DecisionApproved {
            continue
        }
        approved = append(approved, f)
        m.BySeverity[f.Severity]++
        if f.Scored() {
            m.ByConfidenceLevel[f.ConfidenceLevel]++
        }
    }
    if m.Decided > 0 {
        m.FalsePositiveRate = float64(m.Rejected) / float64(m.Decided)
    }

    return &Report{Scan: scan, Findings: approved, Metrics: m}, nil
}
