package httpadapter

import (
    "context"
    "encoding/json"
    "log"
    "net/http"
    "strconv"
    "time"

    "github.com/go-chi/chi/v5"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/report"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/review"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scans"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scanstate"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/workers/scanrunner"
)

// Ingestor is the slice of the pipeline processor the HTTP layer needs for
// the external-scanner delivery endpoint.
type Ingestor interface {
    Ingest(ctx context.Context, scanID string, raw []ports.RawFinding, crawlComplete bool) error
}

type Server struct {
    scans     *scans.Service
    reviews   *review.Coordinator
    reports   *report.Assembler
    machine   *scanstate.Machine
    audit     ports.AuditRepository
    jobs      ports.JobRepository
    processor scanrunner.ScanProcessor
    ingestor  Ingestor
}

func New(scansSvc *scans.Service, reviews *review.Coordinator, reports *report.Assembler, machine *scanstate.Machine, audit ports.AuditRepository, jobs ports.JobRepository, processor scanrunner.ScanProcessor, ingestor Ingestor) *Server {
    return &Server{
        scans:     scansSvc,
        reviews:   reviews,
        reports:   reports,
        machine:   machine,
        audit:     audit,
        jobs:      jobs,
        processor: processor,
        ingestor:  ingestor,
    }
}

func (s *Server) Routes() chi.Router {
    r := chi.NewRouter()
    r.Get("/healthz", s.healthz)
    r.Post("/scans", s.submitScan)
    r.Get("/scans/{id}", s.getScan)
    r.Delete("/scans/{id}", s.cancelScan)
    r.Post("/scans/{id}/findings", s.ingestFindings)
    r.Get("/scans/{id}/pending", s.listPending)
    r.Post("/scans/{id}/assignments", s.claimAssignment)
    r.Get("/scans/{id}/report", s.getReport)
    r.Get("/scans/{id}/audit", s.getAudit)
    r.Post("/findings/{id}/decision", s.submitDecision)
    return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitScanRequest struct {
    TargetURL       string          `json:"targetUrl"`
    Priority        domain.Priority `json:"priority"`
    ExternalScanner bool            `json:"externalScanner"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
    var req submitScanRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
        return
    }
    scan, err := s.scans.Submit(r.Context(), req.TargetURL, req.Priority, req.ExternalScanner)
    if err != nil {
        writeError(w, err)
        return
    }

    if r.URL.Query().Get("wait") == "true" && !req.ExternalScanner {
        timeout := 30
        if t, err := strconv.Atoi(r.URL.Query().Get("timeout")); err == nil && t > 0 {
            timeout = t
        }
        ctx, cancel := context.WithTimeout(r.Context(), time.Duration(timeout)*time.Second)
        defer cancel()
        if err := scanrunner.ProcessInline(ctx, s.jobs, s.processor, scan.ID); err != nil {
            writeError(w, err)
            return
        }
        current, err := s.scans.Get(ctx, scan.ID)
        if err != nil {
            writeError(w, err)
            return
        }
        writeJSON(w, http.StatusOK, scanView(current))
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]string{"scanId": scan.ID})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
    scan, err := s.scans.Get(r.Context(), chi.URLParam(r, "id"))
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, scanView(scan))
}

func (s *Server) cancelScan(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    if err := s.machine.Cancel(r.Context(), id); err != nil {
        writeError(w, err)
        return
    }
    log.Printf("http: scan %s cancelled", id)
    w.WriteHeader(http.StatusNoContent)
}

type ingestRequest struct {
    Findings []struct {
        Criteria         []string        `json:"criteria"`
        Severity         domain.Severity `json:"severity"`
        ElementSignature string          `json:"elementSignature"`
        Context          string          `json:"context"`
        ScreenshotRef    *string         `json:"screenshotRef"`
    } `json:"findings"`
    CrawlComplete bool `json:"crawlComplete"`
}

func (s *Server) ingestFindings(w http.ResponseWriter, r *http.Request) {
    var req ingestRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
        return
    }
    raw := make([]ports.RawFinding, 0, len(req.Findings))
    for i, f := range req.Findings {
        if !f.Severity.Valid() {
            writeError(w, &domain.ValidationError{Field: "findings", Reason: "unknown severity at index " + strconv.Itoa(i)})
            return
        }
        if len(f.Criteria) == 0 {
            writeError(w, &domain.ValidationError{Field: "findings", Reason: "criteria required at index " + strconv.Itoa(i)})
            return
        }
        raw = append(raw, ports.RawFinding{
            Criteria:         f.Criteria,
            Severity:         f.Severity,
            ElementSignature: f.ElementSignature,
            Context:          f.Context,
            ScreenshotRef:    f.ScreenshotRef,
        })
    }
    if err := s.ingestor.Ingest(r.Context(), chi.URLParam(r, "id"), raw, req.CrawlComplete); err != nil {
        writeError(w, err)
        return
    }
    w.WriteHeader(http.StatusAccepted)
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
    findings, err := s.reviews.ListPending(r.Context(), chi.URLParam(r, "id"))
    if err != nil {
        writeError(w, err)
        return
    }
    out := make([]findingJSON, 0, len(findings))
    for _, f := range findings {
        out = append(out, findingView(f))
    }
    writeJSON(w, http.StatusOK, map[string]any{"findings": out})
}

type claimRequest struct {
    ConsultantID string `json:"consultantId"`
}

func (s *Server) claimAssignment(w http.ResponseWriter, r *http.Request) {
    var req claimRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
        return
    }
    a, err := s.reviews.ClaimAssignment(r.Context(), chi.URLParam(r, "id"), req.ConsultantID)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusCreated, map[string]any{
        "assignmentId": a.ID,
        "scanId":       a.ScanID,
        "consultantId": a.ConsultantID,
        "status":       a.Status,
        "assignedAt":   a.AssignedAt,
    })
}

type decisionRequest struct {
    ConsultantID string          `json:"consultantId"`
    Decision     domain.Decision `json:"decision"`
    Notes        string          `json:"notes"`
}

func (s *Server) submitDecision(w http.ResponseWriter, r *http.Request) {
    var req decisionRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeError(w, &domain.ValidationError{Field: "body", Reason: "invalid JSON"})
        return
    }
    f, err := s.reviews.SubmitDecision(r.Context(), chi.URLParam(r, "id"), req.ConsultantID, req.Decision, req.Notes)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, findingView(f))
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
    rep, err := s.reports.Assemble(r.Context(), chi.URLParam(r, "id"))
    if err != nil {
        writeError(w, err)
        return
    }
    findings := make([]findingJSON, 0, len(rep.Findings))
    for _, f := range rep.Findings {
        findings = append(findings, findingView(f))
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "scan":     scanView(rep.Scan),
        "findings": findings,
        "metrics":  rep.Metrics,
    })
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
    entries, err := s.audit.ListAuditByScan(r.Context(), chi.URLParam(r, "id"))
    if err != nil {
        writeError(w, err)
        return
    }
    out := make([]map[string]any, 0, len(entries))
    for _, e := range entries {
        out = append(out, map[string]any{
            "id":         e.ID,
            "scanId":     e.ScanID,
            "entityType": e.EntityType,
            "entityId":   e.EntityID,
            "action":     e.Action,
            "actor":      e.Actor,
            "before":     json.RawMessage(e.Before),
            "after":      json.RawMessage(e.After),
            "at":         e.At,
        })
    }
    writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
