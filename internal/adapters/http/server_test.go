package httpadapter

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/adapters/crawler"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/adapters/memory"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/report"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/review"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scans"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scanstate"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scoring"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/workers/scanrunner"
)

type fixedOracle struct{}

func (fixedOracle) Analyze(context.Context, ports.OracleRequest) (ports.OracleResponse, error) {
    return ports.OracleResponse{IsViolation: true, Confidence: 0.85, Analysis: "add alt text"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
    t.Helper()
    store := memory.New()
    machine := scanstate.New(store, store, store, store)
    scorer := scoring.New(store, store, fixedOracle{}, scoring.NewPatternTable(), time.Second)
    processor := scanrunner.NewProcessor(store, store, store, crawler.Sample(), scorer, machine)
    processor.ChunkDelay = 0

    srv := New(
        scans.New(store, store),
        review.New(store, store, store, store, machine, true),
        report.New(store, store),
        machine,
        store,
        store,
        processor,
        processor,
    )
    ts := httptest.NewServer(srv.Routes())
    t.Cleanup(ts.Close)
    return ts, store
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
    t.Helper()
    var buf bytes.Buffer
    if body != nil {
        if err := json.NewEncoder(&buf).Encode(body); err != nil {
            t.Fatal(err)
        }
    }
    req, err := http.NewRequest(method, url, &buf)
    if err != nil {
        t.Fatal(err)
    }
    req.Header.Set("Content-Type", "application/json")
    resp, err := http.DefaultClient.Do(req)
    if err != nil {
        t.Fatal(err)
    }
    t.Cleanup(func() { resp.Body.Close() })
    var out map[string]any
    if resp.ContentLength != 0 && resp.StatusCode != http.StatusNoContent {
        if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
            t.Fatalf("%s %s: decode response: %v", method, url, err)
        }
    }
    return resp, out
}

func TestSubmitWaitRunsPipeline(t *testing.T) {
    ts, _ := newTestServer(t)

    resp, body := doJSON(t, http.MethodPost, ts.URL+"/scans?wait=true&timeout=10", map[string]any{
        "targetUrl": "https://shop.example.com/catalogue",
    })
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
    }
    if body["state"] != string(domain.ScanReadyForReview) {
        t.Fatalf("state = %v, want READY_FOR_REVIEW", body["state"])
    }
    if body["registrableDomain"] != "example.com" {
        t.Errorf("registrableDomain = %v", body["registrableDomain"])
    }
}

func TestSubmitAsyncReturnsAccepted(t *testing.T) {
    ts, store := newTestServer(t)

    resp, body := doJSON(t, http.MethodPost, ts.URL+"/scans", map[string]any{
        "targetUrl": "https://example.com",
    })
    if resp.StatusCode != http.StatusAccepted {
        t.Fatalf("status = %d", resp.StatusCode)
    }
    id, _ := body["scanId"].(string)
    if id == "" {
        t.Fatalf("no scanId in %v", body)
    }
    scan, err := store.GetScan(context.Background(), id)
    if err != nil {
        t.Fatal(err)
    }
    if scan.State != domain.ScanPending {
        t.Errorf("async submit state = %s, want PENDING", scan.State)
    }
    if _, found, _ := store.ClaimNext(context.Background()); !found {
        t.Error("no job queued for async submit")
    }
}

func TestSubmitRejectsBadURL(t *testing.T) {
    ts, _ := newTestServer(t)
    resp, _ := doJSON(t, http.MethodPost, ts.URL+"/scans", map[string]any{"targetUrl": "not a url"})
    if resp.StatusCode != http.StatusBadRequest {
        t.Errorf("status = %d, want 400", resp.StatusCode)
    }
}

func TestReviewFlowEndToEnd(t *testing.T) {
    ts, _ := newTestServer(t)

    _, scan := doJSON(t, http.MethodPost, ts.URL+"/scans?wait=true", map[string]any{
        "targetUrl": "https://example.com",
    })
    scanID := scan["id"].(string)

    resp, body := doJSON(t, http.MethodGet, ts.URL+"/scans/"+scanID+"/pending", nil)
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("pending status = %d", resp.StatusCode)
    }
    findings := body["findings"].([]any)
    if len(findings) == 0 {
        t.Fatal("no pending findings after pipeline run")
    }
    // Queue is sorted by confidence score descending.
    prev := 2.0
    ids := make([]string, 0, len(findings))
    for _, item := range findings {
        f := item.(map[string]any)
        score := f["confidenceScore"].(float64)
        if score > prev {
            t.Errorf("pending queue out of order: %v after %v", score, prev)
        }
        prev = score
        ids = append(ids, f["id"].(string))
    }

    resp, _ = doJSON(t, http.MethodPost, ts.URL+"/scans/"+scanID+"/assignments", map[string]any{
        "consultantId": "consultant-1",
    })
    if resp.StatusCode != http.StatusCreated {
        t.Fatalf("claim status = %d", resp.StatusCode)
    }

    // Approve all but the last, reject the last.
    for i, id := range ids {
        decision := "APPROVED"
        if i == len(ids)-1 {
            decision = "REJECTED"
        }
        resp, _ = doJSON(t, http.MethodPost, ts.URL+"/findings/"+id+"/decision", map[string]any{
            "consultantId": "consultant-1",
            "decision":     decision,
        })
        if resp.StatusCode != http.StatusOK {
            t.Fatalf("decision on %s: status = %d", id, resp.StatusCode)
        }
    }

    _, scanBody := doJSON(t, http.MethodGet, ts.URL+"/scans/"+scanID, nil)
    if scanBody["state"] != string(domain.ScanCompleted) {
        t.Errorf("scan state = %v, want COMPLETED", scanBody["state"])
    }

    resp, rep := doJSON(t, http.MethodGet, ts.URL+"/scans/"+scanID+"/report", nil)
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("report status = %d", resp.StatusCode)
    }
    approved := rep["findings"].([]any)
    if len(approved) != len(ids)-1 {
        t.Errorf("report findings = %d, want %d", len(approved), len(ids)-1)
    }
    metrics := rep["metrics"].(map[string]any)
    wantRate := 1.0 / float64(len(ids))
    if got := metrics["falsePositiveRate"].(float64); got != wantRate {
        t.Errorf("falsePositiveRate = %v, want %v", got, wantRate)
    }

    _, auditBody := doJSON(t, http.MethodGet, ts.URL+"/scans/"+scanID+"/audit", nil)
    entries := auditBody["entries"].([]any)
    // One entry per score write plus one per decision write.
    if len(entries) != 2*len(ids) {
        t.Errorf("audit entries = %d, want %d", len(entries), 2*len(ids))
    }
}

func TestDecisionConflictMapsTo409(t *testing.T) {
    ts, _ := newTestServer(t)
    _, scan := doJSON(t, http.MethodPost, ts.URL+"/scans?wait=true", map[string]any{
        "targetUrl": "https://example.com",
    })
    scanID := scan["id"].(string)
    _, body := doJSON(t, http.MethodGet, ts.URL+"/scans/"+scanID+"/pending", nil)
    id := body["findings"].([]any)[0].(map[string]any)["id"].(string)

    resp, _ := doJSON(t, http.MethodPost, ts.URL+"/findings/"+id+"/decision", map[string]any{
        "consultantId": "c1", "decision": "APPROVED",
    })
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("first decision status = %d", resp.StatusCode)
    }
    // Identical resubmission is idempotent.
    resp, _ = doJSON(t, http.MethodPost, ts.URL+"/findings/"+id+"/decision", map[string]any{
        "consultantId": "c1", "decision": "APPROVED",
    })
    if resp.StatusCode != http.StatusOK {
        t.Errorf("idempotent resubmit status = %d, want 200", resp.StatusCode)
    }
    // A different decision is a conflict.
    resp, _ = doJSON(t, http.MethodPost, ts.URL+"/findings/"+id+"/decision", map[string]any{
        "consultantId": "c2", "decision": "REJECTED",
    })
    if resp.StatusCode != http.StatusConflict {
        t.Errorf("conflicting decision status = %d, want 409", resp.StatusCode)
    }
}

func TestErrorStatusMapping(t *testing.T) {
    ts, _ := newTestServer(t)

    if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/scans/ghost", nil); resp.StatusCode != http.StatusNotFound {
        t.Errorf("unknown scan status = %d, want 404", resp.StatusCode)
    }
    if resp, _ := doJSON(t, http.MethodGet, ts.URL+"/scans/ghost/report", nil); resp.StatusCode != http.StatusNotFound {
        t.Errorf("unknown report status = %d, want 404", resp.StatusCode)
    }

    // Premature decision: scan still PENDING.
    _, body := doJSON(t, http.MethodPost, ts.URL+"/scans", map[string]any{"targetUrl": "https://example.com"})
    scanID := body["scanId"].(string)
    resp, _ := doJSON(t, http.MethodPost, ts.URL+"/scans/"+scanID+"/assignments", map[string]any{"consultantId": "c1"})
    if resp.StatusCode != http.StatusUnprocessableEntity {
        t.Errorf("claim on PENDING scan status = %d, want 422", resp.StatusCode)
    }
}

func TestCancelScan(t *testing.T) {
    ts, store := newTestServer(t)
    _, body := doJSON(t, http.MethodPost, ts.URL+"/scans", map[string]any{"targetUrl": "https://example.com"})
    scanID := body["scanId"].(string)

    resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/scans/"+scanID, nil)
    if resp.StatusCode != http.StatusNoContent {
        t.Fatalf("cancel status = %d", resp.StatusCode)
    }
    scan, _ := store.GetScan(context.Background(), scanID)
    if scan.State != domain.ScanFailed {
        t.Errorf("cancelled scan state = %s", scan.State)
    }
    // Terminal scans cannot be cancelled again.
    resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/scans/"+scanID, nil)
    if resp.StatusCode != http.StatusUnprocessableEntity {
        t.Errorf("double cancel status = %d, want 422", resp.StatusCode)
    }
}

func TestExternalIngestEndpoint(t *testing.T) {
    ts, store := newTestServer(t)
    _, body := doJSON(t, http.MethodPost, ts.URL+"/scans", map[string]any{
        "targetUrl":       "https://example.com",
        "externalScanner": true,
    })
    scanID := body["scanId"].(string)
    // External submissions queue no job until the crawl completes.
    if _, found, _ := store.ClaimNext(context.Background()); found {
        t.Fatal("job queued before external crawl completed")
    }

    resp, _ := doJSON(t, http.MethodPost, ts.URL+"/scans/"+scanID+"/findings", map[string]any{
        "findings": []map[string]any{
            {"criteria": []string{"1.1.1"}, "severity": "HIGH", "elementSignature": "img.logo", "context": "<img src=\"/l.png\">"},
        },
        "crawlComplete": true,
    })
    if resp.StatusCode != http.StatusAccepted {
        t.Fatalf("ingest status = %d", resp.StatusCode)
    }
    scan, _ := store.GetScan(context.Background(), scanID)
    if scan.State != domain.ScanScoring {
        t.Errorf("scan state = %s, want SCORING", scan.State)
    }
    if _, found, _ := store.ClaimNext(context.Background()); !found {
        t.Error("no scoring job queued after crawlComplete")
    }

    // Bad severity rejected with field position.
    resp, _ = doJSON(t, http.MethodPost, ts.URL+"/scans/"+scanID+"/findings", map[string]any{
        "findings": []map[string]any{{"criteria": []string{"1.1.1"}, "severity": "SEVERE"}},
    })
    if resp.StatusCode != http.StatusBadRequest {
        t.Errorf("bad severity status = %d, want 400", resp.StatusCode)
    }
}

func TestHealthz(t *testing.T) {
    ts, _ := newTestServer(t)
    resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
    if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
        t.Errorf("healthz = %d %v", resp.StatusCode, body)
    }
}
