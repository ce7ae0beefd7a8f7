package scanrunner

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/google/uuid"
    "golang.org/x/sync/errgroup"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scanstate"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/services/scoring"
)

// Test hook; the inter-chunk delay is mandatory backpressure against the
// oracle's rate limits, but tests must not sit through it.
var chunkPause = func(ctx context.Context, d time.Duration) error {
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-time.After(d):
        return nil
    }
}

// How often an in-flight chunk checks for scan termination. Var so tests
// can tighten it.
var terminationPollInterval = 200 * time.Millisecond

// Processor runs the verification pipeline for one scan: crawl, ingest,
// chunked scoring, then the ready-for-review gate. Failures beyond the retry
// budget terminate the scan into FAILED.
type Processor struct {
    scans    ports.ScanRepository
    findings ports.FindingRepository
    jobs     ports.JobRepository
    crawler  ports.Crawler
    scorer   *scoring.Scorer
    machine  *scanstate.Machine

    ChunkSize  int
    ChunkDelay time.Duration
    Retries    int
}

func NewProcessor(scans ports.ScanRepository, findings ports.FindingRepository, jobs ports.JobRepository, crawler ports.Crawler, scorer *scoring.Scorer, machine *scanstate.Machine) *Processor {
    return &Processor{
        scans:      scans,
        findings:   findings,
        jobs:       jobs,
        crawler:    crawler,
        scorer:     scorer,
        machine:    machine,
        ChunkSize:  10,
        ChunkDelay: time.Second,
        Retries:    2,
    }
}

func (p *Processor) Process(ctx context.Context, scanID string) error {
    scan, err := p.scans.GetScan(ctx, scanID)
    if err != nil {
        return err
    }
    switch scan.State {
    case domain.ScanPending:
        if err := p.crawl(ctx, scan); err != nil {
            return err
        }
    case domain.ScanScoring:
        // External scanner delivered the findings; resume at scoring.
    default:
        // Already picked up, cancelled, or re-delivered; nothing to do.
        log.Printf("scanrunner: scan %s in state %s, skipping", scanID, scan.State)
        return nil
    }

    findings, err := p.findings.ListFindings(ctx, scanID)
    if err != nil {
        return err
    }
    if err := p.scoreAll(ctx, scanID, findings); err != nil {
        reason := fmt.Sprintf("scoring failed: %v", err)
        if ferr := p.machine.Fail(ctx, scanID, reason); ferr != nil {
            log.Printf("scanrunner: fail scan %s: %v", scanID, ferr)
        }
        return fmt.Errorf("scan %s: %s", scanID, reason)
    }

    return p.machine.FinishScoring(ctx, scanID)
}

// crawl runs the in-process crawler port for scans that are not externally
// ingested: PENDING -> CRAWLING -> findings -> SCORING.
func (p *Processor) crawl(ctx context.Context, scan *domain.Scan) error {
    if err := p.machine.BeginCrawl(ctx, scan.ID); err != nil {
        return err
    }
    raw, err := p.crawler.Crawl(ctx, scan.TargetURL)
    if err != nil {
        reason := fmt.Sprintf("crawl failed: %v", err)
        if ferr := p.machine.Fail(ctx, scan.ID, reason); ferr != nil {
            log.Printf("scanrunner: fail scan %s: %v", scan.ID, ferr)
        }
        return fmt.Errorf("scan %s: %s", scan.ID, reason)
    }
    if err := p.insertRaw(ctx, scan.ID, raw); err != nil {
        reason := fmt.Sprintf("ingest failed: %v", err)
        if ferr := p.machine.Fail(ctx, scan.ID, reason); ferr != nil {
            log.Printf("scanrunner: fail scan %s: %v", scan.ID, ferr)
        }
        return fmt.Errorf("scan %s: %s", scan.ID, reason)
    }
    return p.machine.FinishCrawl(ctx, scan.ID)
}

// Ingest accepts a findings batch from an external scanner. The first batch
// moves the scan into CRAWLING; the completion signal closes the crawl phase
// and queues the scoring job.
func (p *Processor) Ingest(ctx context.Context, scanID string, raw []ports.RawFinding, crawlComplete bool) error {
    scan, err := p.scans.GetScan(ctx, scanID)
    if err != nil {
        return err
    }
    switch scan.State {
    case domain.ScanPending:
        if err := p.machine.BeginCrawl(ctx, scanID); err != nil {
            return err
        }
    case domain.ScanCrawling:
    default:
        return &domain.IllegalTransitionError{ScanID: scanID, From: scan.State, To: domain.ScanCrawling}
    }
    if err := p.insertRaw(ctx, scanID, raw); err != nil {
        return err
    }
    if !crawlComplete {
        return nil
    }
    if err := p.machine.FinishCrawl(ctx, scanID); err != nil {
        return err
    }
    if _, err := p.jobs.EnqueueJob(ctx, scanID); err != nil {
        return err
    }
    return nil
}

func (p *Processor) insertRaw(ctx context.Context, scanID string, raw []ports.RawFinding) error {
    if len(raw) == 0 {
        return nil
    }
    findings := make([]*domain.Finding, 0, len(raw))
    now := time.Now().UTC()
    for _, r := range raw {
        findings = append(findings, &domain.Finding{
            ID:               uuid.NewString(),
            ScanID:           scanID,
            Criteria:         r.Criteria,
            Severity:         r.Severity,
            ElementSignature: r.ElementSignature,
            Context:          r.Context,
            ScreenshotRef:    r.ScreenshotRef,
            CreatedAt:        now,
        })
    }
    return p.findings.InsertFindings(ctx, findings)
}

// scoreAll processes findings in bounded chunks with a mandatory delay
// between chunks. Findings within a chunk are scored concurrently; each
// finding gets the configured retry budget before the batch fails.
func (p *Processor) scoreAll(ctx context.Context, scanID string, findings []*domain.Finding) error {
    chunkSize := p.ChunkSize
    if chunkSize < 1 {
        chunkSize = 1
    }
    for start := 0; start < len(findings); start += chunkSize {
        if start > 0 && p.ChunkDelay > 0 {
            if err := chunkPause(ctx, p.ChunkDelay); err != nil {
                return err
            }
        }

        // Cancellation between chunks: a cancelled scan is already FAILED.
        scan, err := p.scans.GetScan(ctx, scanID)
        if err != nil {
            return err
        }
        if scan.State.Terminal() {
            return fmt.Errorf("scan terminated during scoring (%s)", scan.State)
        }

        end := start + chunkSize
        if end > len(findings) {
            end = len(findings)
        }
        chunkCtx, cancelChunk := context.WithCancel(ctx)
        g, gctx := errgroup.WithContext(chunkCtx)
        stop := make(chan struct{})
        go p.watchTermination(gctx, scanID, cancelChunk, stop)
        for _, f := range findings[start:end] {
            f := f
            g.Go(func() error {
                return p.scoreWithRetry(gctx, f)
            })
        }
        err = g.Wait()
        close(stop)
        cancelChunk()
        if err != nil {
            return err
        }
    }
    return nil
}

// watchTermination cancels an in-flight chunk once the scan reaches a
// terminal state, so a DELETE mid-chunk halts the remaining oracle calls
// instead of letting the chunk drain.
func (p *Processor) watchTermination(ctx context.Context, scanID string, cancel context.CancelFunc, stop <-chan struct{}) {
    ticker := time.NewTicker(terminationPollInterval)
    defer ticker.Stop()
    for {
        select {
        case <-stop:
            return
        case <-ctx.Done():
            return
        case <-ticker.C:
            if scan, err := p.scans.GetScan(ctx, scanID); err == nil && scan.State.Terminal() {
                cancel()
                return
            }
        }
    }
}

func (p *Processor) scoreWithRetry(ctx context.Context, f *domain.Finding) error {
    var lastErr error
    for attempt := 0; attempt <= p.Retries; attempt++ {
        if err := ctx.Err(); err != nil {
            return err
        }
        if _, err := p.scorer.ScoreAndStore(ctx, f); err != nil {
            lastErr = err
            if ctx.Err() != nil {
                return ctx.Err()
            }
            continue
        }
        return nil
    }
    return fmt.Errorf("finding %s: retry budget exhausted: %w", f.ID, lastErr)
}
