package scanrunner

import (
    "context"
    "log"
    "time"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

// ScanProcessor performs the pipeline work for a job's scan id.
type ScanProcessor interface {
    Process(ctx context.Context, scanID string) error
}

// Run starts worker goroutines that claim jobs and process them.
func Run(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, concurrency int, pollInterval time.Duration) {
    if concurrency < 1 { return }
    jobsCh := make(chan ports.ScanJob, concurrency)

    // dispatcher loop
    go func() {
        ticker := time.NewTicker(pollInterval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                close(jobsCh)
                return
            case <-ticker.C:
                for {
                    job, found, err := repo.ClaimNext(ctx)
                    if err != nil {
                        log.Printf("job claim error: %v", err)
                        break
                    }
                    if !found { break }
                    jobsCh <- job
                }
            }
        }
    }()

    // workers
    for i := 0; i < concurrency; i++ {
        go func(idx int) {
            for job := range jobsCh {
                if err := processor.Process(ctx, job.ScanID); err != nil {
                    _ = repo.MarkFailed(ctx, job.ID, err.Error())
                    log.Printf("worker %d: job %s failed: %v", idx, job.ID, err)
                    continue
                }
                if err := repo.MarkCompleted(ctx, job.ID); err != nil {
                    log.Printf("worker %d: complete err: %v", idx, err)
                }
            }
        }(i)
    }
}

// ProcessInline runs a specific scan synchronously using the same processor
// logic as the background workers, for the blocking submit path.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, scanID string) error {
    jobID, err := repo.StartJobForScan(ctx, scanID)
    if err != nil { return err }
    if err := processor.Process(ctx, scanID); err != nil {
        _ = repo.MarkFailed(ctx, jobID, err.Error())
        return err
    }
    return repo.MarkCompleted(ctx, jobID)
}
