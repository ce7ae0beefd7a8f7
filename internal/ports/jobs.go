package ports

import "context"

type ScanJob struct {
    ID     string
    ScanID string
}

// JobRepository supports claiming and updating pipeline jobs.
type JobRepository interface {
    EnqueueJob(ctx context.Context, scanID string) (jobID string, err error)
    ClaimNext(ctx context.Context) (job ScanJob, found bool, err error)
    MarkCompleted(ctx context.Context, jobID string) error
    MarkFailed(ctx context.Context, jobID string, reason string) error
    StartJobForScan(ctx context.Context, scanID string) (jobID string, err error)
}
