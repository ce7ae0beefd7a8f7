package postgres

import (
    "context"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
    "github.com/aaj441/wcag-ai-platform-sub007/internal/ports"
)

func (db *DB) EnqueueJob(ctx context.Context, scanID string) (string, error) {
    var jobID string
    err := db.Pool.QueryRow(ctx, `INSERT INTO scan_jobs (scan_id) VALUES ($1) RETURNING id`, scanID).Scan(&jobID)
    return jobID, err
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it
// running, so concurrent dispatchers never double-claim.
func (db *DB) ClaimNext(ctx context.Context) (job ports.ScanJob, found bool, err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return job, false, err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { _ = tx.Commit(ctx) }
    }()

    err = tx.QueryRow(ctx, `
        SELECT id, scan_id FROM scan_jobs
        WHERE status = 'queued'
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&job.ID, &job.ScanID)
    if errors.Is(err, pgx.ErrNoRows) {
        err = nil
        return job, false, nil
    }
    if err != nil { return job, false, err }

    if _, err = tx.Exec(ctx, `
        UPDATE scan_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
    `, job.ID); err != nil {
        return job, false, err
    }
    return job, true, nil
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    _, err := db.Pool.Exec(ctx, `UPDATE scan_jobs SET status='completed', finished_at=now() WHERE id=$1`, jobID)
    return err
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    _, err := db.Pool.Exec(ctx, `UPDATE scan_jobs SET status='failed', reason=$2, finished_at=now() WHERE id=$1`, jobID, reason)
    return err
}

// StartJobForScan marks the queued job for a specific scan as running and
// returns the job id, for the blocking submit path.
func (db *DB) StartJobForScan(ctx context.Context, scanID string) (string, error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return "", err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { _ = tx.Commit(ctx) }
    }()

    var jobID string
    err = tx.QueryRow(ctx, `
        SELECT id FROM scan_jobs
        WHERE scan_id = $1 AND status = 'queued'
        FOR UPDATE SKIP LOCKED
    `, scanID).Scan(&jobID)
    if errors.Is(err, pgx.ErrNoRows) {
        err = nil
        return "", &domain.NotFoundError{Entity: "job for scan", ID: scanID}
    }
    if err != nil { return "", err }
    if _, err = tx.Exec(ctx, `UPDATE scan_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1`, jobID); err != nil {
        return "", err
    }
    return jobID, nil
}
