package postgres

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
)

// -- ScanRepository --

func (db *DB) CreateScan(ctx context.Context, scan *domain.Scan) error {
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO scans (id, target_url, registrable_domain, priority, state, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, scan.ID, scan.TargetURL, scan.RegistrableDomain, scan.Priority, scan.State, scan.CreatedAt)
    return err
}

func (db *DB) GetScan(ctx context.Context, id string) (*domain.Scan, error) {
    var s domain.Scan
    err := db.Pool.QueryRow(ctx, `
        SELECT id, target_url, registrable_domain, priority, state, failure_reason,
               crawl_started_at, crawl_finished_at, review_started_at, review_finished_at, created_at
        FROM scans WHERE id = $1
    `, id).Scan(&s.ID, &s.TargetURL, &s.RegistrableDomain, &s.Priority, &s.State, &s.FailureReason,
        &s.CrawlStartedAt, &s.CrawlFinishedAt, &s.ReviewStartedAt, &s.ReviewFinishedAt, &s.CreatedAt)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, &domain.NotFoundError{Entity: "scan", ID: id}
    }
    if err != nil {
        return nil, err
    }
    return &s, nil
}

// TransitionScan performs the guarded state update, stamping the phase
// timestamp for the target state in the same statement.
func (db *DB) TransitionScan(ctx context.Context, id string, from, to domain.ScanState, reason *string) (bool, error) {
    var stamp string
    switch to {
    case domain.ScanCrawling:
        stamp = ", crawl_started_at = now()"
    case domain.ScanScoring:
        stamp = ", crawl_finished_at = now()"
    case domain.ScanInReview:
        stamp = ", review_started_at = now()"
    case domain.ScanCompleted:
        stamp = ", review_finished_at = now()"
    case domain.ScanFailed:
        stamp = ", failure_reason = $4"
    }
    query := fmt.Sprintf(`UPDATE scans SET state = $3%s WHERE id = $1 AND state = $2`, stamp)
    args := []any{id, from, to}
    if to == domain.ScanFailed {
        args = append(args, reason)
    }
    tag, err := db.Pool.Exec(ctx, query, args...)
    if err != nil {
        return false, err
    }
    if tag.RowsAffected() == 1 {
        return true, nil
    }
    var exists bool
    if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scans WHERE id = $1)`, id).Scan(&exists); err != nil {
        return false, err
    }
    if !exists {
        return false, &domain.NotFoundError{Entity: "scan", ID: id}
    }
    return false, nil
}

// -- FindingRepository --

const findingColumns = `id, scan_id, criteria, severity, element_signature, context, screenshot_ref,
    confidence_score, confidence_level, confidence_factors, ai_recommendation, uncertainties,
    final_decision, reviewer_id, reviewed_at, notes, created_at`

type findingScanner interface {
    Scan(dest ...any) error
}

func scanFinding(row findingScanner) (*domain.Finding, error) {
    var f domain.Finding
    var criteria, factors, uncertainties []byte
    var level, decision *string
    err := row.Scan(&f.ID, &f.ScanID, &criteria, &f.Severity, &f.ElementSignature, &f.Context, &f.ScreenshotRef,
        &f.ConfidenceScore, &level, &factors, &f.AIRecommendation, &uncertainties,
        &decision, &f.ReviewerID, &f.ReviewedAt, &f.Notes, &f.CreatedAt)
    if err != nil {
        return nil, err
    }
    if err := json.Unmarshal(criteria, &f.Criteria); err != nil {
        return nil, fmt.Errorf("finding %s: criteria: %w", f.ID, err)
    }
    if level != nil {
        f.ConfidenceLevel = domain.ConfidenceLevel(*level)
    }
    if len(factors) > 0 {
        var cf domain.ConfidenceFactors
        if err := json.Unmarshal(factors, &cf); err != nil {
            return nil, fmt.Errorf("finding %s: factors: %w", f.ID, err)
        }
        f.ConfidenceFactors = &cf
    }
    if len(uncertainties) > 0 {
        if err := json.Unmarshal(uncertainties, &f.Uncertainties); err != nil {
            return nil, fmt.Errorf("finding %s: uncertainties: %w", f.ID, err)
        }
    }
    if decision != nil {
        d := domain.Decision(*decision)
        f.FinalDecision = &d
    }
    return &f, nil
}

func (db *DB) InsertFindings(ctx context.Context, findings []*domain.Finding) error {
    for _, f := range findings {
        criteria, err := json.Marshal(f.Criteria)
        if err != nil {
            return err
        }
        if _, err := db.Pool.Exec(ctx, `
            INSERT INTO findings (id, scan_id, criteria, severity, element_signature, context, screenshot_ref, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        `, f.ID, f.ScanID, criteria, f.Severity, f.ElementSignature, f.Context, f.ScreenshotRef, f.CreatedAt); err != nil {
            return err
        }
    }
    return nil
}

func (db *DB) GetFinding(ctx context.Context, id string) (*domain.Finding, error) {
    row := db.Pool.QueryRow(ctx, `SELECT `+findingColumns+` FROM findings WHERE id = $1`, id)
    f, err := scanFinding(row)
    if errors.Is(err, pgx.ErrNoRows) {
        return nil, &domain.NotFoundError{Entity: "finding", ID: id}
    }
    return f, err
}

func (db *DB) ListFindings(ctx context.Context, scanID string) ([]*domain.Finding, error) {
    rows, err := db.Pool.Query(ctx, `SELECT `+findingColumns+` FROM findings WHERE scan_id = $1 ORDER BY created_at, id`, scanID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []*domain.Finding
    for rows.Next() {
        f, err := scanFinding(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, f)
    }
    return out, rows.Err()
}

func (db *DB) StoreScore(ctx context.Context, findingID string, res domain.ConfidenceResult, recommendation string) (bool, error) {
    factors, err := json.Marshal(res.Factors)
    if err != nil {
        return false, err
    }
    uncertainties, err := json.Marshal(res.Uncertainties)
    if err != nil {
        return false, err
    }
    tag, err := db.Pool.Exec(ctx, `
        UPDATE findings
        SET confidence_score = $2, confidence_level = $3, confidence_factors = $4,
            ai_recommendation = $5, uncertainties = $6
        WHERE id = $1 AND confidence_score IS NULL
    `, findingID, res.Score, res.Level, factors, recommendation, uncertainties)
    if err != nil {
        return false, err
    }
    if tag.RowsAffected() == 1 {
        return true, nil
    }
    // Either already scored (retried batch, fine) or missing.
    var exists bool
    if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM findings WHERE id = $1)`, findingID).Scan(&exists); err != nil {
        return false, err
    }
    if !exists {
        return false, &domain.NotFoundError{Entity: "finding", ID: findingID}
    }
    return false, nil
}

// DecideFinding is the decision compare-and-set: the WHERE clause on a null
// final_decision guarantees a single winner under concurrent submissions.
func (db *DB) DecideFinding(ctx context.Context, id, reviewerID string, decision domain.Decision, notes string, at time.Time) (bool, *domain.Finding, error) {
    tag, err := db.Pool.Exec(ctx, `
        UPDATE findings
        SET final_decision = $2, reviewer_id = $3, reviewed_at = $4, notes = $5
        WHERE id = $1 AND final_decision IS NULL
    `, id, decision, reviewerID, at, notes)
    if err != nil {
        return false, nil, err
    }
    current, err := db.GetFinding(ctx, id)
    if err != nil {
        return false, nil, err
    }
    return tag.RowsAffected() == 1, current, nil
}

func (db *DB) CountUndecided(ctx context.Context, scanID string) (int, error) {
    var n int
    err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM findings WHERE scan_id = $1 AND final_decision IS NULL`, scanID).Scan(&n)
    return n, err
}

func (db *DB) CountUnscored(ctx context.Context, scanID string) (int, error) {
    var n int
    err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM findings WHERE scan_id = $1 AND confidence_score IS NULL`, scanID).Scan(&n)
    return n, err
}
