package postgres

import (
    "context"
    "time"

    "github.com/aaj441/wcag-ai-platform-sub007/internal/domain"
)

// -- AssignmentRepository --

func (db *DB) CreateAssignment(ctx context.Context, a *domain.ReviewAssignment) error {
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO review_assignments (id, scan_id, consultant_id, status, assigned_at)
        VALUES ($1, $2, $3, $4, $5)
    `, a.ID, a.ScanID, a.ConsultantID, a.Status, a.AssignedAt)
    return err
}

func (db *DB) ListOpenAssignments(ctx context.Context, scanID string) ([]*domain.ReviewAssignment, error) {
    rows, err := db.Pool.Query(ctx, `
        SELECT id, scan_id, consultant_id, status, assigned_at, closed_at
        FROM review_assignments
        WHERE scan_id = $1 AND status = $2
        ORDER BY assigned_at
    `, scanID, domain.AssignmentOpen)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []*domain.ReviewAssignment
    for rows.Next() {
        var a domain.ReviewAssignment
        if err := rows.Scan(&a.ID, &a.ScanID, &a.ConsultantID, &a.Status, &a.AssignedAt, &a.ClosedAt); err != nil {
            return nil, err
        }
        out = append(out, &a)
    }
    return out, rows.Err()
}

func (db *DB) CloseAssignments(ctx context.Context, scanID string, at time.Time) error {
    _, err := db.Pool.Exec(ctx, `
        UPDATE review_assignments SET status = $3, closed_at = $2
        WHERE scan_id = $1 AND status = $4
    `, scanID, at, domain.AssignmentClosed, domain.AssignmentOpen)
    return err
}

// -- AuditRepository --

func (db *DB) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO audit_entries (id, scan_id, entity_type, entity_id, action, actor, before_state, after_state, at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, e.ID, e.ScanID, e.EntityType, e.EntityID, e.Action, e.Actor, e.Before, e.After, e.At)
    return err
}

func (db *DB) ListAuditByScan(ctx context.Context, scanID string) ([]*domain.AuditEntry, error) {
    rows, err := db.Pool.Query(ctx, `
        SELECT id, scan_id, entity_type, entity_id, action, actor, before_state, after_state, at
        FROM audit_entries WHERE scan_id = $1 ORDER BY at, id
    `, scanID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []*domain.AuditEntry
    for rows.Next() {
        var e domain.AuditEntry
        if err := rows.Scan(&e.ID, &e.ScanID, &e.EntityType, &e.EntityID, &e.Action, &e.Actor, &e.Before, &e.After, &e.At); err != nil {
            return nil, err
        }
        out = append(out, &e)
    }
    return out, rows.Err()
}
