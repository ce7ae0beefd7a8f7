package domain

import (
    "errors"
    "fmt"
)

// ValidationError reports malformed caller input.
type ValidationError struct {
    Field  string
    Reason string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
    Entity string
    ID     string
}

func (e *NotFoundError) Error() string {
    return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError reports a lost decision race: the finding already carries a
// different final decision. The caller must re-fetch; the stale decision may
// not be retried.
type ConflictError struct {
    FindingID  string
    ReviewerID string
    Decision   Decision
}

func (e *ConflictError) Error() string {
    return fmt.Sprintf("finding %s already decided %s by %s", e.FindingID, e.Decision, e.ReviewerID)
}

// IllegalTransitionError reports an attempted transition the scan state
// machine does not allow. Never retried.
type IllegalTransitionError struct {
    ScanID string
    From   ScanState
    To     ScanState
}

func (e *IllegalTransitionError) Error() string {
    return fmt.Sprintf("scan %s: illegal transition %s -> %s", e.ScanID, e.From, e.To)
}

// OracleTimeoutError marks an oracle call that timed out or returned garbage.
// Always recovered locally with the fallback score; never aborts a scan.
type OracleTimeoutError struct {
    FindingID string
    Err       error
}

func (e *OracleTimeoutError) Error() string {
    return fmt.Sprintf("oracle unavailable for finding %s: %v", e.FindingID, e.Err)
}

func (e *OracleTimeoutError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
    var nf *NotFoundError
    return errors.As(err, &nf)
}

func IsConflict(err error) bool {
    var c *ConflictError
    return errors.As(err, &c)
}

func IsIllegalTransition(err error) bool {
    var it *IllegalTransitionError
    return errors.As(err, &it)
}

func IsValidation(err error) bool {
    var v *ValidationError
    return errors.As(err, &v)
}
