package domain

import "encoding/json"

type findingSnapshot struct {
    ConfidenceScore *float64        `json:"confidenceScore,omitempty"`
    ConfidenceLevel ConfidenceLevel `json:"confidenceLevel,omitempty"`
    FinalDecision   *Decision       `json:"finalDecision,omitempty"`
    ReviewerID      *string         `json:"reviewerId,omitempty"`
    Notes           string          `json:"notes,omitempty"`
}

// SnapshotFinding captures the mutable fields of a finding for audit
// before/after states.
func SnapshotFinding(f *Finding) []byte {
    if f == nil {
        return []byte("null")
    }
    b, err := json.Marshal(findingSnapshot{
        ConfidenceScore: f.ConfidenceScore,
        ConfidenceLevel: f.ConfidenceLevel,
        FinalDecision:   f.FinalDecision,
        ReviewerID:      f.ReviewerID,
        Notes:           f.Notes,
    })
    if err != nil {
        return []byte("null")
    }
    return b
}
