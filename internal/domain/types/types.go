// Package types contains common types used across the application
package types

import "time"

// ItemStatus is the per-submission outcome reported by a reconciliation run.
type ItemStatus string

const (
	StatusSynced         ItemStatus = "synced"
	StatusAlreadyExists  ItemStatus = "already_exists"
	StatusError          ItemStatus = "error"
	StatusPartialSuccess ItemStatus = "partial_success"
)

// AllStatuses lists item statuses in report order.
var AllStatuses = []ItemStatus{StatusSynced, StatusAlreadyExists, StatusPartialSuccess, StatusError}

// Result is the outcome for one submission.
type Result struct {
	SubmissionID        string     `json:"id"`
	Email               string     `json:"email"`
	Status              ItemStatus `json:"status"`
	Error               string     `json:"error,omitempty"`
	TalentApplicationID string     `json:"talent_application_id,omitempty"`
}

// Summary is returned by every reconciliation run.
type Summary struct {
	Processed int       `json:"processed"`
	Results   []Result  `json:"results"`
	Timestamp time.Time `json:"timestamp"`
}

// Counts tallies results by status. Every known status is present.
func (s Summary) Counts() map[ItemStatus]int {
	counts := make(map[ItemStatus]int, len(AllStatuses))
	for _, st := range AllStatuses {
		counts[st] = 0
	}
	for _, r := range s.Results {
		counts[r.Status]++
	}
	return counts
}

// NeedsAttention returns the results an operator has to look at.
func (s Summary) NeedsAttention() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Status == StatusError || r.Status == StatusPartialSuccess {
			out = append(out, r)
		}
	}
	return out
}
