package model

import "time"

// SyncAuditEntry records one successful creation of a directory entry from
// a submission. Entries are append-only.
type SyncAuditEntry struct {
	ID                         string    `json:"id"`
	SubmissionID               string    `json:"emerge_submission_id"`
	TalentApplicationID        string    `json:"talent_application_id"`
	Email                      string    `json:"email"`
	SubmissionDate             time.Time `json:"submission_date"`
	TalentSyncDate             time.Time `json:"talent_sync_date"`
	ExistsInTalentApplications bool      `json:"exists_in_talent_applications"`
}
