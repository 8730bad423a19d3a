package model

import "time"

// Table names shared by every store backend and the change feed.
const (
	TableSubmissions  = "emerge_submissions"
	TableApplications = "talent_applications"
	TableSyncAudit    = "emerge_talent_sync"
	TableUserRoles    = "user_roles"
)

// ChangeOp is the kind of row mutation carried by a ChangeEvent.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent notifies subscribers that a row changed.
type ChangeEvent struct {
	Table    string    `json:"table"`
	Op       ChangeOp  `json:"op"`
	RecordID string    `json:"id"`
	At       time.Time `json:"at"`
}
