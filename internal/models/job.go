package models

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// Job is one persisted unit of work in the que_jobs table.
//
// Priority, RunAt and ID together form the primary key. A retry rewrites
// RunAt, so any reference taken at claim time must carry all three fields to
// keep matching the same physical row.
type Job struct {
	Priority   int            `gorm:"primaryKey;type:smallint;default:100"`
	RunAt      time.Time      `gorm:"primaryKey"`
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	Type       string         `gorm:"type:text;not null"`
	Args       datatypes.JSON `gorm:"not null;default:'[]'"`
	ErrorCount int            `gorm:"not null;default:0"`
	LastError  sql.NullString `gorm:"type:text"`
}

func (Job) TableName() string { return "que_jobs" }

// JobKey is the composite key used to match a claimed row in every
// post-claim operation.
type JobKey struct {
	Priority int
	RunAt    time.Time
	ID       int64
}

// Key returns the row's composite key as it was when the job was claimed.
func (j *Job) Key() JobKey {
	return JobKey{Priority: j.Priority, RunAt: j.RunAt, ID: j.ID}
}
