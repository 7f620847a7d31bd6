package model

import (
	"time"

	"gorm.io/datatypes"
)

const TableNameAnalysisJob = "analysis_jobs"

// AnalysisJob mapped from table <analysis_jobs>. One row per worker job;
// retries create new rows linked through retry_of.
type AnalysisJob struct {
	ID              string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	SourceCode      string         `gorm:"column:source_code;not null" json:"-"`
	Status          string         `gorm:"column:status;not null;size:32;default:'queued';index" json:"status"`
	Attempts        int            `gorm:"column:attempts;not null;default:1" json:"attempts"`
	CancelRequested bool           `gorm:"column:cancel_requested;not null;default:false" json:"cancel_requested"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
	Error           string         `gorm:"column:error;size:4096" json:"error,omitempty"`
	Result          datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	RetryOf         *string        `gorm:"column:retry_of;size:64" json:"retry_of,omitempty"`
}

// TableName AnalysisJob's table name
func (*AnalysisJob) TableName() string {
	return TableNameAnalysisJob
}
