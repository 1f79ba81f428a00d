package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobStatus defines the status of an ingestion job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents one background ingestion job
type Job struct {
	ID        int64           `json:"id" gorm:"primaryKey"`
	TaskType  string          `json:"task_type"`
	TenantID  string          `json:"tenant_id"`
	Payload   json.RawMessage `json:"payload" gorm:"type:jsonb"`
	Status    JobStatus       `json:"status"`
	Error     *string         `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName sets the jobs table name for gorm
func (Job) TableName() string {
	return "kb_ingestion_jobs"
}

// Repository defines the interface for job persistence
type Repository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	UpdateStatus(ctx context.Context, id int64, status JobStatus, errMsg *string) error
	SetResult(ctx context.Context, id int64, result json.RawMessage) error
}
