package model

import "time"

// Job statuses. A job starts as pending, moves to processing when a
// worker picks it up and ends in exactly one of completed or failed.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

type ProcessingJob struct {
	ID               string     `gorm:"primaryKey" json:"id"`
	AudioFileID      string     `gorm:"index;not null" json:"audioFileId"`
	Status           string     `gorm:"default:pending" json:"status"`
	Progress         int        `gorm:"default:0" json:"progress"`
	ErrorMessage     string     `json:"error,omitempty"`
	EstimatedSeconds int        `json:"estimatedSeconds"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	ExpiresAt        time.Time  `gorm:"index" json:"expiresAt"`
}

// Terminal reports whether the job reached an end state.
func (j *ProcessingJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
