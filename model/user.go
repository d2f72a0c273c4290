package model

import "time"

// Plan tiers decide how long uploads are retained.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	PlanTier  string    `gorm:"default:free" json:"planTier"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserUsage aggregates per-user processing counters by day. The cleanup
// sweep also books freed bytes here. Not load-bearing for correctness.
type UserUsage struct {
	UserID         string    `gorm:"primaryKey" json:"-"`
	Date           time.Time `gorm:"primaryKey" json:"date"`
	FilesProcessed int       `json:"filesProcessed"`
	BytesProcessed int64     `json:"bytesProcessed"`
	BytesFreed     int64     `json:"bytesFreed"`
}
