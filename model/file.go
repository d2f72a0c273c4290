// Package model defines database models
package model

import "time"

// AudioFile is a single uploaded track. Uploads may be anonymous, in
// which case UserID is empty.
type AudioFile struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"index" json:"-"`
	OriginalName string    `json:"name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	StorageKey   string    `json:"-"` // Opaque object store locator, avoids name conflicts
	StorageURL   string    `json:"storageUrl"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
	ExpiresAt    time.Time `gorm:"index" json:"expiresAt"`
	Expired      bool      `json:"-"`
}
