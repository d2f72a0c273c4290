package model

import "time"

// Stem types the separation backends can produce. Which subset shows up
// on a finished job depends on the backend and the model it ran.
const (
	StemVocals = "vocals"
	StemDrums  = "drums"
	StemBass   = "bass"
	StemGuitar = "guitar"
	StemPiano  = "piano"
	StemOther  = "other"
)

// StemTypes lists every valid stem type in output order.
var StemTypes = []string{StemVocals, StemDrums, StemBass, StemGuitar, StemPiano, StemOther}

// ValidStemType reports whether t is part of the fixed stem enumeration.
func ValidStemType(t string) bool {
	for _, s := range StemTypes {
		if s == t {
			return true
		}
	}
	return false
}

type SeparatedStem struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	JobID      string    `gorm:"index;not null" json:"jobId"`
	StemType   string    `gorm:"not null" json:"stemType"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	StorageKey string    `json:"-"`
	StorageURL string    `json:"storageUrl"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `gorm:"index" json:"expiresAt"`
}
