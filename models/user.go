package models

import "time"

// User carries only what the pipeline needs: the scan-credit balance checked
// before any analysis work begins. Authentication is handled elsewhere.
type User struct {
	ID          string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email       string `gorm:"uniqueIndex" json:"email"`
	ScanCredits int    `gorm:"default:10" json:"scan_credits"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
