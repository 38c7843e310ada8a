package models

import (
	"time"

	"gorm.io/gorm"
)

// Participant is a local snapshot of the identity data the duel engine needs.
// Populated by the participant sync worker from the profile service.
type Participant struct {
	ID             string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null;type:varchar(64)" json:"external_user_id"`
	Username       string  `gorm:"index;not null" json:"username"`
	ReferredByID   *string `gorm:"type:varchar(64)" json:"referred_by_id,omitempty"`
	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
