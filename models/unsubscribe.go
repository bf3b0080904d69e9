package models

import "gorm.io/gorm"

// Unsubscribe records an opt-out request. Kept as an audit trail alongside
// the contact's suppression flag.
type Unsubscribe struct {
	gorm.Model
	Email    string  `gorm:"not null;index" json:"email"`
	Campaign *string `json:"campaign,omitempty"`

	Reason    string `json:"reason"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}
