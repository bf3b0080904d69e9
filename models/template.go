package models

import "gorm.io/gorm"

// EmailTemplate is a named subject/body pair with {{variable}} placeholders.
// Templates are edited by operators through the admin routes; the sequence
// engine only ever reads them.
type EmailTemplate struct {
	gorm.Model
	Name        string `gorm:"not null;uniqueIndex" json:"name"`
	Subject     string `gorm:"not null" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`

	Category string `json:"category"` // campaign the template belongs to
}
