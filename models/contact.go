package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact represents a single lead in the assessment funnel
type Contact struct {
	gorm.Model
	Email        string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName    string `json:"first_name"`
	BusinessName string `json:"business_name"`

	// Latest assessment snapshot - refreshed on every repeat intake
	CriticalCount int     `gorm:"default:0" json:"critical_count"`
	HighCount     int     `gorm:"default:0" json:"high_count"`
	MediumCount   int     `gorm:"default:0" json:"medium_count"`
	LowCount      int     `gorm:"default:0" json:"low_count"`
	HealthScore   float64 `gorm:"default:0" json:"health_score"`
	RevenueAtRisk float64 `gorm:"default:0" json:"revenue_at_risk"`

	// Suppression
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`

	// Metadata
	Source       string     `json:"source"` // assessment, no-show, call-outcome, payment, booking
	LastIntakeAt *time.Time `json:"last_intake_at"`

	// Relations
	SequenceRecords []SequenceRecord `gorm:"foreignKey:ContactID" json:"sequence_records,omitempty"`
}
