package model

import (
	"encoding/json"
	"time"
)

const (
	SourceTypePDF  = "pdf"
	SourceTypeText = "text"
	SourceTypeURL  = "url"
)

// PricingPlan is a value object serialized into Source.Plans.
// PriceMonthlyYen nil means the price is unknown; Name is never empty.
type PricingPlan struct {
	Name            string `json:"name"`
	PriceMonthlyYen *int   `json:"price_monthly_yen,omitempty"`
	Note            string `json:"note"`
}

// Source is a unit of ingested knowledge. ThreadID 0 places it in the owner's
// global personal collection; a non-zero ThreadID places it in that team
// thread's own collection. Immutable after creation.
type Source struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	MemberID        uint      `gorm:"not null;index" json:"member_id"`
	ThreadID        uint      `gorm:"index" json:"thread_id"`
	Name            string    `gorm:"size:256;not null" json:"name"`
	Text            string    `gorm:"type:mediumtext;not null" json:"text"`
	Summary         string    `gorm:"type:text" json:"summary"`
	Plans           string    `gorm:"type:text" json:"-"` // JSON array of PricingPlan
	StoragePath     string    `gorm:"size:512" json:"storage_path"`
	SourceType      string    `gorm:"size:16;not null" json:"source_type"`
	InheritedFromID uint      `gorm:"index" json:"inherited_from_id"` // 0 = native
	CreatedAt       time.Time `json:"created_at"`
}

// PricingPlans returns the parsed plan list; empty on parse error.
func (s *Source) PricingPlans() []PricingPlan {
	if s.Plans == "" {
		return nil
	}
	var plans []PricingPlan
	_ = json.Unmarshal([]byte(s.Plans), &plans)
	return plans
}

// SetPricingPlans stores the plan list as JSON.
func (s *Source) SetPricingPlans(plans []PricingPlan) {
	if len(plans) == 0 {
		s.Plans = "[]"
		return
	}
	b, _ := json.Marshal(plans)
	s.Plans = string(b)
}
