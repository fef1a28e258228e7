package model

import "time"

const (
	ScopePersonal = "personal"
	ScopeTeam     = "team"
)

type Thread struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MemberID  uint      `gorm:"not null;index" json:"member_id"`
	ScopeType string    `gorm:"size:16;not null;index" json:"scope_type"`
	TeamID    uint      `gorm:"index" json:"team_id"` // 0 for personal threads
	TeamName  string    `gorm:"size:128" json:"team_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
