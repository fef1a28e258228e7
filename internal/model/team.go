package model

import "time"

type Team struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CompanyID uint      `gorm:"not null;index" json:"company_id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	CreatedBy uint      `gorm:"not null" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamMember links a company member into a team. The creator gets a row too.
type TeamMember struct {
	TeamID   uint      `gorm:"primaryKey" json:"team_id"`
	MemberID uint      `gorm:"primaryKey" json:"member_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type TeamInvite struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CompanyID  uint       `gorm:"not null;index" json:"company_id"`
	TeamID     uint       `gorm:"index" json:"team_id"` // 0 = company-wide invite
	Email      string     `gorm:"size:128;not null" json:"email"`
	Code       string     `gorm:"size:64;not null;uniqueIndex" json:"code"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
