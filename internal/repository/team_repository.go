package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"knowchat/internal/model"
)

type TeamRepository struct {
	db *gorm.DB
}

func NewTeamRepository(db *gorm.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// CreateWithMembers creates the team and its membership rows in one
// transaction. The creator is always included.
func (r *TeamRepository) CreateWithMembers(team *model.Team, memberIDs []uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(team).Error; err != nil {
			return fmt.Errorf("create team failed: %w", err)
		}
		now := time.Now()
		seen := map[uint]bool{}
		rows := make([]model.TeamMember, 0, len(memberIDs)+1)
		for _, id := range append([]uint{team.CreatedBy}, memberIDs...) {
			if id == 0 || seen[id] {
				continue
			}
			seen[id] = true
			rows = append(rows, model.TeamMember{TeamID: team.ID, MemberID: id, JoinedAt: now})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("create team members failed: %w", err)
		}
		return nil
	})
}

func (r *TeamRepository) GetByID(id uint) (*model.Team, error) {
	var team model.Team
	if err := r.db.First(&team, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query team failed: %w", err)
	}
	return &team, nil
}

// ListByMemberID returns the teams a member belongs to, newest first.
func (r *TeamRepository) ListByMemberID(memberID uint) ([]model.Team, error) {
	var teams []model.Team
	err := r.db.
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.member_id = ?", memberID).
		Order("teams.created_at DESC").
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("list teams failed: %w", err)
	}
	return teams, nil
}

func (r *TeamRepository) IsMember(teamID, memberID uint) (bool, error) {
	var count int64
	err := r.db.Model(&model.TeamMember{}).
		Where("team_id = ? AND member_id = ?", teamID, memberID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check team membership failed: %w", err)
	}
	return count > 0, nil
}

func (r *TeamRepository) CreateInvite(invite *model.TeamInvite) error {
	if err := r.db.Create(invite).Error; err != nil {
		return fmt.Errorf("create team invite failed: %w", err)
	}
	return nil
}

func (r *TeamRepository) GetInviteByCode(code string) (*model.TeamInvite, error) {
	var invite model.TeamInvite
	if err := r.db.Where("code = ?", code).First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query invite failed: %w", err)
	}
	return &invite, nil
}

func (r *TeamRepository) MarkInviteAccepted(inviteID uint) error {
	now := time.Now()
	if err := r.db.Model(&model.TeamInvite{}).Where("id = ?", inviteID).
		Update("accepted_at", &now).Error; err != nil {
		return fmt.Errorf("mark invite accepted failed: %w", err)
	}
	return nil
}

func (r *TeamRepository) AddMember(teamID, memberID uint) error {
	row := model.TeamMember{TeamID: teamID, MemberID: memberID, JoinedAt: time.Now()}
	if err := r.db.Where(model.TeamMember{TeamID: teamID, MemberID: memberID}).
		FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("add team member failed: %w", err)
	}
	return nil
}
