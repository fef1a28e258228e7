package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"knowchat/internal/model"
	"knowchat/internal/repository"
)

type OrgService struct {
	memberRepo *repository.MemberRepository
	teamRepo   *repository.TeamRepository
}

func NewOrgService(memberRepo *repository.MemberRepository, teamRepo *repository.TeamRepository) *OrgService {
	return &OrgService{memberRepo: memberRepo, teamRepo: teamRepo}
}

type CreateTeamInput struct {
	CreatorID uint
	Name      string
	MemberIDs []uint
}

// CreateTeam creates a team owned by the creator's company. Every listed
// member must belong to that same company; the creator is always included.
func (s *OrgService) CreateTeam(input CreateTeamInput) (*model.Team, error) {
	name := strings.TrimSpace(input.Name)
	if input.CreatorID == 0 || name == "" {
		return nil, ErrInvalidInput
	}

	creator, err := s.memberRepo.GetByID(input.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, ErrInvalidInput
	}

	for _, id := range input.MemberIDs {
		member, err := s.memberRepo.GetByID(id)
		if err != nil {
			return nil, err
		}
		if member == nil || member.CompanyID != creator.CompanyID {
			return nil, fmt.Errorf("%w: member %d is not in the company", ErrInvalidInput, id)
		}
	}

	team := &model.Team{
		CompanyID: creator.CompanyID,
		Name:      name,
		CreatedBy: creator.ID,
	}
	if err := s.teamRepo.CreateWithMembers(team, input.MemberIDs); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *OrgService) ListTeams(memberID uint) ([]model.Team, error) {
	if memberID == 0 {
		return nil, ErrInvalidInput
	}
	return s.teamRepo.ListByMemberID(memberID)
}

type CreateInviteInput struct {
	CreatorID uint
	Email     string
	TeamID    uint // 0 = company-wide invite
}

// CreateInvite issues an invite code for the creator's company. A team id,
// when given, must name a team the creator belongs to.
func (s *OrgService) CreateInvite(input CreateInviteInput) (*model.TeamInvite, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if input.CreatorID == 0 || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}

	creator, err := s.memberRepo.GetByID(input.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, ErrInvalidInput
	}
	if creator.CompanyID == 0 {
		return nil, fmt.Errorf("%w: inviter has no company", ErrInvalidInput)
	}

	if input.TeamID != 0 {
		team, err := s.teamRepo.GetByID(input.TeamID)
		if err != nil {
			return nil, err
		}
		if team == nil || team.CompanyID != creator.CompanyID {
			return nil, ErrTeamNotFound
		}
		isMember, err := s.teamRepo.IsMember(input.TeamID, creator.ID)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, ErrForbidden
		}
	}

	code, err := generateInviteCode()
	if err != nil {
		return nil, err
	}
	invite := &model.TeamInvite{
		CompanyID: creator.CompanyID,
		TeamID:    input.TeamID,
		Email:     email,
		Code:      code,
	}
	if err := s.teamRepo.CreateInvite(invite); err != nil {
		return nil, err
	}
	return invite, nil
}

func (s *OrgService) ListCompanyMembers(memberID uint) ([]model.Member, error) {
	member, err := s.memberRepo.GetByID(memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrInvalidInput
	}
	return s.memberRepo.ListByCompanyID(member.CompanyID)
}

func generateInviteCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
