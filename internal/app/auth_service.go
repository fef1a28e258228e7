package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"knowchat/internal/model"
	"knowchat/internal/pkg/jwtutil"
	"knowchat/internal/repository"
)

type AuthService struct {
	memberRepo    *repository.MemberRepository
	companyRepo   *repository.CompanyRepository
	teamRepo      *repository.TeamRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
	CompanyID   uint   // ignored when InviteCode is set
	InviteCode  string // joins the inviting company (and team, if any)
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token  string
	Member *model.Member
}

func NewAuthService(
	memberRepo *repository.MemberRepository,
	companyRepo *repository.CompanyRepository,
	teamRepo *repository.TeamRepository,
	jwtSecret string,
	jwtExpiration time.Duration,
) *AuthService {
	return &AuthService{
		memberRepo:    memberRepo,
		companyRepo:   companyRepo,
		teamRepo:      teamRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// Register joins a company either through an invite code or an explicit
// company id. The seat check and member create run in one transaction.
func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)

	if username == "" || email == "" || !strings.Contains(email, "@") || len(password) < 8 {
		return nil, ErrInvalidInput
	}

	companyID := input.CompanyID
	var invite *model.TeamInvite
	if code := strings.TrimSpace(input.InviteCode); code != "" {
		found, err := s.teamRepo.GetInviteByCode(code)
		if err != nil {
			return nil, err
		}
		if found == nil || found.AcceptedAt != nil {
			return nil, ErrInviteInvalid
		}
		if found.CompanyID == 0 {
			return nil, fmt.Errorf("%w: invite is missing a company", ErrInviteInvalid)
		}
		invite = found
		companyID = found.CompanyID
	}
	if companyID == 0 {
		return nil, fmt.Errorf("%w: company id is required", ErrInvalidInput)
	}

	existingByName, err := s.memberRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existingByName != nil {
		return nil, ErrUsernameExists
	}
	existingByEmail, err := s.memberRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existingByEmail != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = username
	}

	member := &model.Member{
		CompanyID:    companyID,
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		Role:         model.RoleMember,
		PasswordHash: string(hash),
	}
	if err := s.companyRepo.AddMemberWithSeat(member); err != nil {
		switch {
		case errors.Is(err, repository.ErrSeatLimitReached):
			return nil, ErrSeatLimitReached
		case errors.Is(err, repository.ErrCompanyNotFound):
			return nil, fmt.Errorf("%w: unknown company", ErrInvalidInput)
		default:
			return nil, err
		}
	}

	if invite != nil {
		if invite.TeamID != 0 {
			if err := s.teamRepo.AddMember(invite.TeamID, member.ID); err != nil {
				return nil, err
			}
		}
		if err := s.teamRepo.MarkInviteAccepted(invite.ID); err != nil {
			return nil, err
		}
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, member.ID, member.CompanyID, member.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Member: member}, nil
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	member, err := s.memberRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, member.ID, member.CompanyID, member.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Member: member}, nil
}

func (s *AuthService) GetMemberByID(id uint) (*model.Member, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.memberRepo.GetByID(id)
}
