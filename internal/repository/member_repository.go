package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"knowchat/internal/model"
)

type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) GetByUsername(username string) (*model.Member, error) {
	var member model.Member
	if err := r.db.Where("username = ?", username).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query member by username failed: %w", err)
	}
	return &member, nil
}

func (r *MemberRepository) GetByEmail(email string) (*model.Member, error) {
	var member model.Member
	if err := r.db.Where("email = ?", email).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query member by email failed: %w", err)
	}
	return &member, nil
}

func (r *MemberRepository) GetByID(id uint) (*model.Member, error) {
	var member model.Member
	if err := r.db.First(&member, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query member by id failed: %w", err)
	}
	return &member, nil
}

func (r *MemberRepository) ListByCompanyID(companyID uint) ([]model.Member, error) {
	var members []model.Member
	if err := r.db.Where("company_id = ?", companyID).Order("created_at ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list company members failed: %w", err)
	}
	return members, nil
}
