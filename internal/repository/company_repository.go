package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"knowchat/internal/model"
)

var (
	ErrCompanyNotFound  = errors.New("company not found")
	ErrSeatLimitReached = errors.New("company seat limit reached")
)

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

func (r *CompanyRepository) GetByID(id uint) (*model.Company, error) {
	var company model.Company
	if err := r.db.First(&company, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query company failed: %w", err)
	}
	return &company, nil
}

// AddMemberWithSeat claims a seat and creates the member in one transaction.
// The seat claim is a conditional increment, so two concurrent signups can
// not both take the last seat.
func (r *CompanyRepository) AddMemberWithSeat(member *model.Member) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Company{}).
			Where("id = ? AND seat_count < seat_limit", member.CompanyID).
			UpdateColumn("seat_count", gorm.Expr("seat_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("claim seat failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.Company{}).Where("id = ?", member.CompanyID).Count(&count).Error; err != nil {
				return fmt.Errorf("check company failed: %w", err)
			}
			if count == 0 {
				return ErrCompanyNotFound
			}
			return ErrSeatLimitReached
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("create member failed: %w", err)
		}
		return nil
	})
}

// BootstrapOwner provisions a company and its owner member transactionally
// with merge-write semantics: re-running with the same ids updates in place
// instead of duplicating.
func (r *CompanyRepository) BootstrapOwner(company *model.Company, owner *model.Member) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "seat_limit"}),
		}).Create(company).Error; err != nil {
			return fmt.Errorf("upsert company failed: %w", err)
		}

		owner.CompanyID = company.ID
		owner.Role = model.RoleOwner

		var existing model.Member
		err := tx.Where("username = ?", owner.Username).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(owner).Error; err != nil {
				return fmt.Errorf("create owner failed: %w", err)
			}
			if err := tx.Model(&model.Company{}).Where("id = ?", company.ID).
				UpdateColumn("seat_count", gorm.Expr("seat_count + 1")).Error; err != nil {
				return fmt.Errorf("claim owner seat failed: %w", err)
			}
		case err != nil:
			return fmt.Errorf("query owner failed: %w", err)
		default:
			owner.ID = existing.ID
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"email":         owner.Email,
				"display_name":  owner.DisplayName,
				"password_hash": owner.PasswordHash,
				"role":          model.RoleOwner,
				"company_id":    company.ID,
			}).Error; err != nil {
				return fmt.Errorf("update owner failed: %w", err)
			}
		}
		return nil
	})
}
