package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"knowchat/internal/model"
)

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) Create(thread *model.Thread) error {
	if err := r.db.Create(thread).Error; err != nil {
		return fmt.Errorf("create thread failed: %w", err)
	}
	return nil
}

func (r *ThreadRepository) GetByID(id uint) (*model.Thread, error) {
	var thread model.Thread
	if err := r.db.First(&thread, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query thread failed: %w", err)
	}
	return &thread, nil
}

func (r *ThreadRepository) ListPersonal(memberID uint) ([]model.Thread, error) {
	var threads []model.Thread
	err := r.db.Where("member_id = ? AND scope_type = ?", memberID, model.ScopePersonal).
		Order("updated_at DESC").Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("list personal threads failed: %w", err)
	}
	return threads, nil
}

func (r *ThreadRepository) ListByTeam(teamID uint) ([]model.Thread, error) {
	var threads []model.Thread
	err := r.db.Where("team_id = ? AND scope_type = ?", teamID, model.ScopeTeam).
		Order("updated_at DESC").Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("list team threads failed: %w", err)
	}
	return threads, nil
}

// Touch bumps updated_at; called on every message or source addition.
func (r *ThreadRepository) Touch(id uint) error {
	if err := r.db.Model(&model.Thread{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error; err != nil {
		return fmt.Errorf("touch thread failed: %w", err)
	}
	return nil
}
