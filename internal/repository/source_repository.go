package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"knowchat/internal/model"
)

type SourceRepository struct {
	db *gorm.DB
}

func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) Create(source *model.Source) error {
	if err := r.db.Create(source).Error; err != nil {
		return fmt.Errorf("create source failed: %w", err)
	}
	return nil
}

// ListPersonal returns the member's global personal collection (thread_id 0),
// newest first.
func (r *SourceRepository) ListPersonal(memberID uint, limit int) ([]model.Source, error) {
	var sources []model.Source
	if err := r.db.Where("member_id = ? AND thread_id = 0", memberID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("list personal sources failed: %w", err)
	}
	return sources, nil
}

// ListByThread returns a team thread's own collection, newest first.
func (r *SourceRepository) ListByThread(threadID uint, limit int) ([]model.Source, error) {
	var sources []model.Source
	if err := r.db.Where("thread_id = ?", threadID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("list thread sources failed: %w", err)
	}
	return sources, nil
}

func (r *SourceRepository) GetByID(id uint) (*model.Source, error) {
	var source model.Source
	if err := r.db.First(&source, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query source failed: %w", err)
	}
	return &source, nil
}

func (r *SourceRepository) Delete(id uint) error {
	if err := r.db.Delete(&model.Source{}, id).Error; err != nil {
		return fmt.Errorf("delete source failed: %w", err)
	}
	return nil
}
