package flow

import (
	"errors"

	"chatbet/models"

	"gorm.io/gorm"
)

// GormStore persists cursors in the contact_flow_states table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetState(contactID uint) (*models.ContactFlowState, error) {
	var st models.ContactFlowState
	err := s.db.Where("contact_id = ?", contactID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *GormStore) SaveState(st *models.ContactFlowState) error {
	return s.db.Save(st).Error
}

func (s *GormStore) DeleteState(contactID uint) error {
	return s.db.Unscoped().Where("contact_id = ?", contactID).Delete(&models.ContactFlowState{}).Error
}
