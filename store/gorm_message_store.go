package store

import (
	"strings"

	"gorm.io/gorm"

	"github.com/scholarchat/chat_backend/models"
)

// GormMessageStore is the Postgres message log.
type GormMessageStore struct {
	db *gorm.DB
}

func NewGormMessageStore(db *gorm.DB) *GormMessageStore {
	return &GormMessageStore{db: db}
}

func (s *GormMessageStore) Append(groupID, senderID uint, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidArgument
	}

	message := models.Message{
		Content: content,
		GroupID: groupID,
		UserID:  senderID,
	}
	if err := s.db.Create(&message).Error; err != nil {
		return nil, translate(err)
	}

	// Load sender data so broadcasts and responses carry the display name.
	s.db.Preload("User").First(&message, message.ID)
	return &message, nil
}

func (s *GormMessageStore) ListByGroup(groupID uint) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.Where("group_id = ?", groupID).
		Order("created_at ASC, id ASC").
		Preload("User").
		Find(&messages).Error
	if err != nil {
		return nil, translate(err)
	}
	return messages, nil
}

func (s *GormMessageStore) DeleteByGroup(groupID uint) error {
	return translate(s.db.Where("group_id = ?", groupID).Delete(&models.Message{}).Error)
}
