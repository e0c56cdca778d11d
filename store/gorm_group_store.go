package store

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scholarchat/chat_backend/models"
)

// GormGroupStore is the Postgres membership store.
type GormGroupStore struct {
	db *gorm.DB
}

func NewGormGroupStore(db *gorm.DB) *GormGroupStore {
	return &GormGroupStore{db: db}
}

// Create inserts the group and its creator membership in one transaction so
// the creator-is-a-member invariant can never be observed broken.
func (s *GormGroupStore) Create(name string, creatorID uint) (*models.Group, error) {
	group := models.Group{
		Name:      name,
		CreatorID: creatorID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		return tx.Create(&models.GroupMember{
			GroupID: group.ID,
			UserID:  creatorID,
		}).Error
	})
	if err != nil {
		return nil, translate(err)
	}

	s.db.Preload("Creator").Preload("Members").First(&group, group.ID)
	return &group, nil
}

func (s *GormGroupStore) Get(id uint) (*models.Group, error) {
	var group models.Group
	if err := s.db.Preload("Creator").First(&group, id).Error; err != nil {
		return nil, translate(err)
	}
	members, err := s.ListMembers(id)
	if err != nil {
		return nil, err
	}
	group.Members = members
	return &group, nil
}

func (s *GormGroupStore) List() ([]models.Group, error) {
	var groups []models.Group
	if err := s.db.Preload("Creator").Preload("Members").Order("id ASC").Find(&groups).Error; err != nil {
		return nil, translate(err)
	}
	return groups, nil
}

func (s *GormGroupStore) AddMember(groupID, userID uint) error {
	if err := s.db.First(&models.Group{}, groupID).Error; err != nil {
		return translate(err)
	}

	// Upsert on the composite key so concurrent joins by the same user are
	// both no-op successes, never a conflict.
	return translate(s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.GroupMember{
		GroupID: groupID,
		UserID:  userID,
	}).Error)
}

func (s *GormGroupStore) IsMember(groupID, userID uint) (bool, error) {
	if err := s.db.First(&models.Group{}, groupID).Error; err != nil {
		return false, translate(err)
	}

	var member models.GroupMember
	err := s.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, translate(err)
}

func (s *GormGroupStore) ListMembers(groupID uint) ([]models.User, error) {
	if err := s.db.First(&models.Group{}, groupID).Error; err != nil {
		return nil, translate(err)
	}

	var users []models.User
	err := s.db.
		Joins("JOIN group_members ON group_members.user_id = users.id").
		Where("group_members.group_id = ?", groupID).
		Order("group_members.created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, translate(err)
	}
	return users, nil
}

func (s *GormGroupStore) Delete(groupID uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, groupID).Error
	})
	return translate(err)
}
