package models

import (
	"time"
)

type Group struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;unique" json:"name"`
	CreatorID uint      `gorm:"not null" json:"creator_id"`
	Creator   User      `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Members   []User    `gorm:"many2many:group_members;" json:"members,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

// GroupMember is the membership join row. CreatedAt keeps join order, which
// is the order members are listed in.
type GroupMember struct {
	GroupID   uint      `gorm:"primaryKey" json:"group_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
