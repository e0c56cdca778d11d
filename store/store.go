// Package store holds the durable state of the chat backend: users, group
// membership and the per-group message log. Implementations exist for
// Postgres (gorm) and for memory; everything above this package talks to the
// interfaces only.
package store

import (
	"github.com/scholarchat/chat_backend/models"
)

// UserStore persists user accounts.
type UserStore interface {
	Create(user *models.User) error
	GetByEmail(email string) (*models.User, error)
	GetByID(id uint) (*models.User, error)
}

// GroupStore is the membership store: which users belong to which group.
type GroupStore interface {
	// Create makes a new group with the creator as its first member.
	// Returns ErrConflict when the name is already taken.
	Create(name string, creatorID uint) (*models.Group, error)
	Get(id uint) (*models.Group, error)
	List() ([]models.Group, error)
	// AddMember is idempotent; adding an existing member succeeds.
	// Returns ErrNotFound when the group does not exist.
	AddMember(groupID, userID uint) error
	// IsMember returns ErrNotFound when the group does not exist.
	IsMember(groupID, userID uint) (bool, error)
	// ListMembers returns members in join order.
	ListMembers(groupID uint) ([]models.User, error)
	// Delete removes the group record. Idempotent; deleting an absent
	// group succeeds. Message cleanup is the caller's responsibility and
	// must happen first.
	Delete(groupID uint) error
}

// MessageStore is the append-only per-group message log. It trusts its
// caller on authorization; policy lives in the chat service.
type MessageStore interface {
	// Append persists a message and assigns its id and timestamp.
	// Returns ErrInvalidArgument for empty content.
	Append(groupID, senderID uint, content string) (*models.Message, error)
	// ListByGroup returns messages in acceptance order, oldest first.
	// A group with no messages yields an empty slice, not an error.
	ListByGroup(groupID uint) ([]models.Message, error)
	// DeleteByGroup purges all messages of a group. Idempotent.
	DeleteByGroup(groupID uint) error
}
