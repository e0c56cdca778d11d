// Package chat implements the messaging core: group lifecycle, the
// authorize-append-broadcast pipeline both ingestion paths share, and the
// cascade that keeps messages from outliving their group.
package chat

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scholarchat/chat_backend/models"
	"github.com/scholarchat/chat_backend/store"
)

// Broadcaster delivers an event to every live connection in a group's room.
// Implemented by websocket.Hub; tests substitute a recorder.
type Broadcaster interface {
	BroadcastToRoom(groupID uint, msgType string, payload interface{})
}

// Service is the ingestion gateway core. The HTTP controller and the
// WebSocket handler are thin adapters over it.
type Service struct {
	groups   store.GroupStore
	messages store.MessageStore
	rooms    Broadcaster
	log      *zap.Logger

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewService(groups store.GroupStore, messages store.MessageStore, rooms Broadcaster, log *zap.Logger) *Service {
	return &Service{
		groups:   groups,
		messages: messages,
		rooms:    rooms,
		log:      log,
		locks:    make(map[uint]*sync.Mutex),
	}
}

// groupLock returns the mutex serializing sends for one group. Different
// groups get different locks so their traffic never queues behind each
// other.
func (s *Service) groupLock(groupID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[groupID] = lock
	}
	return lock
}

func (s *Service) dropGroupLock(groupID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, groupID)
}

// Send accepts one message: membership check, append, broadcast. The group
// lock is held across all three steps so the log order and the broadcast
// order are the same for any interleaving of callers, whichever ingestion
// path they came in on. A message that fails to persist is never broadcast.
func (s *Service) Send(groupID, senderID uint, content string) (*models.Message, error) {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	isMember, err := s.groups.IsMember(groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, store.ErrForbidden
	}

	message, err := s.messages.Append(groupID, senderID, content)
	if err != nil {
		return nil, err
	}

	s.rooms.BroadcastToRoom(groupID, "message", message)
	return message, nil
}

// Messages returns a group's log in acceptance order. Only members may read
// it; a deleted or unknown group is a NotFound, not an empty log.
func (s *Service) Messages(groupID, requesterID uint) ([]models.Message, error) {
	isMember, err := s.groups.IsMember(groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, store.ErrForbidden
	}
	return s.messages.ListByGroup(groupID)
}

// CanJoinRoom reports whether a user is authorized to subscribe to a
// group's room. Room subscription is ephemeral and distinct from persisted
// membership, but it requires it.
func (s *Service) CanJoinRoom(groupID, userID uint) (bool, error) {
	return s.groups.IsMember(groupID, userID)
}

func (s *Service) CreateGroup(name string, creatorID uint) (*models.Group, error) {
	if name == "" {
		return nil, store.ErrInvalidArgument
	}
	return s.groups.Create(name, creatorID)
}

func (s *Service) Group(id uint) (*models.Group, error) {
	return s.groups.Get(id)
}

func (s *Service) Groups() ([]models.Group, error) {
	return s.groups.List()
}

func (s *Service) Members(groupID uint) ([]models.User, error) {
	return s.groups.ListMembers(groupID)
}

// JoinGroup adds a user to a group's membership. Joining a group you are
// already in succeeds without change.
func (s *Service) JoinGroup(groupID, userID uint) (*models.Group, error) {
	if err := s.groups.AddMember(groupID, userID); err != nil {
		return nil, err
	}

	group, err := s.groups.Get(groupID)
	if err != nil {
		return nil, err
	}

	s.rooms.BroadcastToRoom(groupID, "user_joined", map[string]interface{}{
		"group_id": groupID,
		"user_id":  userID,
	})
	return group, nil
}

const deleteRetries = 3

// DeleteGroup removes a group and all its messages. Only the creator may do
// this. Messages are purged before the group record goes away; if the
// record deletion fails after a successful purge it is retried, which is
// safe because record deletion is idempotent. The order guarantees no
// message ever references a deleted group.
func (s *Service) DeleteGroup(groupID, requesterID uint) error {
	group, err := s.groups.Get(groupID)
	if err != nil {
		return err
	}
	if group.CreatorID != requesterID {
		return store.ErrForbidden
	}

	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.messages.DeleteByGroup(groupID); err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err = s.groups.Delete(groupID)
		if err == nil {
			break
		}
		if attempt+1 >= deleteRetries {
			s.log.Error("group record deletion failed after purge",
				zap.Uint("group_id", groupID), zap.Error(err))
			return err
		}
		s.log.Warn("retrying group record deletion",
			zap.Uint("group_id", groupID), zap.Error(err))
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}

	s.rooms.BroadcastToRoom(groupID, "group_deleted", map[string]interface{}{
		"group_id": groupID,
	})
	s.dropGroupLock(groupID)
	return nil
}

// IsNotFound and friends let adapters map taxonomy errors to their surface
// without importing gorm.

func IsNotFound(err error) bool        { return errors.Is(err, store.ErrNotFound) }
func IsForbidden(err error) bool       { return errors.Is(err, store.ErrForbidden) }
func IsConflict(err error) bool        { return errors.Is(err, store.ErrConflict) }
func IsInvalidArgument(err error) bool { return errors.Is(err, store.ErrInvalidArgument) }
func IsUnavailable(err error) bool     { return errors.Is(err, store.ErrUnavailable) }
