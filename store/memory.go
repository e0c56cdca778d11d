package store

import (
	"strings"
	"sync"
	"time"

	"github.com/scholarchat/chat_backend/models"
)

// Memory holds an in-process copy of the backend's durable state. Its
// Users/Groups/Messages views implement the store interfaces, backing the
// test suites and database-less local runs.
type Memory struct {
	mu sync.RWMutex

	nextUserID    uint
	nextGroupID   uint
	nextMessageID uint

	users    map[uint]*models.User
	byEmail  map[string]uint
	groups   map[uint]*models.Group
	byName   map[string]uint
	members  map[uint][]uint // groupID -> userIDs in join order
	messages map[uint][]models.Message

	// FailAppends makes Append return ErrUnavailable; used by tests to
	// simulate storage loss.
	FailAppends bool
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[uint]*models.User),
		byEmail:  make(map[string]uint),
		groups:   make(map[uint]*models.Group),
		byName:   make(map[string]uint),
		members:  make(map[uint][]uint),
		messages: make(map[uint][]models.Message),
	}
}

func (m *Memory) Users() UserStore       { return memoryUsers{m} }
func (m *Memory) Groups() GroupStore     { return memoryGroups{m} }
func (m *Memory) Messages() MessageStore { return memoryMessages{m} }

type memoryUsers struct{ m *Memory }

func (s memoryUsers) Create(user *models.User) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[user.Email]; ok {
		return ErrConflict
	}
	if user.Password != "" {
		if err := user.HashPassword(); err != nil {
			return err
		}
	}
	m.nextUserID++
	user.ID = m.nextUserID
	user.CreatedAt = time.Now()
	copied := *user
	m.users[user.ID] = &copied
	m.byEmail[user.Email] = user.ID
	return nil
}

func (s memoryUsers) GetByEmail(email string) (*models.User, error) {
	m := s.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m.users[id]
	return &copied, nil
}

func (s memoryUsers) GetByID(id uint) (*models.User, error) {
	m := s.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

type memoryGroups struct{ m *Memory }

func (s memoryGroups) Create(name string, creatorID uint) (*models.Group, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[name]; ok {
		return nil, ErrConflict
	}
	m.nextGroupID++
	group := &models.Group{
		ID:        m.nextGroupID,
		Name:      name,
		CreatorID: creatorID,
		CreatedAt: time.Now(),
	}
	m.groups[group.ID] = group
	m.byName[name] = group.ID
	m.members[group.ID] = []uint{creatorID}

	return m.snapshotGroup(group.ID), nil
}

func (s memoryGroups) Get(id uint) (*models.Group, error) {
	m := s.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.groups[id]; !ok {
		return nil, ErrNotFound
	}
	return m.snapshotGroup(id), nil
}

func (s memoryGroups) List() ([]models.Group, error) {
	m := s.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := []models.Group{}
	for id := uint(1); id <= m.nextGroupID; id++ {
		if _, ok := m.groups[id]; ok {
			groups = append(groups, *m.snapshotGroup(id))
		}
	}
	return groups, nil
}

func (s memoryGroups) AddMember(groupID, userID uint) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[groupID]; !ok {
		return ErrNotFound
	}
	for _, id := range m.members[groupID] {
		if id == userID {
			return nil
		}
	}
	m.members[groupID] = append(m.members[groupID], userID)
	return nil
}

func (s memoryGroups) IsMember(groupID, userID uint) (bool, error) {
	m := s.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.groups[groupID]; !ok {
		return false, ErrNotFound
	}
	for _, id := range m.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s memoryGroups) ListMembers(groupID uint) ([]models.User, error) {
	m := s.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.groups[groupID]; !ok {
		return nil, ErrNotFound
	}
	return m.memberUsers(groupID), nil
}

func (s memoryGroups) Delete(groupID uint) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupID]
	if !ok {
		return nil
	}
	delete(m.byName, group.Name)
	delete(m.groups, groupID)
	delete(m.members, groupID)
	return nil
}

type memoryMessages struct{ m *Memory }

func (s memoryMessages) Append(groupID, senderID uint, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidArgument
	}

	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAppends {
		return nil, ErrUnavailable
	}

	m.nextMessageID++
	message := models.Message{
		ID:        m.nextMessageID,
		Content:   content,
		GroupID:   groupID,
		UserID:    senderID,
		CreatedAt: time.Now(),
	}
	if sender, ok := m.users[senderID]; ok {
		message.User = *sender
	}
	m.messages[groupID] = append(m.messages[groupID], message)

	copied := message
	return &copied, nil
}

func (s memoryMessages) ListByGroup(groupID uint) ([]models.Message, error) {
	m := s.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := []models.Message{}
	messages = append(messages, m.messages[groupID]...)
	return messages, nil
}

func (s memoryMessages) DeleteByGroup(groupID uint) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.messages, groupID)
	return nil
}

// snapshotGroup and memberUsers expect m.mu to be held.

func (m *Memory) snapshotGroup(id uint) *models.Group {
	group := *m.groups[id]
	if creator, ok := m.users[group.CreatorID]; ok {
		group.Creator = *creator
	}
	group.Members = m.memberUsers(id)
	return &group
}

func (m *Memory) memberUsers(groupID uint) []models.User {
	users := []models.User{}
	for _, id := range m.members[groupID] {
		if user, ok := m.users[id]; ok {
			users = append(users, *user)
		}
	}
	return users
}
