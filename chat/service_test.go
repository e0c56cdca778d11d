package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scholarchat/chat_backend/models"
	"github.com/scholarchat/chat_backend/store"
)

// recorder captures broadcasts in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	groupID uint
	msgType string
	payload interface{}
}

func (r *recorder) BroadcastToRoom(groupID uint, msgType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{groupID: groupID, msgType: msgType, payload: payload})
}

func (r *recorder) messageIDs(groupID uint) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []uint{}
	for _, evt := range r.events {
		if evt.groupID == groupID && evt.msgType == "message" {
			ids = append(ids, evt.payload.(*models.Message).ID)
		}
	}
	return ids
}

func (r *recorder) count(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.msgType == msgType {
			n++
		}
	}
	return n
}

type fixture struct {
	mem     *store.Memory
	rooms   *recorder
	service *Service
	alice   *models.User
	bob     *models.User
	carol   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	rooms := &recorder{}

	f := &fixture{
		mem:     mem,
		rooms:   rooms,
		service: NewService(mem.Groups(), mem.Messages(), rooms, zap.NewNop()),
		alice:   &models.User{Name: "alice", Email: "alice@example.com", Password: "secret"},
		bob:     &models.User{Name: "bob", Email: "bob@example.com", Password: "secret"},
		carol:   &models.User{Name: "carol", Email: "carol@example.com", Password: "secret"},
	}
	for _, u := range []*models.User{f.alice, f.bob, f.carol} {
		require.NoError(t, mem.Users().Create(u))
	}
	return f
}

func TestSendPersistsAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)

	message, err := f.service.Send(group.ID, f.alice.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", message.Content)
	assert.Equal(t, f.alice.ID, message.UserID)
	assert.NotZero(t, message.ID)
	assert.False(t, message.CreatedAt.IsZero())

	messages, err := f.service.Messages(group.ID, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, message.ID, messages[0].ID)

	assert.Equal(t, []uint{message.ID}, f.rooms.messageIDs(group.ID))
}

func TestSendNonMemberRejected(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)

	_, err = f.service.Send(group.ID, f.carol.ID, "let me in")
	assert.ErrorIs(t, err, store.ErrForbidden)

	messages, err := f.service.Messages(group.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, messages, "a rejected send must not persist")
	assert.Empty(t, f.rooms.messageIDs(group.ID), "a rejected send must not broadcast")
}

func TestSendUnknownGroup(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Send(99, f.alice.ID, "hello?")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSendEmptyContent(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)

	_, err = f.service.Send(group.ID, f.alice.ID, "")
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
	assert.Empty(t, f.rooms.messageIDs(group.ID))
}

func TestSendStorageDownMeansNoBroadcast(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)

	f.mem.FailAppends = true
	_, err = f.service.Send(group.ID, f.alice.ID, "hi")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Empty(t, f.rooms.messageIDs(group.ID), "unpersisted messages are never broadcast")
}

// TestSendOrderingUnderContention drives many concurrent senders at one
// group and checks that the log order and the broadcast order are
// identical.
func TestSendOrderingUnderContention(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)
	_, err = f.service.JoinGroup(group.ID, f.bob.ID)
	require.NoError(t, err)
	_, err = f.service.JoinGroup(group.ID, f.carol.ID)
	require.NoError(t, err)

	senders := []uint{f.alice.ID, f.bob.ID, f.carol.ID}
	const perSender = 30

	var wg sync.WaitGroup
	for _, sender := range senders {
		wg.Add(1)
		go func(sender uint) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := f.service.Send(group.ID, sender, fmt.Sprintf("from %d: %d", sender, i))
				assert.NoError(t, err)
			}
		}(sender)
	}
	wg.Wait()

	messages, err := f.service.Messages(group.ID, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, messages, len(senders)*perSender)

	logOrder := make([]uint, 0, len(messages))
	for _, msg := range messages {
		logOrder = append(logOrder, msg.ID)
	}
	assert.Equal(t, logOrder, f.rooms.messageIDs(group.ID),
		"broadcast order must match log order for any interleaving")
}

func TestMessagesNonMemberForbidden(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)

	_, err = f.service.Messages(group.ID, f.carol.ID)
	assert.ErrorIs(t, err, store.ErrForbidden)
}

func TestJoinGroupIdempotent(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)

	first, err := f.service.JoinGroup(group.ID, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, first.Members, 2)

	again, err := f.service.JoinGroup(group.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Len(t, again.Members, 2, "re-joining must be a no-op success")
}

func TestJoinGroupConcurrentSameUser(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.JoinGroup(group.ID, f.bob.ID)
			assert.NoError(t, err, "racing re-joins are no-op successes, not conflicts")
		}()
	}
	wg.Wait()

	members, err := f.service.Members(group.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestDeleteGroupOnlyCreator(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)
	_, err = f.service.JoinGroup(group.ID, f.bob.ID)
	require.NoError(t, err)

	err = f.service.DeleteGroup(group.ID, f.bob.ID)
	assert.ErrorIs(t, err, store.ErrForbidden)

	_, err = f.service.Group(group.ID)
	require.NoError(t, err, "a forbidden delete must leave the group intact")
}

func TestDeleteGroupCascades(t *testing.T) {
	f := newFixture(t)
	group, err := f.service.CreateGroup("alpha", f.alice.ID)
	require.NoError(t, err)
	_, err = f.service.Send(group.ID, f.alice.ID, "hi")
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteGroup(group.ID, f.alice.ID))

	_, err = f.service.Group(group.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.service.Messages(group.ID, f.alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound,
		"a deleted group's log is gone, not empty")

	messages, err := f.mem.Messages().ListByGroup(group.ID)
	require.NoError(t, err)
	assert.Empty(t, messages, "cascade must purge the log itself")
}

// flakyGroups fails record deletion a configured number of times before
// letting it through.
type flakyGroups struct {
	store.GroupStore
	mu          sync.Mutex
	failsLeft   int
	deleteCalls int
}

func (f *flakyGroups) Delete(groupID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.failsLeft > 0 {
		f.failsLeft--
		return store.ErrUnavailable
	}
	return f.GroupStore.Delete(groupID)
}

func TestDeleteGroupRetriesRecordDeletion(t *testing.T) {
	mem := store.NewMemory()
	alice := &models.User{Name: "alice", Email: "alice@example.com", Password: "secret"}
	require.NoError(t, mem.Users().Create(alice))

	groups := &flakyGroups{GroupStore: mem.Groups(), failsLeft: 2}
	rooms := &recorder{}
	service := NewService(groups, mem.Messages(), rooms, zap.NewNop())

	group, err := service.CreateGroup("alpha", alice.ID)
	require.NoError(t, err)
	_, err = service.Send(group.ID, alice.ID, "hi")
	require.NoError(t, err)

	require.NoError(t, service.DeleteGroup(group.ID, alice.ID),
		"record deletion is idempotent, so retrying after purge must succeed")
	assert.Equal(t, 3, groups.deleteCalls)

	_, err = service.Group(group.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, rooms.count("group_deleted"))
}
