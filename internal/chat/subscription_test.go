package chat_test

import (
	"Atelier/internal/chat"
	"Atelier/internal/chat/chattest"
	"Atelier/internal/model"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subFixture struct {
	store  *chattest.Store
	broker *chattest.Broker
	log    *chat.MessageLog
	unread *chat.UnreadTracker
	subs   *chat.SubscriptionManager
}

func newSubFixture() *subFixture {
	store := chattest.NewStore()
	broker := chattest.NewBroker()
	store.Publish = broker.Publish
	log := chat.NewMessageLog(store)
	unread := chat.NewUnreadTracker(store, log, requester)
	return &subFixture{
		store:  store,
		broker: broker,
		log:    log,
		unread: unread,
		subs:   chat.NewSubscriptionManager(broker, log, unread, requester),
	}
}

func staffThread(id uint64) *model.Thread {
	return &model.Thread{ID: id, Kind: model.ThreadKindStaff, ParticipantA: requesterID, ParticipantB: stylistID}
}

func TestAttachStartsIdle(t *testing.T) {
	f := newSubFixture()
	state, threadID := f.subs.State()
	assert.Equal(t, chat.StateIdle, state)
	assert.Zero(t, threadID)
	assert.False(t, f.subs.Live())
}

func TestAttachSwitchKeepsSingleChannel(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	require.NoError(t, f.subs.Attach(ctx, staffThread(1)))
	require.NoError(t, f.subs.Attach(ctx, staffThread(2)))
	require.NoError(t, f.subs.Attach(ctx, staffThread(2)))

	assert.Equal(t, 1, f.broker.LiveCount())
	assert.Equal(t, []uint64{2}, f.broker.LiveThreads())
	assert.Equal(t, 1, f.broker.Opened(2))

	state, threadID := f.subs.State()
	assert.Equal(t, chat.StateAttached, state)
	assert.Equal(t, uint64(2), threadID)
}

func TestEventsForOtherThreadsAreIgnored(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	require.NoError(t, f.subs.Attach(ctx, staffThread(1)))
	late := f.broker.Capture(1)
	require.NotNil(t, late)
	require.NoError(t, f.subs.Attach(ctx, staffThread(2)))

	// 旧通道关闭后迟到的事件
	late(chat.Event{Type: chat.EventInserted, Message: *msg(10, 1, stylistID, 1)})
	// 当前通道收到别的会话的事件
	f.broker.Deliver(2, chat.Event{Type: chat.EventInserted, Message: *msg(11, 3, stylistID, 2)})
	f.subs.Wait()

	assert.Empty(t, f.log.List(1))
	assert.Empty(t, f.log.List(3))
	assert.Zero(t, f.store.MarkReadCalls)
}

func TestInsertedFromOtherPartyIsMarkedRead(t *testing.T) {
	f := newSubFixture()
	th := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	require.NoError(t, f.subs.Attach(context.Background(), th))

	stored, err := f.store.CreateMessage(context.Background(), &model.Message{ThreadID: th.ID, SenderID: stylistID, Content: "your fitting is ready"})
	require.NoError(t, err)
	f.subs.Wait()

	got, ok := f.log.Get(th.ID, stored.ID)
	require.True(t, ok)
	assert.True(t, got.IsRead)
	assert.True(t, f.store.StoredMessages(th.ID)[0].IsRead)
	assert.Zero(t, f.unread.Count(th.ID))
}

func TestOwnInsertDoesNotMarkRead(t *testing.T) {
	f := newSubFixture()
	th := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	require.NoError(t, f.subs.Attach(context.Background(), th))

	_, err := f.store.CreateMessage(context.Background(), &model.Message{ThreadID: th.ID, SenderID: requesterID, Content: "hi"})
	require.NoError(t, err)
	f.subs.Wait()

	assert.Len(t, f.log.List(th.ID), 1)
	assert.Zero(t, f.store.MarkReadCalls)
}

func TestUpdatedEventMergesReadFlag(t *testing.T) {
	f := newSubFixture()
	require.NoError(t, f.subs.Attach(context.Background(), staffThread(42)))
	f.log.ApplyIncoming(msg(501, 42, requesterID, 1))

	read := msg(501, 42, requesterID, 1)
	read.IsRead = true
	f.broker.Publish(chat.Event{Type: chat.EventUpdated, Message: *read})
	f.broker.Publish(chat.Event{Type: chat.EventUpdated, Message: *msg(501, 42, requesterID, 1)})
	f.subs.Wait()

	got, ok := f.log.Get(42, 501)
	require.True(t, ok)
	assert.True(t, got.IsRead)
	assert.Zero(t, f.store.MarkReadCalls)
}

func TestOpenRetriesOnceThenGoesIdle(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	f.broker.FailOpens = 1
	require.NoError(t, f.subs.Attach(ctx, staffThread(1)))
	assert.True(t, f.subs.Live())

	f.broker.FailOpens = 2
	err := f.subs.Attach(ctx, staffThread(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chat.ErrTransient))
	state, _ := f.subs.State()
	assert.Equal(t, chat.StateIdle, state)
	assert.Zero(t, f.broker.LiveCount())

	// 下一次激活重新尝试
	require.NoError(t, f.subs.Attach(ctx, staffThread(2)))
	assert.Equal(t, []uint64{2}, f.broker.LiveThreads())
}

func TestDetachClosesChannel(t *testing.T) {
	f := newSubFixture()
	require.NoError(t, f.subs.Attach(context.Background(), staffThread(1)))
	handler := f.broker.Capture(1)

	f.subs.Detach()
	handler(chat.Event{Type: chat.EventInserted, Message: *msg(1, 1, stylistID, 1)})

	assert.Zero(t, f.broker.LiveCount())
	assert.False(t, f.subs.Live())
	assert.Empty(t, f.log.List(1))
}

func TestBurstOfInsertsCoalescesMarkRead(t *testing.T) {
	f := newSubFixture()
	th := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	require.NoError(t, f.subs.Attach(context.Background(), th))

	gate := make(chan struct{})
	f.store.MarkReadGate = gate
	for i := 1; i <= 5; i++ {
		f.broker.Publish(chat.Event{Type: chat.EventInserted, Message: *msg(uint64(100+i), th.ID, stylistID, i)})
	}
	close(gate)
	f.subs.Wait()

	// 第一轮执行期间到达的消息只追加一轮
	assert.Equal(t, 2, f.store.MarkReadCalls)
	assert.Len(t, f.log.List(th.ID), 5)
	for _, m := range f.log.List(th.ID) {
		assert.True(t, m.IsRead)
	}
}

func TestObserverDoesNotMarkPushedMessagesRead(t *testing.T) {
	store := chattest.NewStore()
	broker := chattest.NewBroker()
	store.Publish = broker.Publish
	log := chat.NewMessageLog(store)
	subs := chat.NewSubscriptionManager(broker, log, chat.NewUnreadTracker(store, log, admin), admin)
	th := store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	require.NoError(t, subs.Attach(context.Background(), th))

	_, err := store.CreateMessage(context.Background(), &model.Message{ThreadID: th.ID, SenderID: requesterID, Content: "hello?"})
	require.NoError(t, err)
	subs.Wait()

	assert.Len(t, log.List(th.ID), 1)
	assert.Zero(t, store.MarkReadCalls)
	assert.False(t, store.StoredMessages(th.ID)[0].IsRead)
}
