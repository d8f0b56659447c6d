package chat_test

import (
	"Atelier/internal/chat"
	"Atelier/internal/chat/chattest"
	"Atelier/internal/model"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWithPushEchoKeepsOneMessage(t *testing.T) {
	f := newFixture()
	f.store.SetNextThreadID(42)
	th := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	require.Equal(t, uint64(42), th.ID)
	f.store.SetNextMessageID(501)

	s := f.session(requester)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Activate(ctx, 42))
	require.True(t, s.Live())

	sent, err := s.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, uint64(501), sent.ID)

	// 至少一次投递：同一事件再次到达
	f.broker.Publish(chat.Event{Type: chat.EventInserted, Message: *sent})
	s.Subscription().Wait()

	list := s.Messages().List(42)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(501), list[0].ID)
	assert.Equal(t, "hi", list[0].Content)
	assert.Equal(t, 1, f.store.MarkReadCalls)
}

func TestActivationMarksThreadRead(t *testing.T) {
	f := newFixture()
	th := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	seedUnread(f.store, th.ID, stylistID, 3)

	s := f.session(requester)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.Equal(t, 3, s.Unread().Count(th.ID))

	require.NoError(t, s.Activate(ctx, th.ID))
	assert.Zero(t, s.Unread().Count(th.ID))
	list := s.Messages().List(th.ID)
	require.Len(t, list, 3)
	for _, m := range list {
		assert.True(t, m.IsRead)
	}
	for _, m := range f.store.StoredMessages(th.ID) {
		assert.True(t, m.IsRead)
	}
}

func TestActivateForeignThreadIsNotFound(t *testing.T) {
	f := newFixture()
	foreign := f.store.AddThread(model.ThreadKindStaff, otherReqID, stylistID)

	s := f.session(requester)
	defer s.Close()
	err := s.Activate(context.Background(), foreign.ID)
	assert.True(t, errors.Is(err, chat.ErrNotFound))
	assert.Zero(t, s.Active())
	assert.Zero(t, f.broker.LiveCount())
}

func TestSwitchingThreadsKeepsSingleSubscription(t *testing.T) {
	f := newFixture()
	a := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	b := f.store.AddThread(model.ThreadKindAdministrative, requesterID, adminID)

	s := f.session(requester)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Activate(ctx, a.ID))
	require.NoError(t, s.Activate(ctx, b.ID))

	assert.Equal(t, []uint64{b.ID}, f.broker.LiveThreads())
	assert.Equal(t, b.ID, s.Active())

	s.Deactivate()
	assert.Zero(t, f.broker.LiveCount())
	assert.Zero(t, s.Active())
}

// gatedStore 让指定会话的消息拉取阻塞，直到测试放行
type gatedStore struct {
	*chattest.Store
	gateThread uint64
	entered    chan struct{}
	release    chan struct{}
}

func (g *gatedStore) ListMessages(ctx context.Context, threadID uint64) ([]*model.Message, error) {
	if threadID == g.gateThread {
		close(g.entered)
		<-g.release
	}
	return g.Store.ListMessages(ctx, threadID)
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	f := newFixture()
	a := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	b := f.store.AddThread(model.ThreadKindAdministrative, requesterID, adminID)
	seedUnread(f.store, a.ID, stylistID, 2)
	seedUnread(f.store, b.ID, adminUserID, 1)

	gated := &gatedStore{Store: f.store, gateThread: a.ID, entered: make(chan struct{}), release: make(chan struct{})}
	stores := f.stores
	stores.Messages = gated
	s := chat.NewSession(requester, stores, chat.Options{AdministrationID: adminID, Labels: testLabels})
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowErr = s.Activate(ctx, a.ID)
	}()
	<-gated.entered

	require.NoError(t, s.Activate(ctx, b.ID))
	close(gated.release)
	wg.Wait()

	require.NoError(t, slowErr)
	assert.Equal(t, b.ID, s.Active())
	assert.Empty(t, s.Messages().List(a.ID))
	assert.Len(t, s.Messages().List(b.ID), 1)
	assert.Equal(t, 2, s.Unread().Count(a.ID))
}

func TestPushFailureFallsBackToPolling(t *testing.T) {
	f := newFixture()
	th := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	f.broker.FailOpens = 2

	s := f.session(requester)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Activate(ctx, th.ID))
	assert.False(t, s.Live())
	assert.Equal(t, th.ID, s.Active())

	f.store.Seed(model.Message{ThreadID: th.ID, SenderID: stylistID, Content: "are you free friday?"})
	require.NoError(t, s.Poll(ctx))

	list := s.Messages().List(th.ID)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)
	assert.Zero(t, s.Unread().Count(th.ID))
}

func TestPollRefreshesBackgroundThreadsWhileLive(t *testing.T) {
	f := newFixture()
	a := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	s := f.session(stylist)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Activate(ctx, a.ID))
	require.True(t, s.Live())

	// 当前会话有推送，不走补拉
	f.store.Seed(model.Message{ThreadID: a.ID, SenderID: requesterID, Content: "missed by push"})
	// 另一位客户在后台新开会话
	b := f.store.AddThread(model.ThreadKindStaff, otherReqID, stylistID)
	f.store.Seed(model.Message{ThreadID: b.ID, SenderID: otherReqID, Content: "can I book a fitting?"})

	require.NoError(t, s.Poll(ctx))

	assert.Len(t, s.Directory().Threads(), 2)
	assert.Equal(t, b.ID, s.Overview()[0].Thread.ID)
	assert.Equal(t, 1, s.Unread().Count(b.ID))
	assert.Equal(t, 2, s.Unread().Total())
	assert.Empty(t, s.Messages().List(a.ID))
}

func TestAdminObservingStaffThreadKeepsReadState(t *testing.T) {
	f := newFixture()
	th := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	f.store.Seed(model.Message{ThreadID: th.ID, SenderID: requesterID, Content: "is the jacket ready?"})
	f.store.Seed(model.Message{ThreadID: th.ID, SenderID: stylistID, Content: "almost"})
	ctx := context.Background()

	adminSession := f.session(admin)
	defer adminSession.Close()
	require.NoError(t, adminSession.Load(ctx))
	assert.Zero(t, adminSession.Unread().Total())

	require.NoError(t, adminSession.Activate(ctx, th.ID))
	for _, m := range f.store.StoredMessages(th.ID) {
		assert.False(t, m.IsRead)
	}
	assert.Zero(t, f.store.MarkReadCalls)

	stylistSession := f.session(stylist)
	defer stylistSession.Close()
	require.NoError(t, stylistSession.Load(ctx))
	assert.Equal(t, 1, stylistSession.Unread().Count(th.ID))

	requesterSession := f.session(requester)
	defer requesterSession.Close()
	require.NoError(t, requesterSession.Load(ctx))
	assert.Equal(t, 1, requesterSession.Unread().Count(th.ID))
}

func TestAdminReadsOnlyRequesterSideOfAdministrativeThread(t *testing.T) {
	f := newFixture()
	th := f.store.AddThread(model.ThreadKindAdministrative, requesterID, adminID)
	f.store.Seed(model.Message{ThreadID: th.ID, SenderID: requesterID, Content: "invoice question"})
	reply := f.store.Seed(model.Message{ThreadID: th.ID, SenderID: adminUserID, Content: "sent it again"})
	ctx := context.Background()

	other := f.session(chat.Identity{ID: adminUserID + 1, Role: chat.RoleAdmin})
	defer other.Close()
	require.NoError(t, other.Load(ctx))
	assert.Equal(t, 1, other.Unread().Count(th.ID))

	require.NoError(t, other.Activate(ctx, th.ID))
	assert.Zero(t, other.Unread().Count(th.ID))

	for _, m := range f.store.StoredMessages(th.ID) {
		assert.Equal(t, m.ID != reply.ID, m.IsRead, "message %d", m.ID)
	}

	s := f.session(requester)
	defer s.Close()
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 1, s.Unread().Count(th.ID))
}

func TestBackgroundThreadActivityReordersDirectory(t *testing.T) {
	f := newFixture()
	a := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	b := f.store.AddThread(model.ThreadKindAdministrative, requesterID, adminID)

	s := f.session(requester)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.Equal(t, b.ID, s.Overview()[0].Thread.ID)

	require.NoError(t, s.Activate(ctx, a.ID))
	_, err := s.Send(ctx, "see you at ten")
	require.NoError(t, err)

	overview := s.Overview()
	require.Len(t, overview, 2)
	assert.Equal(t, a.ID, overview[0].Thread.ID)
	assert.Equal(t, "Mira", overview[0].Label.Name)
	assert.Equal(t, "PAWA ATELIER", overview[1].Label.Name)
}

func TestStartConversationReusesThread(t *testing.T) {
	f := newFixture()
	s := f.session(requester)
	defer s.Close()
	ctx := context.Background()

	first, err := s.StartConversation(ctx, stylistID, model.ThreadKindStaff)
	require.NoError(t, err)
	second, err := s.StartConversation(ctx, stylistID, model.ThreadKindStaff)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.store.ThreadCount())

	office, err := s.StartConversation(ctx, 0, model.ThreadKindAdministrative)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, office.ID)
	assert.Len(t, s.Directory().Threads(), 2)
	assert.Equal(t, []uint64{first.ID}, threadIDs(s.Search("mira")))
}

func TestSendRequiresActiveThread(t *testing.T) {
	f := newFixture()
	s := f.session(requester)
	defer s.Close()

	_, err := s.Send(context.Background(), "hello")
	assert.True(t, errors.Is(err, chat.ErrValidation))
}

func TestSendToForeignThreadIsNotFound(t *testing.T) {
	f := newFixture()
	foreign := f.store.AddThread(model.ThreadKindStaff, otherReqID, stylistID)
	s := f.session(requester)
	defer s.Close()

	_, err := s.SendTo(context.Background(), foreign.ID, "hello")
	assert.True(t, errors.Is(err, chat.ErrNotFound))
	assert.Empty(t, f.store.StoredMessages(foreign.ID))
}

func TestOnChangeReportsIncomingMessages(t *testing.T) {
	f := newFixture()
	th := f.store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	s := f.session(requester)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Activate(ctx, th.ID))

	changes := make(chan chat.Change, 32)
	s.OnChange(func(c chat.Change) {
		select {
		case changes <- c:
		default:
		}
	})

	_, err := f.store.CreateMessage(ctx, &model.Message{ThreadID: th.ID, SenderID: stylistID, Content: "new look"})
	require.NoError(t, err)
	s.Subscription().Wait()

	seen := map[chat.ChangeKind]bool{}
	timeout := time.After(time.Second)
	for !(seen[chat.ChangeMessages] && seen[chat.ChangeUnread]) {
		select {
		case c := <-changes:
			seen[c.Kind] = true
		case <-timeout:
			t.Fatalf("missing change notifications, got %v", seen)
		}
	}
}
