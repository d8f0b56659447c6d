package chat_test

import (
	"Atelier/internal/chat"
	"Atelier/internal/chat/chattest"
	"Atelier/internal/model"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenOrCreateConcurrentCallersShareThread(t *testing.T) {
	store := chattest.NewStore()

	const callers = 10
	results := make([]uint64, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := chat.NewThreadDirectory(store, requester, adminID)
			th, err := d.OpenOrCreate(context.Background(), requesterID, stylistID, model.ThreadKindStaff)
			errs[i] = err
			if th != nil {
				results[i] = th.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, store.ThreadCount())
}

func TestOpenOrCreateReturnsExistingThread(t *testing.T) {
	store := chattest.NewStore()
	d := chat.NewThreadDirectory(store, requester, adminID)
	ctx := context.Background()

	first, err := d.OpenOrCreate(ctx, requesterID, stylistID, model.ThreadKindStaff)
	require.NoError(t, err)
	second, err := d.OpenOrCreate(ctx, requesterID, stylistID, model.ThreadKindStaff)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, requesterID, first.ParticipantA)
	assert.Equal(t, stylistID, first.ParticipantB)
	assert.Equal(t, 1, store.ThreadCount())
}

func TestOpenOrCreateResolvesUniqueConflict(t *testing.T) {
	store := chattest.NewStore()
	store.ConflictOnce = true
	d := chat.NewThreadDirectory(store, requester, adminID)

	th, err := d.OpenOrCreate(context.Background(), requesterID, stylistID, model.ThreadKindStaff)
	require.NoError(t, err)
	require.NotNil(t, th)
	assert.NotZero(t, th.ID)
	assert.Equal(t, 1, store.ThreadCount())
}

func TestOpenOrCreateAdministrativeIgnoresCounterparty(t *testing.T) {
	store := chattest.NewStore()
	d := chat.NewThreadDirectory(store, requester, adminID)
	ctx := context.Background()

	a, err := d.OpenOrCreate(ctx, requesterID, 55, model.ThreadKindAdministrative)
	require.NoError(t, err)
	b, err := d.OpenOrCreate(ctx, requesterID, 0, model.ThreadKindAdministrative)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, adminID, a.ParticipantB)
	assert.Equal(t, model.ThreadKindAdministrative, a.Kind)
}

func TestOpenOrCreateValidation(t *testing.T) {
	cases := []struct {
		name         string
		viewer       chat.Identity
		requester    uint64
		counterparty uint64
		kind         int8
	}{
		{"staff thread without counterparty", requester, requesterID, 0, model.ThreadKindStaff},
		{"thread with yourself", requester, requesterID, requesterID, model.ThreadKindStaff},
		{"unknown kind", requester, requesterID, stylistID, 9},
		{"someone else as requester", requester, otherReqID, stylistID, model.ThreadKindStaff},
		{"staff cannot initiate", stylist, stylistID, requesterID, model.ThreadKindStaff},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := chattest.NewStore()
			d := chat.NewThreadDirectory(store, tc.viewer, adminID)

			_, err := d.OpenOrCreate(context.Background(), tc.requester, tc.counterparty, tc.kind)
			require.Error(t, err)
			assert.True(t, errors.Is(err, chat.ErrValidation))
			assert.Zero(t, store.ThreadCount())
		})
	}
}

func TestListIsRoleScoped(t *testing.T) {
	store := chattest.NewStore()
	own := store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	foreign := store.AddThread(model.ThreadKindStaff, otherReqID, stylistID)
	office := store.AddThread(model.ThreadKindAdministrative, requesterID, adminID)
	ctx := context.Background()

	list, err := chat.NewThreadDirectory(store, requester, adminID).List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{own.ID, office.ID}, threadIDs(list))

	list, err = chat.NewThreadDirectory(store, stylist, adminID).List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{own.ID, foreign.ID}, threadIDs(list))

	list, err = chat.NewThreadDirectory(store, admin, adminID).List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{own.ID, foreign.ID, office.ID}, threadIDs(list))
}

func TestListFailureIsTransient(t *testing.T) {
	store := chattest.NewStore()
	store.FailList = errors.New("db down")

	_, err := chat.NewThreadDirectory(store, requester, adminID).List(context.Background())
	assert.True(t, errors.Is(err, chat.ErrTransient))
}

func TestTouchReordersDirectory(t *testing.T) {
	store := chattest.NewStore()
	older := store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	newer := store.AddThread(model.ThreadKindAdministrative, requesterID, adminID)
	d := chat.NewThreadDirectory(store, requester, adminID)

	list, err := d.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{newer.ID, older.ID}, threadIDs(list))

	assert.True(t, d.Touch(older.ID, newer.LastActivityAt.Add(1)))
	assert.Equal(t, []uint64{older.ID, newer.ID}, threadIDs(d.Threads()))

	// 时间不会倒退
	assert.False(t, d.Touch(older.ID, older.CreatedAt))
	assert.False(t, d.Touch(999, at(59)))
}

func TestAuthorizeHidesForeignThreads(t *testing.T) {
	store := chattest.NewStore()
	foreign := store.AddThread(model.ThreadKindStaff, otherReqID, stylistID)
	d := chat.NewThreadDirectory(store, requester, adminID)
	ctx := context.Background()

	_, err := d.Authorize(ctx, foreign.ID)
	assert.True(t, errors.Is(err, chat.ErrNotFound))

	_, err = d.Authorize(ctx, 12345)
	assert.True(t, errors.Is(err, chat.ErrNotFound))

	th, err := chat.NewThreadDirectory(store, admin, adminID).Authorize(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, foreign.ID, th.ID)
}

func TestSearchFiltersByLabel(t *testing.T) {
	store := chattest.NewStore()
	a := store.AddThread(model.ThreadKindStaff, requesterID, stylistID)
	b := store.AddThread(model.ThreadKindAdministrative, requesterID, adminID)
	d := chat.NewThreadDirectory(store, requester, adminID)
	_, err := d.List(context.Background())
	require.NoError(t, err)

	names := map[uint64]string{a.ID: "Mira", b.ID: "PAWA ATELIER"}
	label := func(th *model.Thread) string { return names[th.ID] }

	assert.Equal(t, []uint64{a.ID}, threadIDs(d.Search("mi", label)))
	assert.Equal(t, []uint64{b.ID}, threadIDs(d.Search(" atelier ", label)))
	assert.Len(t, d.Search("", label), 2)
	assert.Empty(t, d.Search("zz", label))
}

func threadIDs(list []*model.Thread) []uint64 {
	out := make([]uint64, 0, len(list))
	for _, t := range list {
		out = append(out, t.ID)
	}
	return out
}

type ctxRecordingStore struct {
	*chattest.Store
	upsertErr   error
	hasDeadline bool
}

func (s *ctxRecordingStore) UpsertThread(ctx context.Context, thread *model.Thread) (*model.Thread, error) {
	s.upsertErr = ctx.Err()
	_, s.hasDeadline = ctx.Deadline()
	return s.Store.UpsertThread(ctx, thread)
}

func TestOpenOrCreateDetachesFromCallerCancel(t *testing.T) {
	store := &ctxRecordingStore{Store: chattest.NewStore()}
	d := chat.NewThreadDirectory(store, requester, adminID)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	th, err := d.OpenOrCreate(ctx, requesterID, stylistID, model.ThreadKindStaff)
	require.NoError(t, err)
	assert.NotZero(t, th.ID)
	assert.NoError(t, store.upsertErr)
	assert.True(t, store.hasDeadline)
	assert.Equal(t, 1, store.ThreadCount())
}
