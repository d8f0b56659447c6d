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

func TestEligibleCounterpartiesByRole(t *testing.T) {
	roster := chattest.NewRoster(
		chat.Member{ID: stylistID, Name: "Mira"},
		chat.Member{ID: requesterID, Name: "Ana"},
		chat.Member{ID: 10, Name: "Jun"},
	)
	ctx := context.Background()

	got, err := chat.NewThreadRouter(roster, roster, requester, adminID, testLabels).EligibleCounterparties(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, m := range got {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Mira", "Jun"}, names)

	for _, viewer := range []chat.Identity{stylist, admin} {
		got, err = chat.NewThreadRouter(roster, roster, viewer, adminID, testLabels).EligibleCounterparties(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestEligibleCounterpartiesRosterFailure(t *testing.T) {
	roster := chattest.NewRoster()
	roster.Err = errors.New("roster service unavailable")

	_, err := chat.NewThreadRouter(roster, roster, requester, adminID, testLabels).EligibleCounterparties(context.Background())
	assert.True(t, errors.Is(err, chat.ErrTransient))
}

func TestLabelForByViewpoint(t *testing.T) {
	roster := chattest.NewRoster(chat.Member{ID: stylistID, Name: "Mira", Avatar: "mira.png"})
	roster.AddMember(chat.Member{ID: requesterID, Name: "Ana", Avatar: "ana.png"})
	office := &model.Thread{ID: 1, Kind: model.ThreadKindAdministrative, ParticipantA: requesterID, ParticipantB: adminID}
	styling := &model.Thread{ID: 2, Kind: model.ThreadKindStaff, ParticipantA: requesterID, ParticipantB: stylistID}
	threads := []*model.Thread{office, styling}
	ctx := context.Background()

	cases := []struct {
		name   string
		viewer chat.Identity
		thread *model.Thread
		want   chat.Label
	}{
		{"requester sees administration", requester, office, chat.Label{PeerID: adminID, Name: "PAWA ATELIER"}},
		{"requester sees stylist", requester, styling, chat.Label{PeerID: stylistID, Name: "Mira", Avatar: "mira.png"}},
		{"stylist sees requester", stylist, styling, chat.Label{PeerID: requesterID, Name: "Ana", Avatar: "ana.png"}},
		{"admin sees requester on office thread", admin, office, chat.Label{PeerID: requesterID, Name: "Ana", Avatar: "ana.png"}},
		{"admin sees requester on staff thread", admin, styling, chat.Label{PeerID: requesterID, Name: "Ana", Avatar: "ana.png"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chat.NewThreadRouter(roster, roster, tc.viewer, adminID, testLabels)
			require.NoError(t, r.Prime(ctx, threads))
			assert.Equal(t, tc.want, r.LabelFor(tc.thread))
		})
	}
}

func TestLabelForFallsBackToPlaceholders(t *testing.T) {
	empty := chattest.NewRoster()
	styling := &model.Thread{ID: 2, Kind: model.ThreadKindStaff, ParticipantA: requesterID, ParticipantB: stylistID}

	r := chat.NewThreadRouter(empty, empty, requester, adminID, testLabels)
	require.NoError(t, r.Prime(context.Background(), []*model.Thread{styling}))
	assert.Equal(t, "Sanctuary Artisan", r.LabelFor(styling).Name)

	r = chat.NewThreadRouter(empty, empty, stylist, adminID, testLabels)
	assert.Equal(t, "Member", r.LabelFor(styling).Name)
}
