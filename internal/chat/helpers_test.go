package chat_test

import (
	"Atelier/internal/chat"
	"Atelier/internal/chat/chattest"
	"Atelier/internal/model"
	"time"
)

const (
	requesterID uint64 = 7
	otherReqID  uint64 = 8
	stylistID   uint64 = 9
	adminUserID uint64 = 100
	adminID     uint64 = 0
)

var (
	requester = chat.Identity{ID: requesterID, Role: chat.RoleRequester}
	stylist   = chat.Identity{ID: stylistID, Role: chat.RoleStaff}
	admin     = chat.Identity{ID: adminUserID, Role: chat.RoleAdmin}

	testLabels = chat.Labels{
		Administration: "PAWA ATELIER",
		StaffFallback:  "Sanctuary Artisan",
		MemberFallback: "Member",
	}
)

type fixture struct {
	store  *chattest.Store
	broker *chattest.Broker
	roster *chattest.Roster
	stores chat.Stores
}

func newFixture() *fixture {
	store := chattest.NewStore()
	broker := chattest.NewBroker()
	roster := chattest.NewRoster(
		chat.Member{ID: stylistID, Name: "Mira", Avatar: "mira.png", Specialties: []string{"color"}},
		chat.Member{ID: 10, Name: "Jun", Avatar: "jun.png"},
	)
	roster.AddMember(chat.Member{ID: requesterID, Name: "Ana"})
	return &fixture{
		store:  store,
		broker: broker,
		roster: roster,
		stores: chattest.Stores(store, broker, roster),
	}
}

func (f *fixture) session(viewer chat.Identity) *chat.Session {
	return chat.NewSession(viewer, f.stores, chat.Options{AdministrationID: adminID, Labels: testLabels})
}

func at(sec int) time.Time {
	return time.Date(2024, 3, 1, 12, 0, sec, 0, time.UTC)
}

func msg(id, threadID, sender uint64, sec int) *model.Message {
	return &model.Message{ID: id, ThreadID: threadID, SenderID: sender, Content: "m", CreatedAt: at(sec)}
}

func ids(msgs []*model.Message) []uint64 {
	out := make([]uint64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
