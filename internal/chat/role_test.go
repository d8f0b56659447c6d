package chat_test

import (
	"Atelier/internal/chat"
	"Atelier/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleFromClaims(t *testing.T) {
	cases := []struct {
		roles []string
		want  chat.Role
	}{
		{nil, chat.RoleRequester},
		{[]string{"USER"}, chat.RoleRequester},
		{[]string{"USER", "stylist"}, chat.RoleStaff},
		{[]string{"STAFF"}, chat.RoleStaff},
		{[]string{"STAFF", "ADMIN"}, chat.RoleAdmin},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, chat.RoleFromClaims(tc.roles), "%v", tc.roles)
	}
}

func TestIdentityVisibility(t *testing.T) {
	th := &model.Thread{Kind: model.ThreadKindStaff, ParticipantA: requesterID, ParticipantB: stylistID}

	assert.True(t, requester.CanView(th))
	assert.True(t, stylist.CanView(th))
	assert.True(t, admin.CanView(th))
	assert.False(t, chat.Identity{ID: otherReqID, Role: chat.RoleRequester}.CanView(th))

	assert.Equal(t, stylistID, requester.PeerOf(th))
	assert.Equal(t, requesterID, stylist.PeerOf(th))
	assert.Equal(t, requesterID, admin.PeerOf(th))
}

func TestRolePolicy(t *testing.T) {
	assert.True(t, chat.RoleRequester.CanInitiate())
	assert.False(t, chat.RoleStaff.CanInitiate())
	assert.False(t, chat.RoleAdmin.CanInitiate())
	assert.True(t, chat.RoleAdmin.SeesAll())
	assert.False(t, chat.RoleStaff.SeesAll())
	assert.Equal(t, "STYLIST", chat.RoleStaff.String())
}
