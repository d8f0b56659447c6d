package consts

const (
	IMThreadKey       = "im:thread:"
	RosterStaffKey    = "roster:staff"
	RosterMemberKey   = "roster:member:"
	TokenBlacklistKey = "token:blacklist:"
	RosterRefreshLock = "lock:roster:refresh"
)
