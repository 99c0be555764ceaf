package models

// Queue statuses for a party
const (
	QueueStatusIdle             = "idle"
	QueueStatusFindingTeammates = "finding_teammates"
	QueueStatusFindingOpponents = "finding_opponents"
	QueueStatusMatchFound       = "match_found"
)

// Match types
const (
	MatchTypeRanked = "ranked"
	MatchTypeCasual = "casual"
)

// Target team size modes
const (
	ModeNone = ""
	Mode5v5  = "5v5"
	Mode3v3  = "3v3"
	Mode2v2  = "2v2"
)

// Invite policies
const (
	InvitePolicyOpen       = "open"
	InvitePolicyInviteOnly = "invite_only"
)

// Event types published on the party event bus
const (
	EventPartyCreated       = "party_created"
	EventMemberJoined       = "member_joined"
	EventMemberLeft         = "member_left"
	EventMemberKicked       = "member_kicked"
	EventPartyDisbanded     = "party_disbanded"
	EventReadyChanged       = "ready_changed"
	EventQueueStatusChanged = "queue_status_changed"
	EventLeaderChanged      = "leader_changed"
	EventIGLChanged         = "igl_changed"
	EventAnchorChanged      = "anchor_changed"
	EventOperationChanged   = "operation_changed"
	EventModeChanged        = "mode_changed"
	EventTeamLinked         = "team_linked"
	EventInviteReceived     = "invite_received"
	EventInviteAccepted     = "invite_accepted"
	EventInviteDeclined     = "invite_declined"
	EventMatchFound         = "match_found"
)

// TeamSizeForMode returns the number of players per team for a mode,
// or 0 when no mode is selected.
func TeamSizeForMode(mode string) int {
	switch mode {
	case Mode5v5:
		return 5
	case Mode3v3:
		return 3
	case Mode2v2:
		return 2
	default:
		return 0
	}
}

// ValidMatchType reports whether t is a supported match type.
func ValidMatchType(t string) bool {
	return t == MatchTypeRanked || t == MatchTypeCasual
}
