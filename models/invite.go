package models

// PartyInvite represents a live invite. The same struct is written at two
// addresses in one transaction: under the party partition keyed by invitee
// (PartyState pk=partyId sk=INVITE#inviteeId) and mirrored under the user
// partition (UserPartyLinks pk=inviteeId sk=INVITE#partyId) so per-user
// lookup is a single partition query instead of a global scan.
type PartyInvite struct {
	PK          string `json:"-" dynamodbav:"pk"`
	SK          string `json:"-" dynamodbav:"sk"`
	PartyID     string `json:"partyId" dynamodbav:"partyId"`
	InviterID   string `json:"inviterId" dynamodbav:"inviterId"`
	InviterName string `json:"inviterName" dynamodbav:"inviterName"`
	InviteeID   string `json:"inviteeId" dynamodbav:"inviteeId"`
	InviteeName string `json:"inviteeName" dynamodbav:"inviteeName"`
	CreatedAt   string `json:"createdAt" dynamodbav:"createdAt"`
	ExpiresAtMs int64  `json:"expiresAtMs" dynamodbav:"expiresAtMs"`
	ExpiresAt   int64  `json:"-" dynamodbav:"expiresAt"`
}

// Expired reports whether the invite's logical lifetime has passed at
// nowMs (unix milliseconds).
func (i *PartyInvite) Expired(nowMs int64) bool {
	return nowMs >= i.ExpiresAtMs
}
