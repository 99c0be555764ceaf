package models

import "fmt"

// Table names. Every table uses a generic pk/sk key pair so the whole party
// unit can live in one partition and be expired or rewritten together.
const (
	PartyStateTable     = "PartyState"
	UserPartyLinksTable = "UserPartyLinks"
	TeamQueueTable      = "TeamQueue"
)

const (
	SKPartyMeta  = "META"
	SKPartyQueue = "QUEUE"
	SKUserParty  = "PARTY"

	memberSKPrefix = "MEMBER#"
	inviteSKPrefix = "INVITE#"
)

// MemberSK addresses a member record inside a party partition.
func MemberSK(userID string) string { return memberSKPrefix + userID }

// MemberSKPrefix is the sort-key prefix shared by all member records.
func MemberSKPrefix() string { return memberSKPrefix }

// InviteSK addresses an invite record, either inside a party partition
// (keyed by invitee) or inside a user partition (keyed by party).
func InviteSK(id string) string { return inviteSKPrefix + id }

// InviteSKPrefix is the sort-key prefix shared by all invite records.
func InviteSKPrefix() string { return inviteSKPrefix }

// QueuePoolPK derives the matchmaking pool partition. Including the match
// type in the key makes ranked/casual isolation structural.
func QueuePoolPK(matchType, mode string) string {
	return matchType + "#" + mode
}

// QueueEntrySK sorts pool entries by ELO. The zero-padded rating keeps
// lexicographic order equal to numeric order; the partyId suffix keeps the
// key unique.
func QueueEntrySK(elo int, partyID string) string {
	if elo < 0 {
		elo = 0
	}
	return fmt.Sprintf("%07d#%s", elo, partyID)
}

// QueueRangeBounds returns the sort-key window covering every pool entry
// whose ELO falls in [lo, hi].
func QueueRangeBounds(lo, hi int) (string, string) {
	if lo < 0 {
		lo = 0
	}
	if hi < 0 {
		hi = 0
	}
	// '~' sorts after '#' and the digits, so the upper bound includes every
	// entry suffix at exactly hi.
	return fmt.Sprintf("%07d", lo), fmt.Sprintf("%07d~", hi)
}
