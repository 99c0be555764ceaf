package models

// PartyQueueState is the QUEUE record of a party unit. PoolPK/PoolSK hold
// the address of the party's TeamQueue entry while a search is active, so
// cancellation paths can remove the pool entry without knowing its ELO.
type PartyQueueState struct {
	PK        string `json:"-" dynamodbav:"pk"` // partyId
	SK        string `json:"-" dynamodbav:"sk"` // QUEUE
	PartyID   string `json:"partyId" dynamodbav:"partyId"`
	Status    string `json:"status" dynamodbav:"status"`
	MatchType string `json:"matchType,omitempty" dynamodbav:"matchType"`
	StartedAt int64  `json:"startedAt,omitempty" dynamodbav:"startedAt"` // unix ms, 0 when idle
	MatchID   string `json:"matchId,omitempty" dynamodbav:"matchId"`
	PoolPK    string `json:"-" dynamodbav:"poolPk"`
	PoolSK    string `json:"-" dynamodbav:"poolSk"`
	UpdatedAt string `json:"updatedAt" dynamodbav:"updatedAt"`
	ExpiresAt int64  `json:"-" dynamodbav:"expiresAt"`
}

// Searching reports whether the party currently occupies a matchmaking
// pool entry.
func (q *PartyQueueState) Searching() bool {
	return q.Status == QueueStatusFindingOpponents
}

// QueueMember is one roster slot of a matchmaking ticket.
type QueueMember struct {
	UserID      string `json:"userId" dynamodbav:"userId"`
	Name        string `json:"name" dynamodbav:"name"`
	Elo         int    `json:"elo" dynamodbav:"elo"`
	Tier        int    `json:"tier" dynamodbav:"tier"`
	Level       int    `json:"level" dynamodbav:"level"`
	IsSynthetic bool   `json:"isSynthetic" dynamodbav:"isSynthetic"`
}

// TeamQueueEntry is a transient matchmaking ticket: one party searching for
// an opponent, stored in the TeamQueue table sorted by ELO.
type TeamQueueEntry struct {
	PK         string        `json:"-" dynamodbav:"pk"` // matchType#mode
	SK         string        `json:"-" dynamodbav:"sk"` // paddedElo#partyId
	PartyID    string        `json:"partyId" dynamodbav:"partyId"`
	TeamID     string        `json:"teamId,omitempty" dynamodbav:"teamId"`
	LeaderID   string        `json:"leaderId" dynamodbav:"leaderId"`
	LeaderName string        `json:"leaderName" dynamodbav:"leaderName"`
	Elo        int           `json:"elo" dynamodbav:"elo"`
	AvgTier    int           `json:"avgTier" dynamodbav:"avgTier"`
	Mode       string        `json:"mode" dynamodbav:"mode"`
	MatchType  string        `json:"matchType" dynamodbav:"matchType"`
	IGLID      string        `json:"iglId,omitempty" dynamodbav:"iglId"`
	AnchorID   string        `json:"anchorId,omitempty" dynamodbav:"anchorId"`
	Members    []QueueMember `json:"members" dynamodbav:"members"`
	JoinedAt   int64         `json:"joinedAt" dynamodbav:"joinedAt"` // unix ms
	ExpiresAt  int64         `json:"-" dynamodbav:"expiresAt"`
}

// HumanCount returns the number of non-synthetic roster slots.
func (e *TeamQueueEntry) HumanCount() int {
	n := 0
	for _, m := range e.Members {
		if !m.IsSynthetic {
			n++
		}
	}
	return n
}

// MatchResult pairs two claimed queue entries under a generated matchId.
// It is the terminal artifact handed to the match-session subsystem.
type MatchResult struct {
	MatchID   string         `json:"matchId"`
	TeamA     TeamQueueEntry `json:"teamA"`
	TeamB     TeamQueueEntry `json:"teamB"`
	CreatedAt string         `json:"createdAt"`
}
