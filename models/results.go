package models

// LeaveResult describes the outcome of a leave or kick.
type LeaveResult struct {
	Disbanded      bool          `json:"disbanded"`
	NewLeaderID    string        `json:"newLeaderId,omitempty"`
	QueueCancelled bool          `json:"queueCancelled"`
	Members        []PartyMember `json:"members"`
}

// ToggleReadyResult describes the outcome of a ready toggle.
type ToggleReadyResult struct {
	IsReady        bool `json:"isReady"`
	QueueCancelled bool `json:"queueCancelled"`
}

// FindOpponentResult is returned from every matchmaking poll. Exactly one
// of Matched/TimedOut is set, or neither when the entry stays queued.
type FindOpponentResult struct {
	Matched         bool         `json:"matched"`
	TimedOut        bool         `json:"timedOut"`
	MatchID         string       `json:"matchId,omitempty"`
	Match           *MatchResult `json:"match,omitempty"`
	QueueTimeMs     int64        `json:"queueTimeMs"`
	CurrentEloRange int          `json:"currentEloRange"`
}
