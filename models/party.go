package models

// Party is the META record of a party unit in the PartyState table.
type Party struct {
	PK            string `json:"-" dynamodbav:"pk"` // partyId
	SK            string `json:"-" dynamodbav:"sk"` // META
	PartyID       string `json:"partyId" dynamodbav:"partyId"`
	LeaderID      string `json:"leaderId" dynamodbav:"leaderId"`
	LeaderName    string `json:"leaderName" dynamodbav:"leaderName"`
	IGLID         string `json:"iglId,omitempty" dynamodbav:"iglId"`
	AnchorID      string `json:"anchorId,omitempty" dynamodbav:"anchorId"`
	Mode          string `json:"mode,omitempty" dynamodbav:"mode"`
	TeamID        string `json:"teamId,omitempty" dynamodbav:"teamId"`
	TeamName      string `json:"teamName,omitempty" dynamodbav:"teamName"`
	TeamTag       string `json:"teamTag,omitempty" dynamodbav:"teamTag"`
	InvitePolicy  string `json:"invitePolicy" dynamodbav:"invitePolicy"`
	MaxSize       int    `json:"maxSize" dynamodbav:"maxSize"`
	NextJoinOrder int    `json:"-" dynamodbav:"nextJoinOrder"`
	CreatedAt     string `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt     string `json:"updatedAt" dynamodbav:"updatedAt"`
	ExpiresAt     int64  `json:"-" dynamodbav:"expiresAt"`
}

// MemberProfile carries the presentation fields supplied by the identity
// and catalog collaborators when a member record is constructed.
type MemberProfile struct {
	Level  int    `json:"level"`
	Frame  string `json:"frame,omitempty"`
	Title  string `json:"title,omitempty"`
	Online bool   `json:"online"`
}

// PartyMember is a MEMBER#<userId> record inside a party partition.
type PartyMember struct {
	PK                 string  `json:"-" dynamodbav:"pk"` // partyId
	SK                 string  `json:"-" dynamodbav:"sk"` // MEMBER#<userId>
	UserID             string  `json:"userId" dynamodbav:"userId"`
	Name               string  `json:"name" dynamodbav:"name"`
	Level              int     `json:"level" dynamodbav:"level"`
	Frame              string  `json:"frame,omitempty" dynamodbav:"frame"`
	Title              string  `json:"title,omitempty" dynamodbav:"title"`
	IsReady            bool    `json:"isReady" dynamodbav:"isReady"`
	PreferredOperation *string `json:"preferredOperation,omitempty" dynamodbav:"preferredOperation"`
	JoinOrder          int     `json:"-" dynamodbav:"joinOrder"`
	JoinedAt           string  `json:"joinedAt" dynamodbav:"joinedAt"`
	IsOnline           bool    `json:"isOnline" dynamodbav:"isOnline"`
	ExpiresAt          int64   `json:"-" dynamodbav:"expiresAt"`
}

// UserPartyLink is the per-user back-reference to the party the user
// currently belongs to. It is never trusted without validation.
type UserPartyLink struct {
	PK        string `json:"-" dynamodbav:"pk"` // userId
	SK        string `json:"-" dynamodbav:"sk"` // PARTY
	UserID    string `json:"userId" dynamodbav:"userId"`
	PartyID   string `json:"partyId" dynamodbav:"partyId"`
	ExpiresAt int64  `json:"-" dynamodbav:"expiresAt"`
}

// PartyView is the full read model of a party unit: META record, members in
// join order, and the queue record.
type PartyView struct {
	Party   Party           `json:"party"`
	Members []PartyMember   `json:"members"`
	Queue   PartyQueueState `json:"queue"`
}

// Member returns the member record for userID, or nil.
func (v *PartyView) Member(userID string) *PartyMember {
	for i := range v.Members {
		if v.Members[i].UserID == userID {
			return &v.Members[i]
		}
	}
	return nil
}
