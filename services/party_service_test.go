package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"party_server/models"
)

func mustCreateParty(t *testing.T, env *testEnv, leaderID, leaderName string) *models.PartyView {
	t.Helper()
	view, err := env.party.CreateParty(context.Background(), leaderID, leaderName, models.MemberProfile{Level: 10, Online: true})
	require.NoError(t, err)
	return view
}

func mustJoin(t *testing.T, env *testEnv, partyID, userID, name string) *models.PartyView {
	t.Helper()
	view, err := env.party.JoinParty(context.Background(), partyID, userID, name, models.MemberProfile{Level: 10, Online: true})
	require.NoError(t, err)
	return view
}

func setQueueStatus(t *testing.T, env *testEnv, partyID, status, matchType string) {
	t.Helper()
	queue := models.PartyQueueState{
		PK: partyID, SK: models.SKPartyQueue,
		PartyID:   partyID,
		Status:    status,
		MatchType: matchType,
		StartedAt: 1000,
	}
	require.NoError(t, env.store.PutItem(context.Background(), models.PartyStateTable, queue))
}

func TestCreateParty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	view := mustCreateParty(t, env, "alice", "Alice")

	assert.Equal(t, "alice", view.Party.LeaderID)
	assert.Equal(t, models.QueueStatusIdle, view.Queue.Status)
	require.Len(t, view.Members, 1)
	assert.Equal(t, "alice", view.Members[0].UserID)
	assert.True(t, env.store.has(models.UserPartyLinksTable, "alice", models.SKUserParty))
	assert.Len(t, env.bus.ofType(models.EventPartyCreated), 1)

	// the leader cannot create a second party
	_, err := env.party.CreateParty(ctx, "alice", "Alice", models.MemberProfile{})
	require.Error(t, err)
	assert.Equal(t, models.ErrConflict, models.KindOf(err))
}

func TestJoinParty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID

	joined := mustJoin(t, env, partyID, "bob", "Bob")
	require.Len(t, joined.Members, 2)
	assert.Equal(t, "bob", joined.Members[1].UserID)
	assert.True(t, env.store.has(models.UserPartyLinksTable, "bob", models.SKUserParty))

	tests := []struct {
		name   string
		party  string
		user   string
		setup  func()
		kind   models.ErrorKind
		reason string
	}{
		{
			name: "unknown party", party: "nope", user: "carol",
			kind: models.ErrNotFound,
		},
		{
			name: "already in a party", party: partyID, user: "bob",
			kind: models.ErrConflict, reason: models.ReasonAlreadyInParty,
		},
		{
			name: "queue busy", party: partyID, user: "carol",
			setup:  func() { setQueueStatus(t, env, partyID, models.QueueStatusFindingOpponents, models.MatchTypeCasual) },
			kind:   models.ErrConflict,
			reason: models.ReasonQueueBusy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := env.party.JoinParty(ctx, tt.party, tt.user, tt.user, models.MemberProfile{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, models.KindOf(err))
		})
	}
}

func TestJoinPartyFull(t *testing.T) {
	env := newTestEnv()
	env.cfg.MaxPartySize = 2
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	mustJoin(t, env, view.Party.PartyID, "bob", "Bob")

	_, err := env.party.JoinParty(ctx, view.Party.PartyID, "carol", "Carol", models.MemberProfile{})
	require.Error(t, err)
	assert.Equal(t, models.ErrConflict, models.KindOf(err))
}

func TestLeavePartyTransfersLeadership(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	mustJoin(t, env, partyID, "bob", "Bob")
	mustJoin(t, env, partyID, "carol", "Carol")

	result, err := env.party.LeaveParty(ctx, partyID, "alice")
	require.NoError(t, err)
	assert.False(t, result.Disbanded)
	// earliest-joined remaining member takes over
	assert.Equal(t, "bob", result.NewLeaderID)
	require.Len(t, result.Members, 2)

	after, err := env.party.GetParty(ctx, partyID)
	require.NoError(t, err)
	assert.Equal(t, "bob", after.Party.LeaderID)
	assert.NotNil(t, after.Member("bob"))
	assert.False(t, env.store.has(models.UserPartyLinksTable, "alice", models.SKUserParty))
	assert.Len(t, env.bus.ofType(models.EventLeaderChanged), 1)
}

func TestLeavePartyLastMemberDisbands(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID

	result, err := env.party.LeaveParty(ctx, partyID, "alice")
	require.NoError(t, err)
	assert.True(t, result.Disbanded)
	assert.Empty(t, result.Members)

	assert.False(t, env.store.has(models.PartyStateTable, partyID, models.SKPartyMeta))
	assert.False(t, env.store.has(models.PartyStateTable, partyID, models.SKPartyQueue))
	assert.False(t, env.store.has(models.UserPartyLinksTable, "alice", models.SKUserParty))
	assert.Len(t, env.bus.ofType(models.EventPartyDisbanded), 1)
}

func TestLeavePartyCancelsActiveQueue(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	mustJoin(t, env, partyID, "bob", "Bob")
	setQueueStatus(t, env, partyID, models.QueueStatusFindingOpponents, models.MatchTypeCasual)

	result, err := env.party.LeaveParty(ctx, partyID, "bob")
	require.NoError(t, err)
	assert.True(t, result.QueueCancelled)

	after, err := env.party.GetParty(ctx, partyID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusIdle, after.Queue.Status)
	assert.Zero(t, after.Queue.StartedAt)
}

func TestLeavePartyBlockedDuringMatchFormation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	mustJoin(t, env, partyID, "bob", "Bob")
	setQueueStatus(t, env, partyID, models.QueueStatusMatchFound, models.MatchTypeRanked)

	_, err := env.party.LeaveParty(ctx, partyID, "bob")
	require.Error(t, err)
	assert.Equal(t, models.ErrInvalidState, models.KindOf(err))
}

func TestKickMember(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	mustJoin(t, env, partyID, "bob", "Bob")

	// only the leader can kick
	_, err := env.party.KickMember(ctx, partyID, "bob", "alice")
	require.Error(t, err)
	assert.Equal(t, models.ErrUnauthorized, models.KindOf(err))

	// no self-kick
	_, err = env.party.KickMember(ctx, partyID, "alice", "alice")
	require.Error(t, err)
	assert.Equal(t, models.ErrConflict, models.KindOf(err))

	result, err := env.party.KickMember(ctx, partyID, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, result.Members, 1)
	assert.False(t, env.store.has(models.UserPartyLinksTable, "bob", models.SKUserParty))
	assert.Len(t, env.bus.ofType(models.EventMemberKicked), 1)
}

func TestDisbandParty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	mustJoin(t, env, partyID, "bob", "Bob")

	err := env.party.DisbandParty(ctx, partyID, "bob")
	require.Error(t, err)
	assert.Equal(t, models.ErrUnauthorized, models.KindOf(err))

	require.NoError(t, env.party.DisbandParty(ctx, partyID, "alice"))
	assert.False(t, env.store.has(models.PartyStateTable, partyID, models.SKPartyMeta))
	assert.False(t, env.store.has(models.UserPartyLinksTable, "alice", models.SKUserParty))
	assert.False(t, env.store.has(models.UserPartyLinksTable, "bob", models.SKUserParty))
}

func TestToggleReady(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID

	result, err := env.party.ToggleReady(ctx, partyID, "alice")
	require.NoError(t, err)
	assert.True(t, result.IsReady)

	// unready while searching cancels the queue in the same mutation
	setQueueStatus(t, env, partyID, models.QueueStatusFindingOpponents, models.MatchTypeCasual)
	result, err = env.party.ToggleReady(ctx, partyID, "alice")
	require.NoError(t, err)
	assert.False(t, result.IsReady)
	assert.True(t, result.QueueCancelled)

	after, err := env.party.GetParty(ctx, partyID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusIdle, after.Queue.Status)
}

func TestToggleReadyBlockedDuringMatchFormation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID

	_, err := env.party.ToggleReady(ctx, partyID, "alice") // ready
	require.NoError(t, err)
	setQueueStatus(t, env, partyID, models.QueueStatusMatchFound, models.MatchTypeRanked)

	_, err = env.party.ToggleReady(ctx, partyID, "alice")
	require.Error(t, err)
	assert.Equal(t, models.ErrInvalidState, models.KindOf(err))
}

func TestSetTargetModeResetsReadyFlags(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	mustJoin(t, env, partyID, "bob", "Bob")
	_, err := env.party.ToggleReady(ctx, partyID, "bob")
	require.NoError(t, err)

	require.NoError(t, env.party.SetTargetMode(ctx, partyID, "alice", models.Mode3v3))

	after, err := env.party.GetParty(ctx, partyID)
	require.NoError(t, err)
	assert.Equal(t, models.Mode3v3, after.Party.Mode)
	for _, m := range after.Members {
		assert.False(t, m.IsReady)
	}
}

func TestUpdateQueueState(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID

	_, err := env.party.UpdateQueueState(ctx, partyID, "bob", models.QueueStatusFindingTeammates, models.MatchTypeCasual)
	require.Error(t, err)
	assert.Equal(t, models.ErrUnauthorized, models.KindOf(err))

	queue, err := env.party.UpdateQueueState(ctx, partyID, "alice", models.QueueStatusFindingTeammates, models.MatchTypeCasual)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFindingTeammates, queue.Status)
	assert.NotZero(t, queue.StartedAt)

	// starting a search auto-readies the leader
	after, err := env.party.GetParty(ctx, partyID)
	require.NoError(t, err)
	assert.True(t, after.Member("alice").IsReady)

	queue, err = env.party.UpdateQueueState(ctx, partyID, "alice", models.QueueStatusIdle, "")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusIdle, queue.Status)
	assert.Zero(t, queue.StartedAt)

	// the opponent-search states are reserved for the matchmaking engine
	for _, status := range []string{models.QueueStatusFindingOpponents, models.QueueStatusMatchFound} {
		_, err = env.party.UpdateQueueState(ctx, partyID, "alice", status, models.MatchTypeRanked)
		require.Error(t, err)
		assert.Equal(t, models.ErrInvalidState, models.KindOf(err))
	}
}

func TestUpdateQueueStateRejectionLeavesPartyQueueable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	mustJoin(t, env, partyID, "bob", "Bob")
	require.NoError(t, env.party.SetTargetMode(ctx, partyID, "alice", models.Mode2v2))

	_, err := env.party.UpdateQueueState(ctx, partyID, "alice", models.QueueStatusFindingOpponents, models.MatchTypeCasual)
	require.Error(t, err)
	assert.Equal(t, models.ErrInvalidState, models.KindOf(err))

	// the rejected transition left no trace, so the engine still admits the
	// party with a real pool entry
	entry, err := env.matchmaking.JoinQueue(ctx, partyID, "alice", models.MatchTypeCasual, []models.QueueMember{
		{UserID: "alice", Name: "Alice", Elo: 1000, Tier: 3},
		{UserID: "bob", Name: "Bob", Elo: 1000, Tier: 3},
	})
	require.NoError(t, err)
	assert.True(t, env.store.has(models.TeamQueueTable, entry.PK, entry.SK))
}

// raceStore plants a back-reference for one user right before the first
// transaction commits, standing in for a concurrent create on another
// process that validated the same user as un-partied.
type raceStore struct {
	*fakeStore
	userID  string
	planted bool
}

func (r *raceStore) TransactWrite(ctx context.Context, ops ...TransactOp) error {
	if !r.planted {
		r.planted = true
		link := models.UserPartyLink{
			PK: r.userID, SK: models.SKUserParty,
			UserID:  r.userID,
			PartyID: "elsewhere",
		}
		if err := r.fakeStore.PutItem(ctx, models.UserPartyLinksTable, link); err != nil {
			return err
		}
	}
	return r.fakeStore.TransactWrite(ctx, ops...)
}

func TestCreatePartyBackReferenceRace(t *testing.T) {
	env := newTestEnv()
	env.party.Store = &raceStore{fakeStore: env.store, userID: "alice"}

	_, err := env.party.CreateParty(context.Background(), "alice", "Alice", models.MemberProfile{})
	require.Error(t, err)
	assert.Equal(t, models.ErrConflict, models.KindOf(err))

	// the losing transaction wrote nothing
	env.store.mu.Lock()
	for key := range env.store.items {
		assert.False(t, strings.HasPrefix(key, models.PartyStateTable+"|"), "unexpected record %s", key)
	}
	env.store.mu.Unlock()
}

func TestJoinPartyBackReferenceRace(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	env.party.Store = &raceStore{fakeStore: env.store, userID: "bob"}

	_, err := env.party.JoinParty(ctx, partyID, "bob", "Bob", models.MemberProfile{})
	require.Error(t, err)
	assert.Equal(t, models.ErrConflict, models.KindOf(err))
	assert.False(t, env.store.has(models.PartyStateTable, partyID, models.MemberSK("bob")))
}

func TestValidateUserPartyState(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// no back-reference at all
	view, err := env.party.ValidateUserPartyState(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, view)

	// healthy membership resolves to the live view
	created := mustCreateParty(t, env, "alice", "Alice")
	view, err = env.party.ValidateUserPartyState(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, created.Party.PartyID, view.Party.PartyID)

	// back-reference pointing at a deleted party is cleared
	require.NoError(t, env.store.DeleteItem(ctx, models.PartyStateTable, created.Party.PartyID, models.SKPartyMeta))
	view, err = env.party.ValidateUserPartyState(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, view)
	assert.False(t, env.store.has(models.UserPartyLinksTable, "alice", models.SKUserParty))
}

func TestValidateUserPartyStateMembershipMissing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	created := mustCreateParty(t, env, "alice", "Alice")

	// the party exists but the member record is gone
	require.NoError(t, env.store.DeleteItem(ctx, models.PartyStateTable, created.Party.PartyID, models.MemberSK("alice")))

	view, err := env.party.ValidateUserPartyState(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, view)
	assert.False(t, env.store.has(models.UserPartyLinksTable, "alice", models.SKUserParty))
}

func TestTransferLeadershipAndRoleSetters(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	view := mustCreateParty(t, env, "alice", "Alice")
	partyID := view.Party.PartyID
	mustJoin(t, env, partyID, "bob", "Bob")

	require.NoError(t, env.party.SetIGL(ctx, partyID, "alice", "bob"))
	require.NoError(t, env.party.SetAnchor(ctx, partyID, "alice", "alice"))

	err := env.party.SetIGL(ctx, partyID, "alice", "nobody")
	require.Error(t, err)
	assert.Equal(t, models.ErrNotFound, models.KindOf(err))

	require.NoError(t, env.party.TransferLeadership(ctx, partyID, "alice", "bob"))
	after, err := env.party.GetParty(ctx, partyID)
	require.NoError(t, err)
	assert.Equal(t, "bob", after.Party.LeaderID)
	assert.Equal(t, "bob", after.Party.IGLID)
	assert.Equal(t, "alice", after.Party.AnchorID)
}
