package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"party_server/config"
	"party_server/models"
)

// PartyService owns the party unit: META, member, invite and queue records
// plus every member's back-reference. All multi-record mutations go through
// a single transaction so the unit can never partially exist.
type PartyService struct {
	Store  Store
	Bus    Bus
	Config *config.Config
	Now    func() time.Time
}

// NewPartyService builds the lifecycle manager with injected store and bus.
func NewPartyService(store Store, bus Bus, cfg *config.Config) *PartyService {
	return &PartyService{Store: store, Bus: bus, Config: cfg, Now: time.Now}
}

func (s *PartyService) nowStamp() string { return s.Now().UTC().Format(time.RFC3339) }

func (s *PartyService) nowMs() int64 { return s.Now().UnixMilli() }

func (s *PartyService) expiry() int64 {
	return s.Now().Add(time.Duration(s.Config.PartyTTLSecond) * time.Second).Unix()
}

func (s *PartyService) publish(ctx context.Context, eventType, partyID, userID string, payload map[string]interface{}) {
	if err := s.Bus.Publish(ctx, NewEvent(eventType, partyID, userID, payload)); err != nil {
		logrus.WithError(err).WithField("event", eventType).Warn("failed to publish party event")
	}
}

func (s *PartyService) loadParty(ctx context.Context, partyID string) (*models.Party, error) {
	var party models.Party
	found, err := s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.SKPartyMeta, &party)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.NotFoundError("party not found")
	}
	return &party, nil
}

func (s *PartyService) loadMembers(ctx context.Context, partyID string) ([]models.PartyMember, error) {
	var members []models.PartyMember
	if err := s.Store.QueryPrefix(ctx, models.PartyStateTable, partyID, models.MemberSKPrefix(), &members); err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinOrder < members[j].JoinOrder })
	return members, nil
}

func (s *PartyService) loadInvites(ctx context.Context, partyID string) ([]models.PartyInvite, error) {
	var invites []models.PartyInvite
	if err := s.Store.QueryPrefix(ctx, models.PartyStateTable, partyID, models.InviteSKPrefix(), &invites); err != nil {
		return nil, err
	}
	return invites, nil
}

func (s *PartyService) loadQueue(ctx context.Context, partyID string) (*models.PartyQueueState, error) {
	var queue models.PartyQueueState
	found, err := s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.SKPartyQueue, &queue)
	if err != nil {
		return nil, err
	}
	if !found {
		// A missing queue record means a partially expired unit; treat it
		// as idle rather than failing the whole operation.
		queue = models.PartyQueueState{
			PK:      partyID,
			SK:      models.SKPartyQueue,
			PartyID: partyID,
			Status:  models.QueueStatusIdle,
		}
	}
	return &queue, nil
}

func requireLeader(party *models.Party, userID string) error {
	if party.LeaderID != userID {
		return models.NewError(models.ErrUnauthorized, models.ReasonNotLeader, "only the party leader can do this")
	}
	return nil
}

func findMember(members []models.PartyMember, userID string) *models.PartyMember {
	for i := range members {
		if members[i].UserID == userID {
			return &members[i]
		}
	}
	return nil
}

// GetParty returns the full read model of a party unit.
func (s *PartyService) GetParty(ctx context.Context, partyID string) (*models.PartyView, error) {
	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return nil, err
	}
	queue, err := s.loadQueue(ctx, partyID)
	if err != nil {
		return nil, err
	}
	return &models.PartyView{Party: *party, Members: members, Queue: *queue}, nil
}

// ValidateUserPartyState resolves the user's back-reference and repairs it
// when it points at a missing party or a party the user is no longer part
// of. A nil view means the user has no party. This is the only recovery
// path for drift caused by partial failures or expiry races; nothing else
// may trust the back-reference blindly.
func (s *PartyService) ValidateUserPartyState(ctx context.Context, userID string) (*models.PartyView, error) {
	var link models.UserPartyLink
	found, err := s.Store.GetItem(ctx, models.UserPartyLinksTable, userID, models.SKUserParty, &link)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var party models.Party
	found, err = s.Store.GetItem(ctx, models.PartyStateTable, link.PartyID, models.SKPartyMeta, &party)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, s.clearLink(ctx, userID, link.PartyID, "party missing")
	}

	var member models.PartyMember
	found, err = s.Store.GetItem(ctx, models.PartyStateTable, link.PartyID, models.MemberSK(userID), &member)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, s.clearLink(ctx, userID, link.PartyID, "membership missing")
	}

	return s.GetParty(ctx, link.PartyID)
}

func (s *PartyService) clearLink(ctx context.Context, userID, partyID, cause string) error {
	logrus.WithFields(logrus.Fields{"userId": userID, "partyId": partyID, "cause": cause}).
		Info("clearing stale party back-reference")
	return s.Store.DeleteItem(ctx, models.UserPartyLinksTable, userID, models.SKUserParty)
}

// CreateParty creates a new single-member party led by leaderID. The META,
// member, queue and back-reference records are written atomically under one
// expiry window.
func (s *PartyService) CreateParty(ctx context.Context, leaderID, leaderName string, profile models.MemberProfile) (*models.PartyView, error) {
	existing, err := s.ValidateUserPartyState(ctx, leaderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewError(models.ErrConflict, models.ReasonAlreadyInParty, "user already belongs to a party")
	}

	partyID := uuid.NewString()
	now := s.nowStamp()
	exp := s.expiry()

	party := models.Party{
		PK: partyID, SK: models.SKPartyMeta,
		PartyID:       partyID,
		LeaderID:      leaderID,
		LeaderName:    leaderName,
		InvitePolicy:  models.InvitePolicyOpen,
		MaxSize:       s.Config.MaxPartySize,
		NextJoinOrder: 2,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     exp,
	}
	member := models.PartyMember{
		PK: partyID, SK: models.MemberSK(leaderID),
		UserID:    leaderID,
		Name:      leaderName,
		Level:     profile.Level,
		Frame:     profile.Frame,
		Title:     profile.Title,
		JoinOrder: 1,
		JoinedAt:  now,
		IsOnline:  profile.Online,
		ExpiresAt: exp,
	}
	queue := models.PartyQueueState{
		PK: partyID, SK: models.SKPartyQueue,
		PartyID:   partyID,
		Status:    models.QueueStatusIdle,
		UpdatedAt: now,
		ExpiresAt: exp,
	}
	link := models.UserPartyLink{
		PK: leaderID, SK: models.SKUserParty,
		UserID:    leaderID,
		PartyID:   partyID,
		ExpiresAt: exp,
	}

	// The conditional link put closes the race where two processes both
	// validated the same user as un-partied before either wrote.
	err = s.Store.TransactWrite(ctx,
		PutOp(models.PartyStateTable, party),
		PutOp(models.PartyStateTable, member),
		PutOp(models.PartyStateTable, queue),
		PutIfAbsentOp(models.UserPartyLinksTable, link),
	)
	if err == ErrConditionFailed {
		return nil, models.NewError(models.ErrConflict, models.ReasonAlreadyInParty, "user already belongs to a party")
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"partyId": partyID, "leaderId": leaderID}).Info("party created")
	s.publish(ctx, models.EventPartyCreated, partyID, leaderID, nil)
	return &models.PartyView{Party: party, Members: []models.PartyMember{member}, Queue: queue}, nil
}

// JoinParty adds userID to an existing party and refreshes the expiry of
// the whole unit plus every member's back-reference. Any pending invite for
// this user is consumed in the same transaction.
func (s *PartyService) JoinParty(ctx context.Context, partyID, userID, name string, profile models.MemberProfile) (*models.PartyView, error) {
	existing, err := s.ValidateUserPartyState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewError(models.ErrConflict, models.ReasonAlreadyInParty, "user already belongs to a party")
	}

	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	queue, err := s.loadQueue(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if queue.Status != models.QueueStatusIdle {
		return nil, models.NewError(models.ErrConflict, models.ReasonQueueBusy, "cannot join while the party is queued")
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if len(members) >= party.MaxSize {
		return nil, models.NewError(models.ErrConflict, models.ReasonPartyFull, "party is full")
	}

	now := s.nowStamp()
	exp := s.expiry()

	member := models.PartyMember{
		PK: partyID, SK: models.MemberSK(userID),
		UserID:    userID,
		Name:      name,
		Level:     profile.Level,
		Frame:     profile.Frame,
		Title:     profile.Title,
		JoinOrder: party.NextJoinOrder,
		JoinedAt:  now,
		IsOnline:  profile.Online,
		ExpiresAt: exp,
	}
	link := models.UserPartyLink{
		PK: userID, SK: models.SKUserParty,
		UserID:    userID,
		PartyID:   partyID,
		ExpiresAt: exp,
	}
	party.NextJoinOrder++
	party.UpdatedAt = now
	party.ExpiresAt = exp

	ops := []TransactOp{
		PutOp(models.PartyStateTable, *party),
		PutOp(models.PartyStateTable, member),
		PutIfAbsentOp(models.UserPartyLinksTable, link),
		SetExpiryOp(models.PartyStateTable, partyID, models.SKPartyQueue, exp),
		DeleteOp(models.PartyStateTable, partyID, models.InviteSK(userID)),
		DeleteOp(models.UserPartyLinksTable, userID, models.InviteSK(partyID)),
	}
	for _, m := range members {
		ops = append(ops,
			SetExpiryOp(models.PartyStateTable, partyID, m.SK, exp),
			SetExpiryOp(models.UserPartyLinksTable, m.UserID, models.SKUserParty, exp),
		)
	}
	err = s.Store.TransactWrite(ctx, ops...)
	if err == ErrConditionFailed {
		return nil, models.NewError(models.ErrConflict, models.ReasonAlreadyInParty, "user already belongs to a party")
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventMemberJoined, partyID, userID, map[string]interface{}{"name": name})
	members = append(members, member)
	return &models.PartyView{Party: *party, Members: members, Queue: *queue}, nil
}

// LeaveParty removes userID from the party. Leaving as leader transfers
// leadership to the earliest-joined remaining member; leaving as the last
// member disbands the unit. Any active search is cancelled in the same
// mutation.
func (s *PartyService) LeaveParty(ctx context.Context, partyID, userID string) (*models.LeaveResult, error) {
	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if findMember(members, userID) == nil {
		return nil, models.NewError(models.ErrNotFound, models.ReasonNotAMember, "user is not a member of this party")
	}
	queue, err := s.loadQueue(ctx, partyID)
	if err != nil {
		return nil, err
	}
	return s.removeMember(ctx, party, members, queue, userID, models.EventMemberLeft)
}

// KickMember is the leader-only variant of LeaveParty for removing another
// member. Self-kick is rejected; leaders leave via LeaveParty.
func (s *PartyService) KickMember(ctx context.Context, partyID, leaderID, targetUserID string) (*models.LeaveResult, error) {
	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if err := requireLeader(party, leaderID); err != nil {
		return nil, err
	}
	if targetUserID == leaderID {
		return nil, models.NewError(models.ErrConflict, models.ReasonCannotKickSelf, "leader cannot kick themselves")
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if findMember(members, targetUserID) == nil {
		return nil, models.NewError(models.ErrNotFound, models.ReasonNotAMember, "target is not a member of this party")
	}
	queue, err := s.loadQueue(ctx, partyID)
	if err != nil {
		return nil, err
	}
	return s.removeMember(ctx, party, members, queue, targetUserID, models.EventMemberKicked)
}

func (s *PartyService) removeMember(ctx context.Context, party *models.Party, members []models.PartyMember, queue *models.PartyQueueState, userID, eventType string) (*models.LeaveResult, error) {
	if queue.Status == models.QueueStatusMatchFound {
		return nil, models.NewError(models.ErrInvalidState, models.ReasonMatchInProgress, "cannot change the roster while a match is being formed")
	}

	remaining := make([]models.PartyMember, 0, len(members))
	for _, m := range members {
		if m.UserID != userID {
			remaining = append(remaining, m)
		}
	}

	if len(remaining) == 0 {
		ops, err := s.deleteUnitOps(ctx, party.PartyID, members, queue)
		if err != nil {
			return nil, err
		}
		if err := s.Store.TransactWrite(ctx, ops...); err != nil {
			return nil, err
		}
		s.publish(ctx, eventType, party.PartyID, userID, nil)
		s.publish(ctx, models.EventPartyDisbanded, party.PartyID, userID, nil)
		return &models.LeaveResult{Disbanded: true, Members: []models.PartyMember{}}, nil
	}

	now := s.nowStamp()
	exp := s.expiry()
	result := &models.LeaveResult{Members: remaining}

	if party.LeaderID == userID {
		next := remaining[0]
		for _, m := range remaining[1:] {
			if m.JoinOrder < next.JoinOrder {
				next = m
			}
		}
		party.LeaderID = next.UserID
		party.LeaderName = next.Name
		result.NewLeaderID = next.UserID
	}
	if party.IGLID == userID {
		party.IGLID = ""
	}
	if party.AnchorID == userID {
		party.AnchorID = ""
	}
	party.UpdatedAt = now
	party.ExpiresAt = exp

	ops := []TransactOp{
		PutOp(models.PartyStateTable, *party),
		DeleteOp(models.PartyStateTable, party.PartyID, models.MemberSK(userID)),
		DeleteOp(models.UserPartyLinksTable, userID, models.SKUserParty),
	}
	if queue.Status != models.QueueStatusIdle {
		ops = append(ops, cancelQueueOps(queue, now, exp)...)
		result.QueueCancelled = true
	} else {
		ops = append(ops, SetExpiryOp(models.PartyStateTable, party.PartyID, models.SKPartyQueue, exp))
	}
	for _, m := range remaining {
		ops = append(ops,
			SetExpiryOp(models.PartyStateTable, party.PartyID, m.SK, exp),
			SetExpiryOp(models.UserPartyLinksTable, m.UserID, models.SKUserParty, exp),
		)
	}
	if err := s.Store.TransactWrite(ctx, ops...); err != nil {
		return nil, err
	}

	s.publish(ctx, eventType, party.PartyID, userID, nil)
	if result.QueueCancelled {
		s.publish(ctx, models.EventQueueStatusChanged, party.PartyID, userID, map[string]interface{}{"status": models.QueueStatusIdle})
	}
	if result.NewLeaderID != "" {
		s.publish(ctx, models.EventLeaderChanged, party.PartyID, result.NewLeaderID, nil)
	}
	return result, nil
}

// cancelQueueOps resets the queue record to idle and removes the party's
// matchmaking pool entry if one exists. The returned ops belong in the same
// transaction as the membership change that triggered the cancellation.
func cancelQueueOps(queue *models.PartyQueueState, now string, exp int64) []TransactOp {
	var ops []TransactOp
	if queue.PoolPK != "" {
		ops = append(ops, DeleteOp(models.TeamQueueTable, queue.PoolPK, queue.PoolSK))
	}
	queue.Status = models.QueueStatusIdle
	queue.MatchType = ""
	queue.StartedAt = 0
	queue.MatchID = ""
	queue.PoolPK = ""
	queue.PoolSK = ""
	queue.UpdatedAt = now
	queue.ExpiresAt = exp
	return append(ops, PutOp(models.PartyStateTable, *queue))
}

func (s *PartyService) deleteUnitOps(ctx context.Context, partyID string, members []models.PartyMember, queue *models.PartyQueueState) ([]TransactOp, error) {
	invites, err := s.loadInvites(ctx, partyID)
	if err != nil {
		return nil, err
	}

	ops := []TransactOp{
		DeleteOp(models.PartyStateTable, partyID, models.SKPartyMeta),
		DeleteOp(models.PartyStateTable, partyID, models.SKPartyQueue),
	}
	if queue.PoolPK != "" {
		ops = append(ops, DeleteOp(models.TeamQueueTable, queue.PoolPK, queue.PoolSK))
	}
	for _, m := range members {
		ops = append(ops,
			DeleteOp(models.PartyStateTable, partyID, m.SK),
			DeleteOp(models.UserPartyLinksTable, m.UserID, models.SKUserParty),
		)
	}
	for _, inv := range invites {
		ops = append(ops,
			DeleteOp(models.PartyStateTable, partyID, models.InviteSK(inv.InviteeID)),
			DeleteOp(models.UserPartyLinksTable, inv.InviteeID, models.InviteSK(partyID)),
		)
	}
	return ops, nil
}

// DisbandParty deletes the whole unit and clears every member's
// back-reference. Leader only.
func (s *PartyService) DisbandParty(ctx context.Context, partyID, leaderID string) error {
	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return err
	}
	if err := requireLeader(party, leaderID); err != nil {
		return err
	}
	queue, err := s.loadQueue(ctx, partyID)
	if err != nil {
		return err
	}
	if queue.Status == models.QueueStatusMatchFound {
		return models.NewError(models.ErrInvalidState, models.ReasonMatchInProgress, "cannot disband while a match is being formed")
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return err
	}

	ops, err := s.deleteUnitOps(ctx, partyID, members, queue)
	if err != nil {
		return err
	}
	if err := s.Store.TransactWrite(ctx, ops...); err != nil {
		return err
	}

	logrus.WithField("partyId", partyID).Info("party disbanded")
	s.publish(ctx, models.EventPartyDisbanded, partyID, leaderID, nil)
	return nil
}

// ToggleReady flips the member's ready flag. Un-readying is rejected while
// a match is being formed and cancels an active search in the same
// mutation.
func (s *PartyService) ToggleReady(ctx context.Context, partyID, userID string) (*models.ToggleReadyResult, error) {
	_, err := s.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return nil, err
	}
	member := findMember(members, userID)
	if member == nil {
		return nil, models.NewError(models.ErrNotFound, models.ReasonNotAMember, "user is not a member of this party")
	}
	queue, err := s.loadQueue(ctx, partyID)
	if err != nil {
		return nil, err
	}

	ready := !member.IsReady
	if !ready && queue.Status == models.QueueStatusMatchFound {
		return nil, models.NewError(models.ErrInvalidState, models.ReasonMatchInProgress, "cannot unready while a match is being formed")
	}

	now := s.nowStamp()
	exp := s.expiry()
	member.IsReady = ready
	ops := []TransactOp{PutOp(models.PartyStateTable, *member)}

	result := &models.ToggleReadyResult{IsReady: ready}
	if !ready && queue.Status != models.QueueStatusIdle {
		ops = append(ops, cancelQueueOps(queue, now, exp)...)
		result.QueueCancelled = true
	}
	if err := s.Store.TransactWrite(ctx, ops...); err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventReadyChanged, partyID, userID, map[string]interface{}{"isReady": ready})
	if result.QueueCancelled {
		s.publish(ctx, models.EventQueueStatusChanged, partyID, userID, map[string]interface{}{"status": models.QueueStatusIdle})
	}
	return result, nil
}

// SetIGL designates a member as in-game leader. Leader only.
func (s *PartyService) SetIGL(ctx context.Context, partyID, leaderID, targetUserID string) error {
	return s.setPartyField(ctx, partyID, leaderID, targetUserID, models.EventIGLChanged, func(p *models.Party) {
		p.IGLID = targetUserID
	})
}

// SetAnchor designates a member as anchor. Leader only.
func (s *PartyService) SetAnchor(ctx context.Context, partyID, leaderID, targetUserID string) error {
	return s.setPartyField(ctx, partyID, leaderID, targetUserID, models.EventAnchorChanged, func(p *models.Party) {
		p.AnchorID = targetUserID
	})
}

// TransferLeadership hands the party to another current member. Leader only.
func (s *PartyService) TransferLeadership(ctx context.Context, partyID, leaderID, targetUserID string) error {
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return err
	}
	target := findMember(members, targetUserID)
	if target == nil {
		return models.NewError(models.ErrNotFound, models.ReasonNotAMember, "target is not a member of this party")
	}
	return s.setPartyField(ctx, partyID, leaderID, targetUserID, models.EventLeaderChanged, func(p *models.Party) {
		p.LeaderID = target.UserID
		p.LeaderName = target.Name
	})
}

func (s *PartyService) setPartyField(ctx context.Context, partyID, leaderID, targetUserID, eventType string, mutate func(*models.Party)) error {
	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return err
	}
	if err := requireLeader(party, leaderID); err != nil {
		return err
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return err
	}
	if findMember(members, targetUserID) == nil {
		return models.NewError(models.ErrNotFound, models.ReasonNotAMember, "target is not a member of this party")
	}

	mutate(party)
	party.UpdatedAt = s.nowStamp()
	if err := s.Store.PutItem(ctx, models.PartyStateTable, *party); err != nil {
		return err
	}
	s.publish(ctx, eventType, partyID, targetUserID, nil)
	return nil
}

// SetPreferredOperation records a member's preferred operation. Leader only;
// pass nil to clear.
func (s *PartyService) SetPreferredOperation(ctx context.Context, partyID, leaderID, targetUserID string, operation *string) error {
	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return err
	}
	if err := requireLeader(party, leaderID); err != nil {
		return err
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return err
	}
	member := findMember(members, targetUserID)
	if member == nil {
		return models.NewError(models.ErrNotFound, models.ReasonNotAMember, "target is not a member of this party")
	}

	member.PreferredOperation = operation
	if err := s.Store.PutItem(ctx, models.PartyStateTable, *member); err != nil {
		return err
	}
	s.publish(ctx, models.EventOperationChanged, partyID, targetUserID, nil)
	return nil
}

// LinkToTeam attaches a persistent team identity to the party. Leader only.
// The team fields are opaque values supplied by the team service.
func (s *PartyService) LinkToTeam(ctx context.Context, partyID, leaderID, teamID, teamName, teamTag string) error {
	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return err
	}
	if err := requireLeader(party, leaderID); err != nil {
		return err
	}

	party.TeamID = teamID
	party.TeamName = teamName
	party.TeamTag = teamTag
	party.UpdatedAt = s.nowStamp()
	if err := s.Store.PutItem(ctx, models.PartyStateTable, *party); err != nil {
		return err
	}
	s.publish(ctx, models.EventTeamLinked, partyID, leaderID, map[string]interface{}{"teamId": teamID})
	return nil
}

// SetTargetMode changes the target team size mode and resets every member's
// ready flag, since changing composition requirements invalidates prior
// readiness. An active search is cancelled in the same mutation.
func (s *PartyService) SetTargetMode(ctx context.Context, partyID, leaderID, mode string) error {
	if mode != models.ModeNone && models.TeamSizeForMode(mode) == 0 {
		return models.NewError(models.ErrInvalidState, "", "unknown mode: "+mode)
	}
	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return err
	}
	if err := requireLeader(party, leaderID); err != nil {
		return err
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return err
	}
	queue, err := s.loadQueue(ctx, partyID)
	if err != nil {
		return err
	}
	if queue.Status == models.QueueStatusMatchFound {
		return models.NewError(models.ErrInvalidState, models.ReasonMatchInProgress, "cannot change mode while a match is being formed")
	}

	now := s.nowStamp()
	exp := s.expiry()
	party.Mode = mode
	party.UpdatedAt = now

	ops := []TransactOp{PutOp(models.PartyStateTable, *party)}
	for i := range members {
		members[i].IsReady = false
		ops = append(ops, PutOp(models.PartyStateTable, members[i]))
	}
	cancelled := false
	if queue.Status != models.QueueStatusIdle {
		ops = append(ops, cancelQueueOps(queue, now, exp)...)
		cancelled = true
	}
	if err := s.Store.TransactWrite(ctx, ops...); err != nil {
		return err
	}

	s.publish(ctx, models.EventModeChanged, partyID, leaderID, map[string]interface{}{"mode": mode})
	if cancelled {
		s.publish(ctx, models.EventQueueStatusChanged, partyID, leaderID, map[string]interface{}{"status": models.QueueStatusIdle})
	}
	return nil
}

// UpdateQueueState moves the party between idle and teammate assembly.
// Leader only. The opponent-search states belong to the matchmaking engine:
// finding_opponents is entered through JoinQueue and match_found through a
// claim, so both are rejected here. Stepping down from finding_opponents
// removes the pool entry in the same transaction so a concurrent poll
// cannot claim a party that is reassembling.
func (s *PartyService) UpdateQueueState(ctx context.Context, partyID, leaderID, status, matchType string) (*models.PartyQueueState, error) {
	switch status {
	case models.QueueStatusIdle, models.QueueStatusFindingTeammates:
	case models.QueueStatusFindingOpponents, models.QueueStatusMatchFound:
		return nil, models.NewError(models.ErrInvalidState, "", status+" is set by the matchmaking engine")
	default:
		return nil, models.NewError(models.ErrInvalidState, "", "unknown queue status: "+status)
	}

	party, err := s.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if err := requireLeader(party, leaderID); err != nil {
		return nil, err
	}
	queue, err := s.loadQueue(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if queue.Status == models.QueueStatusMatchFound {
		return nil, models.NewError(models.ErrInvalidState, models.ReasonMatchInProgress, "a match is already being formed")
	}

	now := s.nowStamp()
	exp := s.expiry()
	var ops []TransactOp

	if status == models.QueueStatusIdle {
		ops = cancelQueueOps(queue, now, exp)
	} else {
		switch queue.Status {
		case models.QueueStatusIdle:
			if !models.ValidMatchType(matchType) {
				return nil, models.NewError(models.ErrInvalidState, "", "unknown match type: "+matchType)
			}
			queue.StartedAt = s.nowMs()
			queue.MatchType = matchType

			// Starting a search implies the leader is ready.
			var leader models.PartyMember
			found, err := s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.MemberSK(leaderID), &leader)
			if err != nil {
				return nil, err
			}
			if found && !leader.IsReady {
				leader.IsReady = true
				ops = append(ops, PutOp(models.PartyStateTable, leader))
			}
		case models.QueueStatusFindingOpponents:
			if queue.PoolPK != "" {
				ops = append(ops, DeleteOp(models.TeamQueueTable, queue.PoolPK, queue.PoolSK))
			}
			queue.PoolPK = ""
			queue.PoolSK = ""
		}
		queue.Status = status
		queue.UpdatedAt = now
		queue.ExpiresAt = exp
		ops = append(ops, PutOp(models.PartyStateTable, *queue))
	}

	if err := s.Store.TransactWrite(ctx, ops...); err != nil {
		return nil, err
	}
	s.publish(ctx, models.EventQueueStatusChanged, partyID, leaderID, map[string]interface{}{
		"status":    queue.Status,
		"matchType": queue.MatchType,
	})
	return queue, nil
}

// RefreshTTL extends the expiry window of the party unit and every current
// member's back-reference together. The dual refresh is what prevents the
// party from outliving its members' pointers to it, or vice versa.
func (s *PartyService) RefreshTTL(ctx context.Context, partyID string) error {
	_, err := s.loadParty(ctx, partyID)
	if err != nil {
		return err
	}
	members, err := s.loadMembers(ctx, partyID)
	if err != nil {
		return err
	}

	exp := s.expiry()
	ops := []TransactOp{
		SetExpiryOp(models.PartyStateTable, partyID, models.SKPartyMeta, exp),
		SetExpiryOp(models.PartyStateTable, partyID, models.SKPartyQueue, exp),
	}
	for _, m := range members {
		ops = append(ops,
			SetExpiryOp(models.PartyStateTable, partyID, m.SK, exp),
			SetExpiryOp(models.UserPartyLinksTable, m.UserID, models.SKUserParty, exp),
		)
	}
	return s.Store.TransactWrite(ctx, ops...)
}
