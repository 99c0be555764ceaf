package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"party_server/config"
	"party_server/models"
)

// InviteService handles party invites. An invite is written at two
// addresses in one transaction: under the party partition and mirrored
// under the invitee's partition, which keeps "which invites do I have"
// a single partition query.
type InviteService struct {
	Store  Store
	Bus    Bus
	Party  *PartyService
	Config *config.Config
	Now    func() time.Time
}

// NewInviteService builds the invite subsystem on top of the lifecycle
// manager.
func NewInviteService(store Store, bus Bus, party *PartyService, cfg *config.Config) *InviteService {
	return &InviteService{Store: store, Bus: bus, Party: party, Config: cfg, Now: time.Now}
}

func (s *InviteService) publish(ctx context.Context, eventType, partyID, userID string) {
	if err := s.Bus.Publish(ctx, NewEvent(eventType, partyID, userID, nil)); err != nil {
		logrus.WithError(err).WithField("event", eventType).Warn("failed to publish invite event")
	}
}

// CreateInvite invites a user into the party. Fails when the invitee
// already belongs to a party or already holds a live invite from this
// party. On an invite-only party, only the leader may invite.
func (s *InviteService) CreateInvite(ctx context.Context, partyID, inviterID, inviterName, inviteeID, inviteeName string) (*models.PartyInvite, error) {
	party, err := s.Party.loadParty(ctx, partyID)
	if err != nil {
		return nil, err
	}
	members, err := s.Party.loadMembers(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if findMember(members, inviterID) == nil {
		return nil, models.NewError(models.ErrUnauthorized, models.ReasonNotAMember, "inviter is not a member of this party")
	}
	if party.InvitePolicy == models.InvitePolicyInviteOnly && party.LeaderID != inviterID {
		return nil, models.NewError(models.ErrUnauthorized, models.ReasonNotLeader, "only the leader can invite to this party")
	}

	existing, err := s.Party.ValidateUserPartyState(ctx, inviteeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewError(models.ErrConflict, models.ReasonAlreadyInParty, "invitee already belongs to a party")
	}

	nowMs := s.Now().UnixMilli()
	var current models.PartyInvite
	found, err := s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.InviteSK(inviteeID), &current)
	if err != nil {
		return nil, err
	}
	if found {
		if !current.Expired(nowMs) {
			return nil, models.NewError(models.ErrConflict, models.ReasonDuplicateInvite, "invitee already holds a live invite from this party")
		}
		// Stale record; it will be overwritten below.
	}

	ttl := time.Duration(s.Config.InviteTTLSecond) * time.Second
	invite := models.PartyInvite{
		PK: partyID, SK: models.InviteSK(inviteeID),
		PartyID:     partyID,
		InviterID:   inviterID,
		InviterName: inviterName,
		InviteeID:   inviteeID,
		InviteeName: inviteeName,
		CreatedAt:   s.Now().UTC().Format(time.RFC3339),
		ExpiresAtMs: s.Now().Add(ttl).UnixMilli(),
		ExpiresAt:   s.Now().Add(ttl).Unix(),
	}
	mirror := invite
	mirror.PK = inviteeID
	mirror.SK = models.InviteSK(partyID)

	err = s.Store.TransactWrite(ctx,
		PutOp(models.PartyStateTable, invite),
		PutOp(models.UserPartyLinksTable, mirror),
	)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventInviteReceived, partyID, inviteeID)
	return &invite, nil
}

// GetUserPendingInvites returns the user's live invites. Expired records
// encountered along the way are removed as a side effect.
func (s *InviteService) GetUserPendingInvites(ctx context.Context, userID string) ([]models.PartyInvite, error) {
	var mirrors []models.PartyInvite
	if err := s.Store.QueryPrefix(ctx, models.UserPartyLinksTable, userID, models.InviteSKPrefix(), &mirrors); err != nil {
		return nil, err
	}

	nowMs := s.Now().UnixMilli()
	live := make([]models.PartyInvite, 0, len(mirrors))
	for _, inv := range mirrors {
		if inv.Expired(nowMs) {
			s.removeInvite(ctx, inv.PartyID, userID)
			continue
		}
		live = append(live, inv)
	}
	return live, nil
}

// AcceptInvite consumes the invite from partyID addressed to userID and
// joins the party. The join transaction deletes both invite records, so
// accept-and-join is a single atomic unit.
func (s *InviteService) AcceptInvite(ctx context.Context, partyID, userID, name string, profile models.MemberProfile) (*models.PartyView, error) {
	invite, err := s.resolve(ctx, partyID, userID)
	if err != nil {
		return nil, err
	}

	view, err := s.Party.JoinParty(ctx, partyID, userID, name, profile)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventInviteAccepted, invite.PartyID, userID)
	return view, nil
}

// DeclineInvite removes the invite without joining.
func (s *InviteService) DeclineInvite(ctx context.Context, partyID, userID string) error {
	if _, err := s.resolve(ctx, partyID, userID); err != nil {
		return err
	}
	if err := s.removeInvite(ctx, partyID, userID); err != nil {
		return err
	}
	s.publish(ctx, models.EventInviteDeclined, partyID, userID)
	return nil
}

// resolve loads the live invite for (partyID, userID). Expired records are
// removed as a side effect and reported as NotFound.
func (s *InviteService) resolve(ctx context.Context, partyID, userID string) (*models.PartyInvite, error) {
	var invite models.PartyInvite
	found, err := s.Store.GetItem(ctx, models.UserPartyLinksTable, userID, models.InviteSK(partyID), &invite)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.NotFoundError("no invite from this party")
	}
	if invite.Expired(s.Now().UnixMilli()) {
		if err := s.removeInvite(ctx, partyID, userID); err != nil {
			return nil, err
		}
		return nil, models.NewError(models.ErrNotFound, models.ReasonInviteExpired, "invite has expired")
	}
	return &invite, nil
}

func (s *InviteService) removeInvite(ctx context.Context, partyID, userID string) error {
	return s.Store.TransactWrite(ctx,
		DeleteOp(models.PartyStateTable, partyID, models.InviteSK(userID)),
		DeleteOp(models.UserPartyLinksTable, userID, models.InviteSK(partyID)),
	)
}
