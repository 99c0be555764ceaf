package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"party_server/config"
	"party_server/models"
)

// MatchmakingService owns the team matchmaking pool. Entries are transient
// tickets keyed per (matchType, mode) and sorted by ELO; the candidate scan
// plus the removal of both matched entries form a single logical claim.
type MatchmakingService struct {
	Store  Store
	Bus    Bus
	Config *config.Config
	Now    func() time.Time
}

// NewMatchmakingService builds the matchmaking engine.
func NewMatchmakingService(store Store, bus Bus, cfg *config.Config) *MatchmakingService {
	return &MatchmakingService{Store: store, Bus: bus, Config: cfg, Now: time.Now}
}

func (s *MatchmakingService) publish(ctx context.Context, eventType, partyID, userID string, payload map[string]interface{}) {
	if err := s.Bus.Publish(ctx, NewEvent(eventType, partyID, userID, payload)); err != nil {
		logrus.WithError(err).WithField("event", eventType).Warn("failed to publish matchmaking event")
	}
}

// CalculateEloRange returns the ELO tolerance for a party that has waited
// waitTimeMs: a monotonic, saturating staircase that widens by a fixed step
// every interval, identical for ranked and casual.
func (s *MatchmakingService) CalculateEloRange(waitTimeMs int64) int {
	if waitTimeMs < 0 {
		waitTimeMs = 0
	}
	interval := s.Config.EloRangeIntervalMs
	if interval < 1 {
		interval = 1
	}
	steps := int(waitTimeMs / interval)
	r := s.Config.InitialEloRange + steps*s.Config.EloRangeStep
	if r > s.Config.MaxEloRange {
		r = s.Config.MaxEloRange
	}
	return r
}

// JoinQueue admits a party into the matchmaking pool. Ranked requires a
// full human roster for the party's mode; casual rosters are padded with
// synthetic teammates. The pool entry and the party's queue record are
// written in one transaction.
func (s *MatchmakingService) JoinQueue(ctx context.Context, partyID, leaderID, matchType string, members []models.QueueMember) (*models.TeamQueueEntry, error) {
	if !models.ValidMatchType(matchType) {
		return nil, models.NewError(models.ErrInvalidState, "", "unknown match type: "+matchType)
	}
	if len(members) == 0 {
		return nil, models.NewError(models.ErrInvalidState, models.ReasonRosterIncomplete, "roster is empty")
	}

	var party models.Party
	found, err := s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.SKPartyMeta, &party)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.NotFoundError("party not found")
	}
	if party.LeaderID != leaderID {
		return nil, models.NewError(models.ErrUnauthorized, models.ReasonNotLeader, "only the party leader can queue")
	}
	teamSize := models.TeamSizeForMode(party.Mode)
	if teamSize == 0 {
		return nil, models.NewError(models.ErrInvalidState, models.ReasonModeNotSet, "party has no target mode")
	}

	var queue models.PartyQueueState
	found, err = s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.SKPartyQueue, &queue)
	if err != nil {
		return nil, err
	}
	if found && (queue.Searching() || queue.Status == models.QueueStatusMatchFound) {
		return nil, models.NewError(models.ErrConflict, models.ReasonQueueBusy, "party is already queued")
	}

	humans := 0
	eloSum, tierSum := 0, 0
	for _, m := range members {
		if m.IsSynthetic {
			continue
		}
		humans++
		eloSum += m.Elo
		tierSum += m.Tier
	}
	if humans == 0 {
		return nil, models.NewError(models.ErrInvalidState, models.ReasonRosterIncomplete, "roster has no human players")
	}
	if humans > teamSize {
		return nil, models.NewError(models.ErrInvalidState, models.ReasonRosterIncomplete,
			fmt.Sprintf("roster of %d exceeds the %s team size", humans, party.Mode))
	}
	if matchType == models.MatchTypeRanked && humans != teamSize {
		return nil, models.NewError(models.ErrInvalidState, models.ReasonRosterIncomplete,
			fmt.Sprintf("ranked %s requires %d players", party.Mode, teamSize))
	}

	teamElo := eloSum / humans
	avgTier := tierSum / humans

	roster := make([]models.QueueMember, 0, teamSize)
	for _, m := range members {
		if !m.IsSynthetic {
			roster = append(roster, m)
		}
	}
	for i := len(roster); i < teamSize; i++ {
		roster = append(roster, models.QueueMember{
			UserID:      fmt.Sprintf("synthetic-%s-%d", partyID, i+1),
			Name:        fmt.Sprintf("Recruit %d", i+1),
			Elo:         teamElo,
			Tier:        avgTier,
			IsSynthetic: true,
		})
	}

	now := s.Now()
	entry := models.TeamQueueEntry{
		PK:         models.QueuePoolPK(matchType, party.Mode),
		SK:         models.QueueEntrySK(teamElo, partyID),
		PartyID:    partyID,
		TeamID:     party.TeamID,
		LeaderID:   party.LeaderID,
		LeaderName: party.LeaderName,
		Elo:        teamElo,
		AvgTier:    avgTier,
		Mode:       party.Mode,
		MatchType:  matchType,
		IGLID:      party.IGLID,
		AnchorID:   party.AnchorID,
		Members:    roster,
		JoinedAt:   now.UnixMilli(),
		ExpiresAt:  now.Add(2 * time.Duration(s.Config.QueueTimeoutMs) * time.Millisecond).Unix(),
	}

	queue = models.PartyQueueState{
		PK: partyID, SK: models.SKPartyQueue,
		PartyID:   partyID,
		Status:    models.QueueStatusFindingOpponents,
		MatchType: matchType,
		StartedAt: now.UnixMilli(),
		PoolPK:    entry.PK,
		PoolSK:    entry.SK,
		UpdatedAt: now.UTC().Format(time.RFC3339),
		ExpiresAt: now.Add(time.Duration(s.Config.PartyTTLSecond) * time.Second).Unix(),
	}

	err = s.Store.TransactWrite(ctx,
		PutOp(models.TeamQueueTable, entry),
		PutOp(models.PartyStateTable, queue),
	)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"partyId": partyID, "pool": entry.PK, "elo": teamElo}).Info("party queued")
	s.publish(ctx, models.EventQueueStatusChanged, partyID, leaderID, map[string]interface{}{
		"status":    models.QueueStatusFindingOpponents,
		"matchType": matchType,
	})
	return &entry, nil
}

// LeaveQueue removes the party's pool entry and returns its queue record to
// idle. Leader only; rejected once a match is being formed.
func (s *MatchmakingService) LeaveQueue(ctx context.Context, partyID, leaderID string) error {
	var party models.Party
	found, err := s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.SKPartyMeta, &party)
	if err != nil {
		return err
	}
	if !found {
		return models.NotFoundError("party not found")
	}
	if party.LeaderID != leaderID {
		return models.NewError(models.ErrUnauthorized, models.ReasonNotLeader, "only the party leader can leave the queue")
	}

	var queue models.PartyQueueState
	found, err = s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.SKPartyQueue, &queue)
	if err != nil {
		return err
	}
	if !found || queue.Status == models.QueueStatusIdle {
		return models.NewError(models.ErrInvalidState, "", "party is not queued")
	}
	if queue.Status == models.QueueStatusMatchFound {
		return models.NewError(models.ErrInvalidState, models.ReasonMatchInProgress, "a match is already being formed")
	}

	now := s.Now()
	exp := now.Add(time.Duration(s.Config.PartyTTLSecond) * time.Second).Unix()
	ops := cancelQueueOps(&queue, now.UTC().Format(time.RFC3339), exp)
	if err := s.Store.TransactWrite(ctx, ops...); err != nil {
		return err
	}

	s.publish(ctx, models.EventQueueStatusChanged, partyID, leaderID, map[string]interface{}{
		"status": models.QueueStatusIdle,
	})
	return nil
}

// FindOpponent re-evaluates the pool for the given party at the supplied
// time. It either times the entry out, matches it against the first
// compatible candidate in pool order, or leaves it queued and reports the
// current wait and tolerance.
func (s *MatchmakingService) FindOpponent(ctx context.Context, partyID string, now time.Time) (*models.FindOpponentResult, error) {
	var queue models.PartyQueueState
	found, err := s.Store.GetItem(ctx, models.PartyStateTable, partyID, models.SKPartyQueue, &queue)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.NotFoundError("party not found")
	}
	if queue.Status == models.QueueStatusMatchFound {
		// Another process already matched this party.
		return &models.FindOpponentResult{Matched: true, MatchID: queue.MatchID}, nil
	}
	if !queue.Searching() {
		return nil, models.NewError(models.ErrInvalidState, "", "party is not searching for opponents")
	}

	var entry models.TeamQueueEntry
	found, err = s.Store.GetItem(ctx, models.TeamQueueTable, queue.PoolPK, queue.PoolSK, &entry)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.NotFoundError("queue entry no longer exists")
	}

	wait := now.UnixMilli() - entry.JoinedAt
	if wait > s.Config.QueueTimeoutMs {
		return s.timeOut(ctx, &queue, &entry, now, wait)
	}

	eloRange := s.CalculateEloRange(wait)
	lo, hi := models.QueueRangeBounds(entry.Elo-eloRange, entry.Elo+eloRange)

	var candidates []models.TeamQueueEntry
	if err := s.Store.QueryRange(ctx, models.TeamQueueTable, entry.PK, lo, hi, &candidates); err != nil {
		return nil, err
	}

	for _, cand := range candidates {
		if cand.PartyID == entry.PartyID {
			continue
		}
		// Symmetric fairness: accept on the larger of the two current
		// tolerances so a long wait is never blocked by a fresh
		// candidate's tighter window.
		candRange := s.CalculateEloRange(now.UnixMilli() - cand.JoinedAt)
		tolerance := eloRange
		if candRange > tolerance {
			tolerance = candRange
		}
		if abs(entry.Elo-cand.Elo) > tolerance {
			continue
		}
		if abs(entry.AvgTier-cand.AvgTier) > s.Config.TierTolerance {
			continue
		}
		return s.claim(ctx, &queue, &entry, cand, now, wait, eloRange)
	}

	return &models.FindOpponentResult{QueueTimeMs: wait, CurrentEloRange: eloRange}, nil
}

// timeOut removes the entry and returns the queue record to idle. The
// delete is conditioned on the entry still being present so a concurrent
// match wins over the timeout.
func (s *MatchmakingService) timeOut(ctx context.Context, queue *models.PartyQueueState, entry *models.TeamQueueEntry, now time.Time, wait int64) (*models.FindOpponentResult, error) {
	exp := now.Add(time.Duration(s.Config.PartyTTLSecond) * time.Second).Unix()
	idle := *queue
	idle.Status = models.QueueStatusIdle
	idle.MatchType = ""
	idle.StartedAt = 0
	idle.MatchID = ""
	idle.PoolPK = ""
	idle.PoolSK = ""
	idle.UpdatedAt = now.UTC().Format(time.RFC3339)
	idle.ExpiresAt = exp

	err := s.Store.TransactWrite(ctx,
		DeleteIfExistsOp(models.TeamQueueTable, entry.PK, entry.SK),
		PutOp(models.PartyStateTable, idle),
	)
	if err == ErrConditionFailed {
		return nil, models.NotFoundError("queue entry no longer exists")
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"partyId": entry.PartyID, "waitMs": wait}).Info("queue entry timed out")
	s.publish(ctx, models.EventQueueStatusChanged, entry.PartyID, "", map[string]interface{}{
		"status": models.QueueStatusIdle,
		"reason": "timeout",
	})
	return &models.FindOpponentResult{TimedOut: true, QueueTimeMs: wait}, nil
}

// claim atomically removes both entries and flips both queue records to
// match_found. A lost claim degrades to "no match this cycle".
func (s *MatchmakingService) claim(ctx context.Context, queue *models.PartyQueueState, entry *models.TeamQueueEntry, cand models.TeamQueueEntry, now time.Time, wait int64, eloRange int) (*models.FindOpponentResult, error) {
	var oppQueue models.PartyQueueState
	found, err := s.Store.GetItem(ctx, models.PartyStateTable, cand.PartyID, models.SKPartyQueue, &oppQueue)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.FindOpponentResult{QueueTimeMs: wait, CurrentEloRange: eloRange}, nil
	}

	matchID := uuid.NewString()
	stamp := now.UTC().Format(time.RFC3339)

	mine := *queue
	mine.Status = models.QueueStatusMatchFound
	mine.MatchID = matchID
	mine.PoolPK = ""
	mine.PoolSK = ""
	mine.UpdatedAt = stamp

	theirs := oppQueue
	theirs.Status = models.QueueStatusMatchFound
	theirs.MatchID = matchID
	theirs.PoolPK = ""
	theirs.PoolSK = ""
	theirs.UpdatedAt = stamp

	err = s.Store.TransactWrite(ctx,
		DeleteIfExistsOp(models.TeamQueueTable, entry.PK, entry.SK),
		DeleteIfExistsOp(models.TeamQueueTable, cand.PK, cand.SK),
		PutOp(models.PartyStateTable, mine),
		PutOp(models.PartyStateTable, theirs),
	)
	if err == ErrConditionFailed {
		// Another scheduler run claimed one of the entries first.
		return &models.FindOpponentResult{QueueTimeMs: wait, CurrentEloRange: eloRange}, nil
	}
	if err != nil {
		return nil, err
	}

	match := &models.MatchResult{MatchID: matchID, TeamA: *entry, TeamB: cand, CreatedAt: stamp}
	logrus.WithFields(logrus.Fields{
		"matchId": matchID,
		"partyA":  entry.PartyID,
		"partyB":  cand.PartyID,
		"pool":    entry.PK,
	}).Info("match found")

	for _, p := range []struct{ partyID, opponent string }{
		{entry.PartyID, cand.PartyID},
		{cand.PartyID, entry.PartyID},
	} {
		s.publish(ctx, models.EventMatchFound, p.partyID, "", map[string]interface{}{
			"matchId":         matchID,
			"opponentPartyId": p.opponent,
		})
	}

	return &models.FindOpponentResult{Matched: true, MatchID: matchID, Match: match, QueueTimeMs: wait, CurrentEloRange: eloRange}, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
