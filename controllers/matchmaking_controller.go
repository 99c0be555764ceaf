package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"party_server/helpers"
	"party_server/models"
	"party_server/services"
)

// MatchmakingController handles HTTP requests for the team matchmaking
// engine.
type MatchmakingController struct {
	MatchmakingService *services.MatchmakingService
}

// JoinQueueHandler admits a party into the matchmaking pool.
func (c *MatchmakingController) JoinQueueHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PartyID   string               `json:"partyId"`
		LeaderID  string               `json:"leaderId"`
		MatchType string               `json:"matchType"`
		Members   []models.QueueMember `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := c.MatchmakingService.JoinQueue(r.Context(), request.PartyID, request.LeaderID, request.MatchType, request.Members)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusCreated, entry)
}

// LeaveQueueHandler cancels an active search. Leader only.
func (c *MatchmakingController) LeaveQueueHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PartyID  string `json:"partyId"`
		LeaderID string `json:"leaderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := c.MatchmakingService.LeaveQueue(r.Context(), request.PartyID, request.LeaderID); err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// PollHandler re-evaluates the pool for a queued party: timeout, match, or
// the current wait and tolerance.
func (c *MatchmakingController) PollHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PartyID string `json:"partyId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := c.MatchmakingService.FindOpponent(r.Context(), request.PartyID, time.Now())
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, result)
}
