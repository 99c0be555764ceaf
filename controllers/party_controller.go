package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"party_server/helpers"
	"party_server/models"
	"party_server/services"
)

// PartyController handles HTTP requests for party lifecycle actions. The
// caller identity fields in each body are supplied by the session gateway.
type PartyController struct {
	PartyService *services.PartyService
}

// CreatePartyHandler creates a new party led by the requester.
func (c *PartyController) CreatePartyHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID  string               `json:"userId"`
		Name    string               `json:"name"`
		Profile models.MemberProfile `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	view, err := c.PartyService.CreateParty(r.Context(), request.UserID, request.Name, request.Profile)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusCreated, view)
}

// GetPartyHandler returns the full party view.
func (c *PartyController) GetPartyHandler(w http.ResponseWriter, r *http.Request) {
	view, err := c.PartyService.GetParty(r.Context(), mux.Vars(r)["partyId"])
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, view)
}

// JoinPartyHandler adds the requester to the party.
func (c *PartyController) JoinPartyHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID  string               `json:"userId"`
		Name    string               `json:"name"`
		Profile models.MemberProfile `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	view, err := c.PartyService.JoinParty(r.Context(), mux.Vars(r)["partyId"], request.UserID, request.Name, request.Profile)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, view)
}

// LeavePartyHandler removes the requester from the party.
func (c *PartyController) LeavePartyHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := c.PartyService.LeaveParty(r.Context(), mux.Vars(r)["partyId"], request.UserID)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, result)
}

// KickMemberHandler removes another member. Leader only.
func (c *PartyController) KickMemberHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		LeaderID     string `json:"leaderId"`
		TargetUserID string `json:"targetUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := c.PartyService.KickMember(r.Context(), mux.Vars(r)["partyId"], request.LeaderID, request.TargetUserID)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, result)
}

// DisbandPartyHandler deletes the whole party unit. Leader only.
func (c *PartyController) DisbandPartyHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		LeaderID string `json:"leaderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := c.PartyService.DisbandParty(r.Context(), mux.Vars(r)["partyId"], request.LeaderID); err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]bool{"disbanded": true})
}

// ToggleReadyHandler flips the requester's ready flag.
func (c *PartyController) ToggleReadyHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := c.PartyService.ToggleReady(r.Context(), mux.Vars(r)["partyId"], request.UserID)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, result)
}

// SetIGLHandler designates the in-game leader. Leader only.
func (c *PartyController) SetIGLHandler(w http.ResponseWriter, r *http.Request) {
	c.memberTargetAction(w, r, c.PartyService.SetIGL)
}

// SetAnchorHandler designates the anchor. Leader only.
func (c *PartyController) SetAnchorHandler(w http.ResponseWriter, r *http.Request) {
	c.memberTargetAction(w, r, c.PartyService.SetAnchor)
}

// TransferLeadershipHandler hands leadership to another member.
func (c *PartyController) TransferLeadershipHandler(w http.ResponseWriter, r *http.Request) {
	c.memberTargetAction(w, r, c.PartyService.TransferLeadership)
}

func (c *PartyController) memberTargetAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, partyID, leaderID, targetUserID string) error) {
	var request struct {
		LeaderID     string `json:"leaderId"`
		TargetUserID string `json:"targetUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := action(r.Context(), mux.Vars(r)["partyId"], request.LeaderID, request.TargetUserID); err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// SetPreferredOperationHandler records a member's preferred operation.
// Leader only; a null operation clears it.
func (c *PartyController) SetPreferredOperationHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		LeaderID     string  `json:"leaderId"`
		TargetUserID string  `json:"targetUserId"`
		Operation    *string `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := c.PartyService.SetPreferredOperation(r.Context(), mux.Vars(r)["partyId"], request.LeaderID, request.TargetUserID, request.Operation)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// LinkToTeamHandler attaches a persistent team identity. Leader only.
func (c *PartyController) LinkToTeamHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		LeaderID string `json:"leaderId"`
		TeamID   string `json:"teamId"`
		TeamName string `json:"teamName"`
		TeamTag  string `json:"teamTag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := c.PartyService.LinkToTeam(r.Context(), mux.Vars(r)["partyId"], request.LeaderID, request.TeamID, request.TeamName, request.TeamTag)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// SetTargetModeHandler changes the target team size mode. Leader only.
func (c *PartyController) SetTargetModeHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		LeaderID string `json:"leaderId"`
		Mode     string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := c.PartyService.SetTargetMode(r.Context(), mux.Vars(r)["partyId"], request.LeaderID, request.Mode)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// UpdateQueueStateHandler moves the party between idle and searching
// states. Leader only.
func (c *PartyController) UpdateQueueStateHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		LeaderID  string `json:"leaderId"`
		Status    string `json:"status"`
		MatchType string `json:"matchType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	queue, err := c.PartyService.UpdateQueueState(r.Context(), mux.Vars(r)["partyId"], request.LeaderID, request.Status, request.MatchType)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, queue)
}

// RefreshTTLHandler extends the expiry window of the whole party unit.
func (c *PartyController) RefreshTTLHandler(w http.ResponseWriter, r *http.Request) {
	if err := c.PartyService.RefreshTTL(r.Context(), mux.Vars(r)["partyId"]); err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// ValidateUserPartyHandler resolves and self-heals the user's party
// back-reference. Invoked at session start.
func (c *PartyController) ValidateUserPartyHandler(w http.ResponseWriter, r *http.Request) {
	view, err := c.PartyService.ValidateUserPartyState(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"inParty": view != nil,
		"party":   view,
	})
}
