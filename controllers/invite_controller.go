package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"party_server/helpers"
	"party_server/models"
	"party_server/services"
)

// InviteController handles HTTP requests for invite-related actions
type InviteController struct {
	InviteService *services.InviteService
}

// CreateInviteHandler invites a user into a party.
func (c *InviteController) CreateInviteHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PartyID     string `json:"partyId"`
		InviterID   string `json:"inviterId"`
		InviterName string `json:"inviterName"`
		InviteeID   string `json:"inviteeId"`
		InviteeName string `json:"inviteeName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	invite, err := c.InviteService.CreateInvite(r.Context(), request.PartyID, request.InviterID, request.InviterName, request.InviteeID, request.InviteeName)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusCreated, invite)
}

// GetPendingInvitesHandler returns the user's live invites.
func (c *InviteController) GetPendingInvitesHandler(w http.ResponseWriter, r *http.Request) {
	invites, err := c.InviteService.GetUserPendingInvites(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, invites)
}

// AcceptInviteHandler consumes an invite and joins the party.
func (c *InviteController) AcceptInviteHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PartyID string               `json:"partyId"`
		UserID  string               `json:"userId"`
		Name    string               `json:"name"`
		Profile models.MemberProfile `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	view, err := c.InviteService.AcceptInvite(r.Context(), request.PartyID, request.UserID, request.Name, request.Profile)
	if err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, view)
}

// DeclineInviteHandler removes an invite without joining.
func (c *InviteController) DeclineInviteHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PartyID string `json:"partyId"`
		UserID  string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := c.InviteService.DeclineInvite(r.Context(), request.PartyID, request.UserID); err != nil {
		helpers.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}
