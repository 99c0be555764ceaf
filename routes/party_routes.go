package routes

import (
	"party_server/controllers"
	"party_server/services"

	"github.com/gorilla/mux"
)

// RegisterPartyRoutes registers all party lifecycle routes under `/api/parties`
func RegisterPartyRoutes(router *mux.Router, partyService *services.PartyService) {
	controller := &controllers.PartyController{PartyService: partyService}

	partyRouter := router.PathPrefix("/api/parties").Subrouter()
	partyRouter.HandleFunc("", controller.CreatePartyHandler).Methods("POST")
	partyRouter.HandleFunc("/{partyId}", controller.GetPartyHandler).Methods("GET")
	partyRouter.HandleFunc("/{partyId}/join", controller.JoinPartyHandler).Methods("POST")
	partyRouter.HandleFunc("/{partyId}/leave", controller.LeavePartyHandler).Methods("POST")
	partyRouter.HandleFunc("/{partyId}/kick", controller.KickMemberHandler).Methods("POST")
	partyRouter.HandleFunc("/{partyId}/disband", controller.DisbandPartyHandler).Methods("POST")
	partyRouter.HandleFunc("/{partyId}/ready", controller.ToggleReadyHandler).Methods("POST")
	partyRouter.HandleFunc("/{partyId}/igl", controller.SetIGLHandler).Methods("PUT")
	partyRouter.HandleFunc("/{partyId}/anchor", controller.SetAnchorHandler).Methods("PUT")
	partyRouter.HandleFunc("/{partyId}/operation", controller.SetPreferredOperationHandler).Methods("PUT")
	partyRouter.HandleFunc("/{partyId}/leader", controller.TransferLeadershipHandler).Methods("PUT")
	partyRouter.HandleFunc("/{partyId}/team", controller.LinkToTeamHandler).Methods("PUT")
	partyRouter.HandleFunc("/{partyId}/mode", controller.SetTargetModeHandler).Methods("PUT")
	partyRouter.HandleFunc("/{partyId}/queue", controller.UpdateQueueStateHandler).Methods("PUT")
	partyRouter.HandleFunc("/{partyId}/refresh", controller.RefreshTTLHandler).Methods("POST")

	router.HandleFunc("/api/users/{userId}/party", controller.ValidateUserPartyHandler).Methods("GET")
}
