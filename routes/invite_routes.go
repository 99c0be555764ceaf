package routes

import (
	"party_server/controllers"
	"party_server/services"

	"github.com/gorilla/mux"
)

// RegisterInviteRoutes registers all invite-related routes under `/api/invites`
func RegisterInviteRoutes(router *mux.Router, inviteService *services.InviteService) {
	controller := &controllers.InviteController{InviteService: inviteService}

	inviteRouter := router.PathPrefix("/api/invites").Subrouter()
	inviteRouter.HandleFunc("", controller.CreateInviteHandler).Methods("POST")
	inviteRouter.HandleFunc("/pending/{userId}", controller.GetPendingInvitesHandler).Methods("GET")
	inviteRouter.HandleFunc("/accept", controller.AcceptInviteHandler).Methods("POST")
	inviteRouter.HandleFunc("/decline", controller.DeclineInviteHandler).Methods("POST")
}
