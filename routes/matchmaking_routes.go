package routes

import (
	"party_server/controllers"
	"party_server/services"

	"github.com/gorilla/mux"
)

// RegisterMatchmakingRoutes registers matchmaking routes under `/api/matchmaking`
func RegisterMatchmakingRoutes(router *mux.Router, matchmakingService *services.MatchmakingService) {
	controller := &controllers.MatchmakingController{MatchmakingService: matchmakingService}

	mmRouter := router.PathPrefix("/api/matchmaking").Subrouter()
	mmRouter.HandleFunc("/queue", controller.JoinQueueHandler).Methods("POST")
	mmRouter.HandleFunc("/queue", controller.LeaveQueueHandler).Methods("DELETE")
	mmRouter.HandleFunc("/poll", controller.PollHandler).Methods("POST")
}
