package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"party_server/config"
	"party_server/controllers"
	"party_server/routes"
	"party_server/services"
	"party_server/socket"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the store client and adapter
	logrus.Info("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient(cfg.AWSRegion)
	store := services.NewDynamoService(dynamoClient, cfg)

	// Initialize the cross-process event bus
	logrus.WithField("addr", cfg.RedisAddr).Info("Connecting event bus...")
	bus, err := services.NewRedisBus(cfg.RedisAddr, cfg.EventChannel)
	if err != nil {
		logrus.Fatalf("Failed to connect event bus: %v", err)
	}
	defer bus.Close()

	// Initialize services
	partyService := services.NewPartyService(store, bus, cfg)
	inviteService := services.NewInviteService(store, bus, partyService, cfg)
	matchmakingService := services.NewMatchmakingService(store, bus, cfg)

	// Initialize the router
	r := mux.NewRouter()
	r.HandleFunc("/", controllers.WelcomeHandler).Methods("GET")
	r.HandleFunc("/health", controllers.HealthCheckHandler).Methods("GET")

	// Register routes
	routes.RegisterPartyRoutes(r, partyService)
	routes.RegisterInviteRoutes(r, inviteService)
	routes.RegisterMatchmakingRoutes(r, matchmakingService)

	// Delivery glue: socket fan-out of bus events
	socketServer := socket.NewSocketServer(bus)
	go func() {
		if err := socketServer.Serve(); err != nil {
			logrus.Errorf("Socket server stopped: %v", err)
		}
	}()
	defer socketServer.Close()
	r.Handle("/socket.io/", socketServer)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsHandler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.WithField("port", cfg.Port).Info("Starting server...")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Shutdown error: %v", err)
	}
}
