/**
 * @description
 * This is the main entry point for the rental-control service. It is responsible for
 * initializing all components of the service, including configuration, the rental
 * store, external API clients, the event producer, the core application service, and
 * the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/scooterclient, pkg/userclient, pkg/lockclient, pkg/paymentclient: Clients for the collaborating services.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/patinete/aluguel-service/internal/api"
	"github.com/patinete/aluguel-service/internal/app"
	"github.com/patinete/aluguel-service/internal/config"
	"github.com/patinete/aluguel-service/internal/store"
	"github.com/patinete/aluguel-service/pkg/lockclient"
	"github.com/patinete/aluguel-service/pkg/paymentclient"
	"github.com/patinete/aluguel-service/pkg/rabbitmq"
	"github.com/patinete/aluguel-service/pkg/scooterclient"
	"github.com/patinete/aluguel-service/pkg/userclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting rental-control service\" port=%s", cfg.ServerPort)

	// Open the local rental store. The schema is created on first use.
	repository, err := store.NewSQLiteRepository(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rental store open failed\" err=%v", err)
	}
	defer repository.Close()
	log.Printf("level=info component=bootstrap msg=\"rental store opened\" path=%s", cfg.DatabasePath)

	// Initialize the event producer. A missing broker degrades to a no-op
	// fallback; the saga itself never depends on the bus.
	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url not configured; lifecycle events disabled\"")
		producer = &rabbitmq.EventProducerFallback{}
	} else if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		producer = p
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	defer producer.Close()

	// Initialize the clients for the collaborating services.
	clientTimeout := time.Duration(cfg.ClientTimeoutSeconds) * time.Second
	scooterClient := scooterclient.NewClient(cfg.ScooterRegistryURL, clientTimeout)
	userClient := userclient.NewClient(cfg.UserRegistryURL, clientTimeout)
	lockClient := lockclient.NewClient(cfg.LockControllerURL, clientTimeout)
	paymentClient := paymentclient.NewClient(cfg.PaymentServiceURL, clientTimeout)

	// Initialize the core application service with its dependencies.
	rentalService := app.NewService(
		repository,
		scooterClient,
		userClient,
		lockClient,
		paymentClient,
		producer,
		app.Pricing{
			FixedFeeCents:     cfg.FixedFeeCents,
			PerMinuteFeeCents: cfg.PerMinuteFeeCents,
		},
	)

	// Initialize the API handlers.
	rentalHandlers := api.NewRentalHandlers(rentalService)

	// Set up the HTTP router. The gateway forwards the /aluguel prefix as-is.
	router := chi.NewRouter()
	router.Mount("/aluguel", api.RentalRoutes(rentalHandlers))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
