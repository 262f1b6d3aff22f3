package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avisser/budget-engine/internal/api"
	"github.com/avisser/budget-engine/internal/apperrors"
	"github.com/avisser/budget-engine/internal/config"
	"github.com/avisser/budget-engine/internal/database"
	"github.com/avisser/budget-engine/internal/events"
	"github.com/avisser/budget-engine/internal/provider"
	"github.com/avisser/budget-engine/internal/repository"
	"github.com/avisser/budget-engine/internal/secure"
	"github.com/avisser/budget-engine/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database: %s", cfg.Database.Path)

	// Apply pending migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Create repositories
	rateRepo := repository.NewRateRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	payeeRepo := repository.NewPayeeRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	bus := events.NewBus()

	// Rate providers. The keyed API is only registered when a key is present,
	// either in the environment or encrypted in the preferences table.
	providers := []provider.Provider{}
	if apiKey := resolveRateAPIKey(cfg, prefRepo); apiKey != "" {
		providers = append(providers, provider.NewAPIProvider(cfg.Rates.APIBaseURL, apiKey))
	}
	providers = append(providers, provider.NewBTCProvider(cfg.Rates.BTCBaseURL))

	// Create services
	systemService := service.NewSystemService(db)
	rateService := service.NewRateService(
		providers,
		rateRepo,
		prefRepo,
		accountRepo,
		bus,
	)
	scheduleService := service.NewScheduleService(
		db,
		scheduleRepo,
		ruleRepo,
		accountRepo,
		payeeRepo,
		categoryRepo,
		transactionRepo,
		prefRepo,
		bus,
	)

	// Background work: periodic rate refresh and the daily schedule pass.
	rateService.StartPeriodicUpdate()

	scheduler := cron.New()
	_, err = scheduler.AddFunc("5 0 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := scheduleService.AdvanceSchedules(ctx, true, false); err != nil {
			log.Printf("Scheduled advancement failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to register schedule advancement job: %v", err)
	}
	scheduler.Start()

	// Create router
	router := api.NewRouter(systemService, scheduleService, rateService, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	<-scheduler.Stop().Done()
	rateService.Stop()

	log.Println("Server exited")
}

// resolveRateAPIKey returns the exchange API key from the environment, or
// from the preferences table where it is stored fernet-encrypted. An absent
// or undecryptable key disables the keyed provider rather than failing boot.
func resolveRateAPIKey(cfg *config.Config, prefRepo *repository.PreferenceRepository) string {
	if cfg.Rates.APIKey != "" {
		return cfg.Rates.APIKey
	}

	cipher, err := secure.NewTokenCipher(cfg.Fernet.Key)
	if err != nil {
		log.Printf("Invalid fernet key, skipping stored API key: %v", err)
		return ""
	}
	if cipher == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sealed, err := prefRepo.Get(ctx, repository.PrefRateAPIKey)
	if err != nil {
		if !errors.Is(err, apperrors.ErrPreferenceNotFound) {
			log.Printf("Failed to read stored API key: %v", err)
		}
		return ""
	}

	key, err := cipher.Decrypt(sealed)
	if err != nil {
		log.Printf("Failed to decrypt stored API key: %v", err)
		return ""
	}
	return key
}
