package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/vaultline/custodian-backend/internal/accountlink"
	"github.com/vaultline/custodian-backend/internal/balancesync"
	"github.com/vaultline/custodian-backend/internal/breaker"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/fallback"
	"github.com/vaultline/custodian-backend/internal/health"
	"github.com/vaultline/custodian-backend/internal/pkg/cache"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
	"github.com/vaultline/custodian-backend/internal/pkg/mail"
	"github.com/vaultline/custodian-backend/internal/pkg/middleware"
	"github.com/vaultline/custodian-backend/internal/reconciliation"
	"github.com/vaultline/custodian-backend/internal/retry"
	"github.com/vaultline/custodian-backend/internal/store"
	"github.com/vaultline/custodian-backend/internal/transfer"
	"github.com/vaultline/custodian-backend/internal/webhook"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	setupViper()
	setupZerolog()

	ctx := context.Background()

	db := setupDb()
	repo := store.NewGormRepository(db)
	cacheStore := setupCache()
	publisher := events.NewDispatcher(setupPublisher(ctx))

	registry := setupRegistry()
	circuitBreaker := breaker.New(cacheStore, breaker.Config{})
	retrier := retry.NewExecutor(retry.NetworkProfile())

	monitor := health.NewMonitor(registry, circuitBreaker, cacheStore, publisher)
	alerting := health.NewAlertingService(monitor, cacheStore, health.LogNotifier{}, health.DefaultAlertCooldown)
	publisher.Subscribe(health.HealthChangeSubscription(alerting))
	fallbackService := fallback.NewService(cacheStore, repo, registry)
	synchronizer := balancesync.NewSynchronizer(registry, repo, circuitBreaker, publisher)

	reports := reconciliation.NewFileReportStore(viper.GetString("RECONCILIATION_REPORT_DIR"))
	reconciler := reconciliation.NewService(synchronizer, registry, repo, reports, publisher,
		health.LogNotifier{}, mail.LogMailer{}, viper.GetStringSlice("RECONCILIATION_RECIPIENTS"))

	verifier := webhook.NewVerifier(map[string]string{
		"paysera":   viper.GetString("PAYSERA_WEBHOOK_SECRET"),
		"santander": viper.GetString("SANTANDER_WEBHOOK_SECRET"),
	})
	processor := webhook.NewProcessor(repo, synchronizer, publisher)

	transferService := transfer.NewService(registry, repo, circuitBreaker, retrier, fallbackService, publisher)
	linkService := accountlink.NewService(registry, repo)

	apiRouter := gin.Default()
	middleware.RegisterGlobalMiddleware(apiRouter)
	routerGroup := apiRouter.Group("/custodian-api")

	health.RegisterRoutes(routerGroup, monitor, alerting, circuitBreaker, registry)
	accountlink.RegisterRoutes(routerGroup, linkService)
	balancesync.RegisterRoutes(routerGroup, synchronizer, repo)
	transfer.RegisterRoutes(routerGroup, transferService)
	webhook.RegisterRoutes(routerGroup, verifier, processor, repo)
	reconciliation.RegisterRoutes(routerGroup, reconciler)

	port := viper.GetString("PORT")
	server := &http.Server{
		Addr:         port,
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	server.ListenAndServe()
}

func setupDb() *gorm.DB {
	dbUrl := viper.GetString("DB_URL")

	db, err := gorm.Open(postgres.Open(dbUrl), &gorm.Config{})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	sqlDb, _ := db.DB()

	sqlDb.SetMaxOpenConns(50)
	sqlDb.SetConnMaxLifetime(time.Minute * 10)

	return db
}

func setupCache() cache.Store {
	redisUrl := viper.GetString("REDIS_URL")
	if redisUrl == "" {
		log.Warn().Msg("REDIS_URL not set, using in-process cache")
		return cache.NewMemoryStore()
	}

	options, err := redis.ParseURL(redisUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse redis url")
	}

	return cache.NewRedisStore(redis.NewClient(options), "custodian")
}

func setupPublisher(ctx context.Context) events.Publisher {
	projectId := viper.GetString("GOOGLE_PROJECT_ID")
	if projectId == "" {
		log.Warn().Msg("GOOGLE_PROJECT_ID not set, domain events will only be logged")
		return events.LogPublisher{}
	}

	publisher, err := events.NewPubSubPublisher(ctx, projectId)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pubsub publisher")
	}
	return publisher
}

// setupRegistry wires the configured custodian connectors. Real bank
// connectors register here once their API clients land; the mock custodian
// backs local development and the test environments.
func setupRegistry() *custodian.Registry {
	registry := custodian.NewRegistry()

	mock := custodian.NewMockConnector("mock")
	registry.Register(mock)

	return registry
}

func setupViper() {
	viper.AutomaticEnv()
	viper.SetConfigFile("./.env")
}

func setupZerolog() {
	zerolog.LevelFieldName = "severity"
	zerolog.TimestampFieldName = "time"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
