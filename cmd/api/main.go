package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tolkdesk/api/internal/di"
	"github.com/tolkdesk/api/internal/handlers"
	"github.com/tolkdesk/api/internal/platform/config"
	"github.com/tolkdesk/api/internal/platform/events"
	pfirestore "github.com/tolkdesk/api/internal/platform/firestore"
	"github.com/tolkdesk/api/internal/platform/mail"
	"github.com/tolkdesk/api/internal/platform/observability"
	"github.com/tolkdesk/api/internal/platform/push"
	"github.com/tolkdesk/api/internal/platform/secrets"
	"github.com/tolkdesk/api/internal/platform/sms"
	"github.com/tolkdesk/api/internal/repositories"
	firestoreRepo "github.com/tolkdesk/api/internal/repositories/firestore"
	"github.com/tolkdesk/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var (
		pubsubClient *pubsub.Client
		eventTopic   *pubsub.Topic
		publisher    services.BookingEventPublisher
	)
	if cfg.PubSub.ProjectID != "" {
		if cfg.PubSub.EmulatorHost != "" {
			_ = os.Setenv("PUBSUB_EMULATOR_HOST", cfg.PubSub.EmulatorHost)
		}
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventTopic = pubsubClient.Topic(cfg.PubSub.EventTopic)
		defer eventTopic.Stop()

		publisher, err = events.NewPubSubBookingPublisher(eventTopic)
		if err != nil {
			logger.Fatal("failed to initialise booking event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("pubsub project not configured; booking events are disabled")
	}

	healthRepo, err := newHealthRepository(firestoreClient, eventTopic)
	if err != nil {
		logger.Warn("health: dependency checks init failed", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	senders := di.Senders{Events: publisher}
	if cfg.Features.EnablePushFanout {
		if cfg.Push.AppID == "" {
			logger.Warn("push fanout enabled but push gateway is not configured")
		} else {
			pushClient, err := push.NewOneSignalClient(cfg.Push, newDeliveryLogger(logger.Named("push")))
			if err != nil {
				logger.Fatal("failed to initialise push client", zap.Error(err))
			}
			senders.Push = pushClient
		}
	}
	if cfg.Features.EnableSMSFanout {
		if cfg.SMS.Endpoint == "" {
			logger.Warn("sms fanout enabled but sms gateway is not configured")
		} else {
			smsClient, err := sms.NewClient(cfg.SMS, newDeliveryLogger(logger.Named("sms")))
			if err != nil {
				logger.Fatal("failed to initialise sms client", zap.Error(err))
			}
			senders.SMS = smsClient
		}
	}
	if cfg.Mail.Endpoint != "" {
		mailClient, err := mail.NewClient(cfg.Mail, newDeliveryLogger(logger.Named("mail")))
		if err != nil {
			logger.Fatal("failed to initialise mail client", zap.Error(err))
		}
		senders.Mailer = mailClient
	} else {
		logger.Warn("mail gateway not configured; booking mails are disabled")
	}

	container, err := di.NewContainer(ctx, cfg, registry, senders, logger)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	bookingHandlers := handlers.NewBookingHandlers(container.Services.Bookings)
	meHandlers := handlers.NewMeHandlers(container.Services.Bookings, container.Services.Matching)
	adminHandlers := handlers.NewAdminHandlers(container.Services.System, container.Services.Bookings, container.Services.Matching)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithBookingRoutes(bookingHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithAdminMiddlewares(handlers.RateLimitMiddleware(cfg.RateLimits.AuthenticatedPerMinute)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("tolkdesk api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// newDeliveryLogger adapts zap to the event/fields contract of the delivery clients.
func newDeliveryLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	envLabel := strings.ToLower(strings.TrimSpace(os.Getenv("API_ENVIRONMENT")))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := strings.TrimSpace(os.Getenv("API_SECRET_DEFAULT_PROJECT_ID"))
	if defaultProject == "" {
		defaultProject = strings.TrimSpace(os.Getenv("API_FIRESTORE_PROJECT_ID"))
	}
	fallbackPath := strings.TrimSpace(os.Getenv("API_SECRET_FALLBACK_FILE"))
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := strings.TrimSpace(os.Getenv("API_SECRET_CREDENTIALS_FILE")); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
