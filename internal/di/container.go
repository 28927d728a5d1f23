package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/tolkdesk/api/internal/platform/config"
	"github.com/tolkdesk/api/internal/platform/observability"
	"github.com/tolkdesk/api/internal/platform/requestctx"
	"github.com/tolkdesk/api/internal/repositories"
	"github.com/tolkdesk/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Bookings      services.BookingService
	Matching      services.MatchingService
	Notifications services.NotificationService
	System        services.SystemService
	Audit         services.AuditLogService
}

// Senders carries the optional delivery clients injected from main. Nil fields
// disable the corresponding channel.
type Senders struct {
	Push   services.PushSender
	SMS    services.SMSSender
	Mailer services.Mailer
	Events services.BookingEventPublisher
}

// Container wires repositories, services, and delivery infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, senders Senders, logger *zap.Logger) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc, err := buildServices(cfg, reg, senders, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, senders Senders, logger *zap.Logger) (Services, error) {
	var svc Services

	eventLogger := newEventLogger(logger)

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      time.Now,
			Logger:     logger.Sugar(),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	matchingSvc, err := services.NewMatchingService(services.MatchingServiceDeps{
		Jobs:        reg.Jobs(),
		Assignments: reg.Assignments(),
		Translators: reg.Translators(),
		Clock:       time.Now,
		Logger:      eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build matching service: %w", err)
	}
	svc.Matching = matchingSvc

	notificationDeps := services.NotificationServiceDeps{
		Matching:    matchingSvc,
		Assignments: reg.Assignments(),
		Translators: reg.Translators(),
		Mailer:      senders.Mailer,
		Clock:       time.Now,
		Logger:      eventLogger,
	}
	if cfg.Features.EnablePushFanout {
		notificationDeps.Push = senders.Push
	}
	if cfg.Features.EnableSMSFanout {
		notificationDeps.SMS = senders.SMS
	}
	notificationSvc, err := services.NewNotificationService(notificationDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	sanitizer := bluemonday.StrictPolicy()
	bookingSvc, err := services.NewBookingService(services.BookingServiceDeps{
		Jobs:          reg.Jobs(),
		Assignments:   reg.Assignments(),
		Translators:   reg.Translators(),
		Customers:     reg.Customers(),
		Counters:      reg.Counters(),
		UnitOfWork:    reg,
		Notifications: notificationSvc,
		Audit:         svc.Audit,
		Events:        senders.Events,
		Clock:         time.Now,
		Sanitize: func(value string) string {
			return strings.TrimSpace(sanitizer.Sanitize(value))
		},
		Logger: eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build booking service: %w", err)
	}
	svc.Bookings = bookingSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build: services.BuildInfo{
				Environment: cfg.Environment,
				StartedAt:   time.Now().UTC(),
			},
			Audit: svc.Audit,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// newEventLogger adapts zap to the event/fields logging contract the services use.
func newEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		entry := observability.FromContext(ctx)
		if entry == requestctx.NoopLogger() {
			entry = logger
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		entry.Info(event, zapFields...)
	}
}
