package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tolkdesk/api/internal/domain"
	"github.com/tolkdesk/api/internal/repositories"
)

const hashedValuePrefix = "sha256:"

// Metadata keys whose values are hashed before storage. Booking audit trails
// must not retain raw contact details.
var sensitiveAuditKeys = map[string]bool{
	"email": true,
	"phone": true,
}

// AuditLogger defines the logging contract used by the audit writer service.
type AuditLogger interface {
	Warnf(format string, args ...any)
}

type auditLogService struct {
	repo     repositories.AuditLogRepository
	clock    func() time.Time
	newID    func() string
	logger   AuditLogger
	hashSalt string
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      AuditLogger
	HashSalt    string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopAuditLogger{}
	}

	return &auditLogService{
		repo:     deps.Repository,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		hashSalt: deps.HashSalt,
	}, nil
}

// Record persists an audit log entry after sanitising sensitive fields.
// Repository failures are logged but do not bubble up, so a failing audit
// write never interrupts the booking flow it describes.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(record)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Warnf("audit log append failed: %v", err)
	}
}

// List delegates to the repository to retrieve paginated audit logs.
func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	return s.repo.List(ctx, repositories.AuditLogFilter{
		Target:     strings.TrimSpace(filter.Target),
		Actor:      strings.TrimSpace(filter.Actor),
		Action:     strings.TrimSpace(filter.Action),
		DateRange:  filter.DateRange,
		Pagination: filter.Pagination,
	})
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLog {
	entry := domain.AuditLog{
		ID:        "aud_" + s.newID(),
		Actor:     sanitizeAuditText(record.Actor, 160),
		Action:    sanitizeAuditText(record.Action, 120),
		Target:    sanitizeAuditText(record.Target, 200),
		CreatedAt: s.clock(),
	}

	if len(record.Metadata) > 0 {
		meta := make(map[string]any, len(record.Metadata))
		for key, value := range record.Metadata {
			trimmed := sanitizeAuditText(key, 80)
			if trimmed == "" {
				continue
			}
			if sensitiveAuditKeys[strings.ToLower(trimmed)] {
				meta[trimmed] = hashedValuePrefix + s.hashValue(value)
				continue
			}
			meta[trimmed] = sanitizeAuditValue(value)
		}
		entry.Metadata = meta
	}

	return entry
}

func (s *auditLogService) hashValue(value any) string {
	var plain string
	switch v := value.(type) {
	case string:
		plain = v
	case fmt.Stringer:
		plain = v.String()
	case []byte:
		plain = string(v)
	default:
		if b, err := json.Marshal(v); err == nil {
			plain = string(b)
		} else {
			plain = fmt.Sprintf("%T", value)
		}
	}
	sum := sha256.Sum256([]byte(s.hashSalt + strings.TrimSpace(plain)))
	return hex.EncodeToString(sum[:])
}

type noopAuditLogger struct{}

func (noopAuditLogger) Warnf(string, ...any) {}

func sanitizeAuditValue(value any) any {
	switch v := value.(type) {
	case string:
		return sanitizeAuditText(v, 512)
	case fmt.Stringer:
		return sanitizeAuditText(v.String(), 512)
	default:
		return v
	}
}

// sanitizeAuditText strips control characters and bounds the length of
// free-text audit fields.
func sanitizeAuditText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
