package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

var (
	ErrForbidden          = errors.New("admin role required")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
)

// numberAttempts bounds the retries after a document number collision.
const numberAttempts = 5

// Document size limits. With money.MaxCents they keep every subtotal and
// document total inside int64.
const (
	maxLineQuantity  = 10_000
	maxDocumentLines = 200
)

func checkLineQuantity(quantity int) error {
	if quantity < 1 {
		return invalid("quantity must be at least 1")
	}
	if quantity > maxLineQuantity {
		return invalid("quantity must be at most %d", maxLineQuantity)
	}
	return nil
}

func checkLineCount(n int) error {
	if n > maxDocumentLines {
		return invalid("at most %d lines per document", maxDocumentLines)
	}
	return nil
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Assistant answers free-form questions about the catalog and clinic.
type Assistant interface {
	Chat(ctx context.Context, req domain.AssistantRequest) (domain.AssistantResponse, error)
	SalesHelp(ctx context.Context, message string) (domain.AssistantResponse, error)
}

type Options struct {
	Location  *time.Location
	CostBasis string
	Logger    *zap.Logger
	Assistant Assistant

	// Now and Numbers are replaced in tests.
	Now     func() time.Time
	Numbers func(prefix string, at time.Time) string
}

type Service struct {
	repo      store.Repository
	assistant Assistant
	logger    *zap.Logger
	location  *time.Location
	costBasis string
	now       func() time.Time
	numbers   func(prefix string, at time.Time) string
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CostBasis != domain.CostBasisHistorical {
		opts.CostBasis = domain.CostBasisCurrent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Numbers == nil {
		opts.Numbers = xid.DocumentNumber
	}

	return &Service{
		repo:      repo,
		assistant: opts.Assistant,
		logger:    opts.Logger,
		location:  opts.Location,
		costBasis: opts.CostBasis,
		now:       opts.Now,
		numbers:   opts.Numbers,
	}
}

func (s *Service) Location() *time.Location {
	return s.location
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

// withDocumentNumber runs create with fresh numbers until the store accepts
// one. Only number collisions are retried.
func withDocumentNumber[T any](s *Service, prefix string, create func(number string, at time.Time) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		at := s.now().UTC()
		number := s.numbers(prefix, at.In(s.location))
		result, err = create(number, at)
		if !errors.Is(err, store.ErrDuplicateNumber) {
			return result, err
		}
		s.logger.Warn("document number collision",
			zap.String("prefix", prefix),
			zap.String("number", number),
			zap.Int("attempt", attempt),
		)
	}
	return result, fmt.Errorf("could not allocate a %s number after %d attempts: %w", prefix, numberAttempts, err)
}

// dayRange converts inclusive business-local dates (YYYY-MM-DD) into a
// half-open UTC range. Empty bounds stay open.
func (s *Service) dayRange(from string, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	if strings.TrimSpace(from) != "" {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(from), s.location)
		if err != nil {
			return time.Time{}, time.Time{}, invalid("from must be YYYY-MM-DD")
		}
		start = parsed
	}
	if strings.TrimSpace(to) != "" {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(to), s.location)
		if err != nil {
			return time.Time{}, time.Time{}, invalid("to must be YYYY-MM-DD")
		}
		end = parsed.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return time.Time{}, time.Time{}, invalid("from must not be after to")
	}
	return start, end, nil
}

func (s *Service) today() time.Time {
	now := s.now().In(s.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.today()
	} else {
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), s.location)
		if err != nil {
			return nil, invalid("date must be YYYY-MM-DD")
		}
		from = parsed
	}
	to := from.AddDate(0, 0, 1)

	return s.repo.ListAuditLogs(ctx, from.UTC(), to.UTC(), limit)
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
