// Package board holds the rules for creating and listing messages.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"messageboard/logger"
	"messageboard/metrics"
	"messageboard/models"
	"messageboard/store"
)

var (
	ErrEmptyText = errors.New("message text is empty")
	ErrTooLong   = errors.New("message text too long")
	ErrInvalid   = errors.New("message invalid")
)

// tombstoneTTL bounds how long a deleted id keeps copies still in flight on
// the fan-out path from reaching readers.
const tombstoneTTL = 10 * time.Minute

type Service struct {
	repo      store.Repository
	validator *MessageValidator
	primary   Publisher
	fallback  Publisher
	maxLen    int
	now       func() time.Time

	mu      sync.Mutex
	deleted map[string]time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher sets the primary fan-out path (Kafka in production).
func WithPublisher(p Publisher) Option { return func(s *Service) { s.primary = p } }

// WithFallback sets the path used when the primary publisher is absent or fails.
func WithFallback(p Publisher) Option { return func(s *Service) { s.fallback = p } }

// WithValidator replaces the built-in schema validator.
func WithValidator(v *MessageValidator) Option { return func(s *Service) { s.validator = v } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo store.Repository, maxLen int, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		validator: NewMessageValidator(),
		maxLen:    maxLen,
		now:       time.Now,
		deleted:   make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates text, stores it as a new message and announces it. The
// message is persisted before it is published, so a page rendered after
// Create returns always includes it.
func (s *Service) Create(ctx context.Context, text string) (models.Message, error) {
	if text == "" {
		return models.Message{}, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > s.maxLen {
		return models.Message{}, fmt.Errorf("%w: max %d characters", ErrTooLong, s.maxLen)
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if s.validator != nil {
		if err := s.validator.Validate(msg); err != nil {
			return models.Message{}, err
		}
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return models.Message{}, err
	}
	metrics.IncMsgCreated()
	logger.Info("message created", logger.FieldKV("message_id", msg.ID))
	s.publish(ctx, msg)
	return msg, nil
}

func (s *Service) publish(ctx context.Context, msg models.Message) {
	if s.primary != nil {
		err := s.primary.Publish(ctx, msg)
		if err == nil {
			return
		}
		logger.Error("publish failed, using fallback", err, logger.FieldKV("message_id", msg.ID))
	}
	if s.fallback != nil {
		if err := s.fallback.Publish(ctx, msg); err != nil {
			logger.Error("fallback publish failed", err, logger.FieldKV("message_id", msg.ID))
		}
	}
}

// MaxLength is the longest accepted text, in characters.
func (s *Service) MaxLength() int { return s.maxLen }

// List returns up to limit of the newest messages, oldest first. limit <= 0 means all.
func (s *Service) List(ctx context.Context, limit int) ([]models.Message, error) {
	return s.repo.GetRecentMessages(ctx, limit)
}

// Delete removes a message and remembers its id, so a copy of it still
// travelling through the fan-out path is neither shown nor stored again.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteMessage(ctx, id); err != nil {
		return err
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.deleted {
		if now.Sub(at) > tombstoneTTL {
			delete(s.deleted, k)
		}
	}
	s.deleted[id] = now
	return nil
}

// Deleted reports whether id was deleted through this service recently.
func (s *Service) Deleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.deleted[id]
	return ok && s.now().Sub(at) <= tombstoneTTL
}
