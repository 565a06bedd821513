package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/gift-exchange/internal/events"
	"github.com/spec-kit/gift-exchange/internal/repository"
)

// AuditService records session lifecycle events.
type AuditService struct {
	dispatcher events.Dispatcher
	repo       repository.AuditRepository
	logger     *zap.Logger
}

// NewAuditService creates the service. repo may be nil, in which case events are only logged.
func NewAuditService(dispatcher events.Dispatcher, repo repository.AuditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		repo:       repo,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to every session event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(a.handleSessionEvent)
}

func (a *AuditService) handleSessionEvent(ctx context.Context, event events.Event) error {
	a.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("session_id", event.SessionID),
		zap.String("user_id", event.UserID),
		zap.String("reason", string(event.Reason)),
		zap.String("error", string(event.Error)),
	)
	if a.repo == nil {
		return nil
	}

	err := a.repo.Insert(ctx, &repository.AuditEvent{
		ID:         event.ID,
		Action:     string(event.Type),
		SessionID:  event.SessionID,
		UserID:     event.UserID,
		Reason:     string(event.Reason),
		Error:      string(event.Error),
		OccurredAt: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", event.Type, err)
	}
	return nil
}
