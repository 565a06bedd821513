package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/events"
)

// Navigator moves the client to a location after a forced sign-out.
type Navigator func(ctx context.Context, location string)

// ErrorHandler signs the session out as soon as a view carries a refresh error.
type ErrorHandler struct {
	store     *Store
	loginPath string
	navigate  Navigator
	logger    *zap.Logger
}

// NewErrorHandler builds a handler for store. navigate may be nil.
func NewErrorHandler(store *Store, loginPath string, navigate Navigator, logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{store: store, loginPath: loginPath, navigate: navigate, logger: logger}
}

// Attach subscribes the handler to its store and returns the detach func.
func (h *ErrorHandler) Attach() func() {
	return h.store.Subscribe(h.handle)
}

func (h *ErrorHandler) handle(ctx context.Context, ch Change) {
	if ch.Kind != events.EventSessionErrored || ch.View == nil || !ch.View.Error.ForcesSignOut() {
		return
	}
	if !h.store.SignOut(ctx, domain.SignOutSessionExpired) {
		return
	}

	location := domain.SignOutSessionExpired.LoginPath(h.loginPath)
	h.logger.Warn("session.forced_sign_out",
		zap.String("session_id", ch.SessionID),
		zap.String("error", string(ch.View.Error)),
		zap.String("redirect", location),
	)
	if h.navigate != nil {
		h.navigate(ctx, location)
	}
}
