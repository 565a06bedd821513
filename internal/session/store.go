// Package session holds the explicit session context: the current Token
// Record, its refresh-on-read projection and the change notifications that
// drive sign-out.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/events"
	"github.com/spec-kit/gift-exchange/internal/observability"
)

// ErrNoSession is returned by operations that need a current record.
var ErrNoSession = errors.New("no active session")

// Refresher renews an expired access token. It never returns an error; failures
// are reported through the record's Error tag.
type Refresher interface {
	Refresh(ctx context.Context, rec domain.TokenRecord) domain.TokenRecord
}

// Change describes one session transition. View is nil once the session has ended.
type Change struct {
	Kind      events.EventType
	SessionID string
	View      *domain.SessionView
	Reason    domain.SignOutReason
}

// Listener observes session changes. Listeners run synchronously, outside the
// store lock, in subscription order, and may call back into the store.
type Listener func(context.Context, Change)

type subscription struct {
	id int
	fn Listener
}

// Option customizes a Store.
type Option func(*Store)

// WithDispatcher publishes every change as a session event.
func WithDispatcher(d events.Dispatcher) Option {
	return func(s *Store) { s.dispatcher = d }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics counts sign-outs.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store owns one Token Record. All reads are copies.
type Store struct {
	refresher  Refresher
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu        sync.Mutex
	rec       *domain.TokenRecord
	dirty     bool
	announced domain.SessionError
	subs      []subscription
	nextSubID int
}

// NewStore builds an empty store.
func NewStore(refresher Refresher, opts ...Option) *Store {
	s := &Store{refresher: refresher, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin installs the record of a fresh credential exchange.
func (s *Store) Begin(ctx context.Context, rec domain.TokenRecord) {
	s.mu.Lock()
	s.rec = &rec
	s.dirty = true
	s.announced = domain.SessionErrorNone
	s.mu.Unlock()

	view := domain.Project(rec)
	s.emit(ctx, Change{Kind: events.EventSessionStarted, SessionID: rec.SessionID, View: &view}, rec.Identity.ID)
}

// Restore rehydrates a record read back from the token store. It emits nothing.
func (s *Store) Restore(rec domain.TokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
	s.dirty = false
	s.announced = domain.SessionErrorNone
}

// Record returns a copy of the current record.
func (s *Store) Record() (domain.TokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return domain.TokenRecord{}, false
	}
	return *s.rec, true
}

// Dirty reports whether the record changed since Restore and must be written back.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// View refreshes the record when its access token has expired and returns the
// projection. It returns nil when there is no session.
//
// A refresh result is dropped when the session was replaced or ended while the
// refresh was in flight.
func (s *Store) View(ctx context.Context) *domain.SessionView {
	s.mu.Lock()
	if s.rec == nil {
		s.mu.Unlock()
		return nil
	}
	current := *s.rec
	s.mu.Unlock()

	refreshed := current
	if s.refresher != nil {
		refreshed = s.refresher.Refresh(ctx, current)
	}

	s.mu.Lock()
	if s.rec == nil {
		s.mu.Unlock()
		return nil
	}
	if s.rec.SessionID != current.SessionID {
		view := domain.Project(*s.rec)
		s.mu.Unlock()
		s.logger.Debug("session.refresh_discarded", zap.String("session_id", current.SessionID))
		return &view
	}

	kind := events.EventType("")
	if tokenChanged(current, refreshed) {
		s.rec.AccessToken = refreshed.AccessToken
		s.rec.AccessTokenExpiresAt = refreshed.AccessTokenExpiresAt
		s.rec.Error = refreshed.Error
		s.dirty = true
		if refreshed.Error == domain.SessionErrorNone {
			kind = events.EventSessionRefreshed
		}
	}
	if s.rec.Error == domain.SessionErrorNone {
		s.announced = domain.SessionErrorNone
	} else if s.rec.Error != s.announced {
		s.announced = s.rec.Error
		kind = events.EventSessionErrored
	}
	rec := *s.rec
	s.mu.Unlock()

	view := domain.Project(rec)
	if kind != "" {
		s.emit(ctx, Change{Kind: kind, SessionID: rec.SessionID, View: &view}, rec.Identity.ID)
	}
	return &view
}

// Update merges an identity patch into the record without refreshing.
// Applying the same patch twice emits a single change.
func (s *Store) Update(ctx context.Context, patch domain.IdentityPatch) (*domain.SessionView, error) {
	s.mu.Lock()
	if s.rec == nil {
		s.mu.Unlock()
		return nil, ErrNoSession
	}
	before := s.rec.Identity
	*s.rec = s.rec.WithIdentityPatch(patch)
	changed := s.rec.Identity != before
	if changed {
		s.dirty = true
	}
	rec := *s.rec
	s.mu.Unlock()

	view := domain.Project(rec)
	if changed {
		s.emit(ctx, Change{Kind: events.EventSessionUpdated, SessionID: rec.SessionID, View: &view}, rec.Identity.ID)
	}
	return &view, nil
}

// SignOut discards the record. It reports false when there was no session.
func (s *Store) SignOut(ctx context.Context, reason domain.SignOutReason) bool {
	s.mu.Lock()
	if s.rec == nil {
		s.mu.Unlock()
		return false
	}
	rec := *s.rec
	s.rec = nil
	s.dirty = true
	s.announced = domain.SessionErrorNone
	s.mu.Unlock()

	s.metrics.RecordSignOut(string(reason))
	s.logger.Info("session.signed_out",
		zap.String("session_id", rec.SessionID),
		zap.String("user_id", rec.Identity.ID),
		zap.String("reason", string(reason)),
	)
	s.emit(ctx, Change{Kind: events.EventSessionEnded, SessionID: rec.SessionID, Reason: reason}, rec.Identity.ID)
	return true
}

// Subscribe registers a listener and returns its unsubscribe func.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) emit(ctx context.Context, ch Change, userID string) {
	s.mu.Lock()
	subs := append([]subscription(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(ctx, ch)
	}

	if s.dispatcher == nil {
		return
	}
	evt := events.NewEvent(ch.Kind, ch.SessionID, userID)
	evt.Reason = ch.Reason
	if ch.View != nil {
		evt.Error = ch.View.Error
	}
	if err := s.dispatcher.Publish(ctx, evt); err != nil {
		s.logger.Warn("session.event_publish_failed", zap.String("type", string(ch.Kind)), zap.Error(err))
	}
}

func tokenChanged(a, b domain.TokenRecord) bool {
	return a.AccessToken != b.AccessToken ||
		!a.AccessTokenExpiresAt.Equal(b.AccessTokenExpiresAt) ||
		a.Error != b.Error
}
