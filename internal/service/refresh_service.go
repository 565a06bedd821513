package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/gift-exchange/internal/config"
	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/identityapi"
	"github.com/spec-kit/gift-exchange/internal/observability"
)

// Refresh outcomes, used as metric labels.
const (
	RefreshSucceeded = "success"
	RefreshCached    = "cached"
	RefreshExpired   = "expired"
	RefreshFailed    = "error"
)

// TokenRefresher calls the refresh endpoint.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (identityapi.RefreshedToken, error)
}

// OutcomeCache shares successful refreshes between instances.
type OutcomeCache interface {
	Get(ctx context.Context, key string) (domain.RefreshOutcome, bool, error)
	Set(ctx context.Context, key string, outcome domain.RefreshOutcome, ttl time.Duration) error
}

type refreshResult struct {
	access    string
	expiresAt time.Time
	err       domain.SessionError
}

// RefreshService renews expired access tokens. Concurrent refreshes of the
// same record share one call to the identity API.
type RefreshService struct {
	api         TokenRefresher
	cache       OutcomeCache
	cacheTTL    time.Duration
	validity    time.Duration
	maxAttempts uint
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	newBackOff  func() backoff.BackOff
	group       singleflight.Group
}

// NewRefreshService builds the service. cache may be nil.
func NewRefreshService(api TokenRefresher, cfg config.SessionConfig, cache OutcomeCache, logger *zap.Logger, metrics *observability.Metrics) *RefreshService {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.RefreshMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &RefreshService{
		api:         api,
		cache:       cache,
		cacheTTL:    cfg.RefreshCacheTTL(),
		validity:    cfg.AccessTokenValidity(),
		maxAttempts: uint(attempts),
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

// Refresh returns rec unchanged while its access token is valid or once its
// refresh token has been rejected. Otherwise it calls the refresh endpoint and
// returns the record with a new access token or with an error tag. It never
// fails; the record's Error is the error channel.
func (s *RefreshService) Refresh(ctx context.Context, rec domain.TokenRecord) domain.TokenRecord {
	if rec.Error == domain.SessionErrorRefreshExpired {
		return rec
	}
	if rec.AccessTokenValid(s.now()) {
		return rec
	}

	key := refreshKey(rec)
	v, _, _ := s.group.Do(key, func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx), rec, key), nil
	})
	res := v.(refreshResult)

	rec.Error = res.err
	if res.err == domain.SessionErrorNone {
		rec.AccessToken = res.access
		rec.AccessTokenExpiresAt = res.expiresAt
	}
	return rec
}

func (s *RefreshService) refresh(ctx context.Context, rec domain.TokenRecord, key string) refreshResult {
	log := s.logger.With(zap.String("session_id", rec.SessionID))

	if s.cache != nil {
		out, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("session.refresh_cache_read_failed", zap.Error(err))
		case ok:
			s.metrics.RecordRefresh(RefreshCached)
			log.Debug("session.refresh_cached")
			return refreshResult{access: out.AccessToken, expiresAt: out.ExpiresAt}
		}
	}

	tok, err := backoff.Retry(ctx, func() (identityapi.RefreshedToken, error) {
		tok, err := s.api.RefreshAccessToken(ctx, rec.RefreshToken)
		if err != nil && !errors.Is(err, identityapi.ErrTransient) {
			return tok, backoff.Permanent(err)
		}
		return tok, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxAttempts),
	)

	switch {
	case err == nil:
	case errors.Is(err, identityapi.ErrMalformedResponse):
		s.metrics.RecordRefresh(RefreshFailed)
		log.Warn("session.refresh_failed", zap.String("cause", "malformed_response"), zap.Error(err))
		return refreshResult{err: domain.SessionErrorRefreshAccessToken}
	case errors.Is(err, identityapi.ErrRefreshTokenInvalid):
		s.metrics.RecordRefresh(RefreshExpired)
		log.Info("session.refresh_rejected", zap.Error(err))
		return refreshResult{err: domain.SessionErrorRefreshExpired}
	default:
		s.metrics.RecordRefresh(RefreshFailed)
		log.Warn("session.refresh_failed", zap.Error(err))
		return refreshResult{err: domain.SessionErrorRefreshAccessToken}
	}

	res := refreshResult{access: tok.Access, expiresAt: s.now().UTC().Add(s.validity)}
	s.metrics.RecordRefresh(RefreshSucceeded)
	log.Info("session.refreshed", zap.Time("expires_at", res.expiresAt))

	if s.cache != nil {
		outcome := domain.RefreshOutcome{AccessToken: res.access, ExpiresAt: res.expiresAt}
		if err := s.cache.Set(ctx, key, outcome, s.cacheTTL); err != nil {
			log.Warn("session.refresh_cache_write_failed", zap.Error(err))
		}
	}
	return res
}

// refreshKey identifies one expired access token of one session.
func refreshKey(rec domain.TokenRecord) string {
	return rec.SessionID + ":" + strconv.FormatInt(rec.AccessTokenExpiresAt.Unix(), 10)
}
