package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/identityapi"
	"github.com/spec-kit/gift-exchange/internal/observability"
)

var (
	// ErrAuthentication reports rejected credentials at login.
	ErrAuthentication = errors.New("authentication failed")
	// ErrFederatedAuth reports a rejected identity-provider exchange.
	ErrFederatedAuth = errors.New("federated sign-in failed")
)

// IdentityAPI is the subset of the identity API used to start sessions.
type IdentityAPI interface {
	ObtainTokenPair(ctx context.Context, username, password string) (identityapi.TokenPair, error)
	FetchCurrentUser(ctx context.Context, accessToken string) (identityapi.User, error)
	ExchangeGoogleIDToken(ctx context.Context, idToken string) (identityapi.GoogleExchange, error)
}

// AuthService exchanges credentials for new Token Records.
type AuthService struct {
	api      IdentityAPI
	validity time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewAuthService builds the service. validity is the assumed access token lifetime.
func NewAuthService(api IdentityAPI, validity time.Duration, logger *zap.Logger, metrics *observability.Metrics) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		api:      api,
		validity: validity,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// LoginWithPassword obtains a token pair and the caller's identity.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password string) (domain.TokenRecord, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.metrics.RecordLogin("password", "failure")
		return domain.TokenRecord{}, fmt.Errorf("%w: email and password are required", ErrAuthentication)
	}

	pair, err := s.api.ObtainTokenPair(ctx, email, password)
	if err != nil {
		return domain.TokenRecord{}, s.loginFailed(email, err)
	}
	user, err := s.api.FetchCurrentUser(ctx, pair.Access)
	if err != nil {
		return domain.TokenRecord{}, s.loginFailed(email, err)
	}

	identity := domain.Identity{
		ID:         string(user.ID),
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Email:      user.Email,
		Role:       roleOrDefault(user.Role),
		IsVerified: user.IsVerified,
	}
	if identity.Email == "" {
		identity.Email = email
	}

	rec := s.newRecord(pair.Access, pair.Refresh, identity)
	s.metrics.RecordLogin("password", "success")
	s.logger.Info("auth.login", zap.String("mode", "password"), zap.String("session_id", rec.SessionID), zap.String("user_id", identity.ID))
	return rec, nil
}

// LoginWithGoogle exchanges a Google id_token. On rejection it returns a record
// tagged GoogleSignInError, holding no tokens, alongside the error.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (domain.TokenRecord, error) {
	failed := domain.TokenRecord{Error: domain.SessionErrorGoogleSignIn}
	if strings.TrimSpace(idToken) == "" {
		s.metrics.RecordLogin("google", "failure")
		return failed, fmt.Errorf("%w: id_token is required", ErrFederatedAuth)
	}

	out, err := s.api.ExchangeGoogleIDToken(ctx, idToken)
	if err != nil {
		s.metrics.RecordLogin("google", "failure")
		s.logger.Warn("auth.login_failed", zap.String("mode", "google"), zap.Error(err))
		return failed, fmt.Errorf("%w: %v", ErrFederatedAuth, err)
	}

	first, last := splitName(out.User.Name)
	rec := s.newRecord(out.Access, out.Refresh, domain.Identity{
		ID:         string(out.User.ID),
		FirstName:  first,
		LastName:   last,
		Email:      out.User.Email,
		Role:       roleOrDefault(out.User.Role),
		IsVerified: out.User.IsVerified,
	})
	s.metrics.RecordLogin("google", "success")
	s.logger.Info("auth.login", zap.String("mode", "google"), zap.String("session_id", rec.SessionID), zap.String("user_id", rec.Identity.ID))
	return rec, nil
}

func (s *AuthService) newRecord(access, refresh string, identity domain.Identity) domain.TokenRecord {
	now := s.now().UTC()
	return domain.TokenRecord{
		SessionID:            uuid.NewString(),
		AccessToken:          access,
		RefreshToken:         refresh,
		AccessTokenExpiresAt: now.Add(s.validity),
		IssuedAt:             now,
		Identity:             identity,
	}
}

func (s *AuthService) loginFailed(email string, err error) error {
	s.metrics.RecordLogin("password", "failure")
	s.logger.Warn("auth.login_failed", zap.String("mode", "password"), zap.String("email", email), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrAuthentication, err)
}

func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

func roleOrDefault(role string) domain.Role {
	if role == "" {
		return domain.RoleUser
	}
	return domain.Role(strings.ToUpper(role))
}
