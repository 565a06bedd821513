package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/spec-kit/gift-exchange/internal/api/dto"
	"github.com/spec-kit/gift-exchange/internal/auth"
	"github.com/spec-kit/gift-exchange/internal/config"
	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/service"
	"github.com/spec-kit/gift-exchange/internal/session"
	apperrors "github.com/spec-kit/gift-exchange/pkg/util/errorutil"
)

const (
	oauthStateCookie = "gift_oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// Authenticator starts sessions from credentials.
type Authenticator interface {
	LoginWithPassword(ctx context.Context, email, password string) (domain.TokenRecord, error)
	LoginWithGoogle(ctx context.Context, idToken string) (domain.TokenRecord, error)
}

// AuthHandler exposes the session endpoints.
type AuthHandler struct {
	auth          Authenticator
	oauth         *oauth2.Config
	routes        auth.RouteTable
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler constructs handler. Google redirect sign-in is enabled when google is configured.
func NewAuthHandler(authenticator Authenticator, google config.GoogleConfig, routes auth.RouteTable, secureCookies bool, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &AuthHandler{auth: authenticator, routes: routes, secureCookies: secureCookies, logger: logger}
	if google.Enabled() {
		h.oauth = &oauth2.Config{
			ClientID:     google.ClientID,
			ClientSecret: google.ClientSecret,
			RedirectURL:  google.RedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		}
	}
	return h
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	store, err := requestStore(c)
	if err != nil {
		return err
	}

	rec, err := h.auth.LoginWithPassword(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrAuthentication) {
			return apperrors.NewAuthenticationFailed(err)
		}
		return apperrors.NewInternalError(err)
	}

	store.Begin(c.UserContext(), rec)
	return c.JSON(fiber.Map{
		"data": fiber.Map{"user": dto.NewUserResponse(rec.Identity)},
	})
}

// Google handles POST /auth/google. A rejected exchange leaves any existing session in place.
func (h *AuthHandler) Google(c *fiber.Ctx) error {
	var req dto.GoogleSignInRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.IDToken) == "" {
		return apperrors.NewValidationError("id_token required", nil)
	}

	store, err := requestStore(c)
	if err != nil {
		return err
	}

	rec, err := h.auth.LoginWithGoogle(c.UserContext(), req.IDToken)
	if err != nil {
		return apperrors.NewGoogleSignInFailed(err)
	}

	store.Begin(c.UserContext(), rec)
	return c.JSON(fiber.Map{
		"data": fiber.Map{"user": dto.NewUserResponse(rec.Identity)},
	})
}

// GoogleLogin handles GET /auth/google/login by redirecting to the consent screen.
func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	if h.oauth == nil {
		return fiber.NewError(http.StatusNotFound, "google sign-in is not configured")
	}

	state := uuid.NewString()
	h.setStateCookie(c, state, oauthStateTTL)
	return c.Redirect(h.oauth.AuthCodeURL(state), fiber.StatusSeeOther)
}

// GoogleCallback handles GET /auth/google/callback.
func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	if h.oauth == nil {
		return fiber.NewError(http.StatusNotFound, "google sign-in is not configured")
	}

	state := c.Cookies(oauthStateCookie)
	h.setStateCookie(c, "", -1)
	if state == "" || c.Query("state") != state {
		return apperrors.NewValidationError("invalid oauth state", nil)
	}

	failed := h.routes.LoginPath + "?error=" + string(domain.SessionErrorGoogleSignIn)
	code := c.Query("code")
	if code == "" {
		return c.Redirect(failed, fiber.StatusSeeOther)
	}

	store, err := requestStore(c)
	if err != nil {
		return err
	}

	tok, err := h.oauth.Exchange(c.UserContext(), code)
	if err != nil {
		h.logger.Warn("auth.google_code_exchange_failed", zap.Error(err))
		return c.Redirect(failed, fiber.StatusSeeOther)
	}
	idToken, _ := tok.Extra("id_token").(string)

	rec, err := h.auth.LoginWithGoogle(c.UserContext(), idToken)
	if err != nil {
		return c.Redirect(failed, fiber.StatusSeeOther)
	}

	store.Begin(c.UserContext(), rec)
	return c.Redirect(h.routes.LandingPath, fiber.StatusSeeOther)
}

// Session handles GET /auth/session.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	if location, expired := auth.ExpiredRedirect(c); expired {
		return apperrors.NewSessionExpired(location)
	}
	return c.JSON(fiber.Map{"data": dto.NewSessionResponse(auth.SessionFromContext(c))})
}

// UpdateSession handles PATCH /auth/session.
func (h *AuthHandler) UpdateSession(c *fiber.Ctx) error {
	var req dto.SessionUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	patch := req.Patch()
	if patch.Empty() {
		return apperrors.NewValidationError("no fields to update", nil)
	}

	store, err := requestStore(c)
	if err != nil {
		return err
	}
	view, err := store.Update(c.UserContext(), patch)
	if errors.Is(err, session.ErrNoSession) {
		return apperrors.NewUnauthorized("no active session")
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewSessionResponse(view)})
}

// SignOut handles POST /auth/signout.
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	store, err := requestStore(c)
	if err != nil {
		return err
	}
	store.SignOut(c.UserContext(), domain.SignOutUser)
	return c.JSON(fiber.Map{
		"data": fiber.Map{"redirect": domain.SignOutUser.LoginPath(h.routes.LoginPath)},
	})
}

func (h *AuthHandler) setStateCookie(c *fiber.Ctx, value string, ttl time.Duration) {
	cookie := &fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/auth/google",
		MaxAge:   int(ttl / time.Second),
		Secure:   h.secureCookies,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if ttl < 0 {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	}
	c.Cookie(cookie)
}

func requestStore(c *fiber.Ctx) (*session.Store, error) {
	store, ok := auth.StoreFromContext(c)
	if !ok {
		return nil, apperrors.NewInternalError(errors.New("session middleware not installed"))
	}
	return store, nil
}
