package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/observability"
	"github.com/spec-kit/gift-exchange/internal/session"
)

const (
	storeKey   = "session_store"
	viewKey    = "session_view"
	expiredKey = "session_expired"
)

// SessionCookie reads and writes the sealed session token.
type SessionCookie struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Read returns the raw cookie value.
func (sc SessionCookie) Read(c *fiber.Ctx) string {
	return c.Cookies(sc.Name)
}

// Write stores a sealed token.
func (sc SessionCookie) Write(c *fiber.Ctx, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     sc.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sc.MaxAge / time.Second),
		Expires:  time.Now().Add(sc.MaxAge),
		Secure:   sc.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Clear expires the cookie.
func (sc SessionCookie) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sc.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   sc.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Middleware loads the request's session from its cookie and enforces the Route Table.
type Middleware struct {
	sealer   *TokenSealer
	cookie   SessionCookie
	routes   RouteTable
	newStore func() *session.Store
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewMiddleware constructs middleware. newStore builds one empty store per request.
func NewMiddleware(sealer *TokenSealer, cookie SessionCookie, routes RouteTable, newStore func() *session.Store, logger *zap.Logger, metrics *observability.Metrics) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		sealer:   sealer,
		cookie:   cookie,
		routes:   routes,
		newStore: newStore,
		logger:   logger,
		metrics:  metrics,
	}
}

// Routes returns the route table the guard evaluates.
func (m *Middleware) Routes() RouteTable {
	return m.routes
}

// Session restores the session, refreshing it when expired, and writes the
// cookie back after the handler when the record changed.
func (m *Middleware) Session() fiber.Handler {
	return func(c *fiber.Ctx) error {
		store := m.newStore()
		if raw := m.cookie.Read(c); raw != "" {
			rec, err := m.sealer.Open(raw)
			if err != nil {
				m.logger.Debug("session.cookie_rejected", zap.Error(err))
				m.cookie.Clear(c)
			} else {
				store.Restore(rec)
			}
		}

		detach := session.NewErrorHandler(store, m.routes.LoginPath, func(_ context.Context, location string) {
			c.Locals(expiredKey, location)
		}, m.logger).Attach()
		defer detach()

		view := store.View(c.UserContext())
		if _, ok := store.Record(); !ok {
			view = nil
		}
		c.Locals(storeKey, store)
		c.Locals(viewKey, view)

		err := c.Next()
		m.persist(c, store)
		return err
	}
}

// Guard evaluates the Route Table for the request path. It must run after Session.
// A session force-signed-out during this request always lands on the login page
// marked as expired, on public paths as well as protected ones.
func (m *Middleware) Guard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		view := SessionFromContext(c)
		decision := m.routes.Evaluate(c.Path(), string(c.Request().URI().QueryString()), view)
		if expired, ok := ExpiredRedirect(c); ok {
			if decision.Outcome == RedirectLogin {
				expired = decision.Location + "&error=" + string(domain.SignOutSessionExpired)
			}
			decision = Decision{Outcome: RedirectLogin, Location: expired}
		}
		m.metrics.RecordGuardDecision(decision.Outcome.String())

		if decision.Outcome == Allow {
			return c.Next()
		}
		m.logger.Debug("route_guard.redirect",
			zap.String("path", c.Path()),
			zap.String("outcome", decision.Outcome.String()),
			zap.String("location", decision.Location),
		)
		return c.Redirect(decision.Location, fiber.StatusTemporaryRedirect)
	}
}

func (m *Middleware) persist(c *fiber.Ctx, store *session.Store) {
	if !store.Dirty() {
		return
	}
	rec, ok := store.Record()
	if !ok {
		m.cookie.Clear(c)
		return
	}
	sealed, err := m.sealer.Seal(rec)
	if err != nil {
		m.logger.Error("session.seal_failed", zap.String("session_id", rec.SessionID), zap.Error(err))
		return
	}
	m.cookie.Write(c, sealed)
}

// SessionFromContext returns the view loaded by Session, or nil.
func SessionFromContext(c *fiber.Ctx) *domain.SessionView {
	view, _ := c.Locals(viewKey).(*domain.SessionView)
	return view
}

// StoreFromContext returns the request's session store.
func StoreFromContext(c *fiber.Ctx) (*session.Store, bool) {
	store, ok := c.Locals(storeKey).(*session.Store)
	return store, ok && store != nil
}

// ExpiredRedirect returns the login location set by a forced sign-out during this request.
func ExpiredRedirect(c *fiber.Ctx) (string, bool) {
	location, ok := c.Locals(expiredKey).(string)
	return location, ok
}
