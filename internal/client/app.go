// Package client is the terminal front end of the session core. It keeps one
// session in memory, guards page navigation locally, and signs the user out
// after a period without input.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/gift-exchange/internal/auth"
	"github.com/spec-kit/gift-exchange/internal/config"
	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/events"
	"github.com/spec-kit/gift-exchange/internal/inactivity"
	"github.com/spec-kit/gift-exchange/internal/session"
)

// Authenticator starts sessions from credentials.
type Authenticator interface {
	LoginWithPassword(ctx context.Context, email, password string) (domain.TokenRecord, error)
	LoginWithGoogle(ctx context.Context, idToken string) (domain.TokenRecord, error)
}

// Config wires an App.
type Config struct {
	Auth       Authenticator
	Store      *session.Store
	Routes     auth.RouteTable
	Inactivity config.InactivityConfig
	Clock      inactivity.Clock
	Out        io.Writer
	Logger     *zap.Logger

	// ReadPassword reads a secret without echo.
	ReadPassword func() ([]byte, error)
}

// App holds the client session and its inactivity monitor.
type App struct {
	auth         Authenticator
	store        *session.Store
	routes       auth.RouteTable
	monitor      *inactivity.Monitor
	readPassword func() ([]byte, error)
	logger       *zap.Logger

	outMu sync.Mutex
	out   io.Writer

	locMu    sync.Mutex
	location string

	detach []func()
}

// NewApp wires the store, its error handler, and the inactivity monitor together.
func NewApp(cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	a := &App{
		auth:         cfg.Auth,
		store:        cfg.Store,
		routes:       cfg.Routes,
		readPassword: cfg.ReadPassword,
		logger:       cfg.Logger,
		out:          cfg.Out,
		location:     cfg.Routes.LoginPath,
	}

	a.monitor = inactivity.New(inactivity.Config{
		Total:    cfg.Inactivity.Total(),
		Warning:  cfg.Inactivity.Warning(),
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
		OnExpire: a.expire,
		OnChange: a.countdown,
	})

	a.detach = append(a.detach,
		session.NewErrorHandler(a.store, a.routes.LoginPath, func(_ context.Context, location string) {
			a.navigate(location)
			a.printf("Your session has expired. Please sign in again.\n")
		}, a.logger).Attach(),
		a.store.Subscribe(a.sessionChanged),
	)
	return a
}

// Close stops the monitor and detaches from the store.
func (a *App) Close() {
	a.monitor.Stop()
	for _, d := range a.detach {
		d()
	}
	a.detach = nil
}

// Location is the page the client is on.
func (a *App) Location() string {
	a.locMu.Lock()
	defer a.locMu.Unlock()
	return a.location
}

// Monitor exposes the inactivity state machine.
func (a *App) Monitor() *inactivity.Monitor {
	return a.monitor
}

// Login exchanges email and password for a session.
func (a *App) Login(ctx context.Context, email string) error {
	if email == "" {
		return errors.New("usage: login <email>")
	}
	if a.readPassword == nil {
		return errors.New("password input unavailable")
	}
	a.printf("Enter password: ")
	pw, err := a.readPassword()
	a.printf("\n")
	if err != nil {
		return err
	}

	rec, err := a.auth.LoginWithPassword(ctx, email, string(pw))
	if err != nil {
		return err
	}
	a.store.Begin(ctx, rec)
	a.navigate(a.routes.LandingPath)
	a.printf("Signed in as %s.\n", rec.Identity.Email)
	return nil
}

// Google exchanges an identity-provider id_token for a session. A rejected
// exchange leaves any existing session untouched.
func (a *App) Google(ctx context.Context, idToken string) error {
	if idToken == "" {
		return errors.New("usage: google <id_token>")
	}
	rec, err := a.auth.LoginWithGoogle(ctx, idToken)
	if err != nil {
		a.navigate(a.routes.LoginPath + "?error=" + string(domain.SessionErrorGoogleSignIn))
		return err
	}
	a.store.Begin(ctx, rec)
	a.navigate(a.routes.LandingPath)
	a.printf("Signed in as %s.\n", rec.Identity.Email)
	return nil
}

// WhoAmI prints the current session view, refreshing it when due.
func (a *App) WhoAmI(ctx context.Context) error {
	view := a.view(ctx)
	if view == nil {
		a.printf("Not signed in.\n")
		return nil
	}
	u := view.User
	a.printf("%s %s <%s> role=%s verified=%t\n", u.FirstName, u.LastName, u.Email, u.Role, view.IsVerified)
	return nil
}

// Update applies key=value identity changes to the session.
func (a *App) Update(ctx context.Context, args []string) error {
	patch, err := parsePatch(args)
	if err != nil {
		return err
	}
	view, err := a.store.Update(ctx, patch)
	if err != nil {
		return err
	}
	a.printf("Updated %s %s <%s>.\n", view.User.FirstName, view.User.LastName, view.User.Email)
	return nil
}

// Open navigates to target after asking the route guard.
func (a *App) Open(ctx context.Context, target string) error {
	if !strings.HasPrefix(target, "/") {
		return errors.New("usage: open </path[?query]>")
	}
	path, rawQuery, _ := strings.Cut(target, "?")

	view := a.view(ctx)
	decision := a.routes.Evaluate(path, rawQuery, view)
	if decision.Outcome == auth.Allow {
		a.navigate(target)
		a.printf("Opened %s.\n", target)
		return nil
	}
	a.navigate(decision.Location)
	a.printf("Redirected to %s (%s).\n", decision.Location, decision.Outcome)
	return nil
}

// StayLoggedIn dismisses the inactivity warning.
func (a *App) StayLoggedIn() error {
	if !a.monitor.StayLoggedIn() {
		return errors.New("no inactivity warning is showing")
	}
	a.printf("You are still signed in.\n")
	return nil
}

// Logout ends the session.
func (a *App) Logout(ctx context.Context) error {
	if !a.store.SignOut(ctx, domain.SignOutUser) {
		return errors.New("not signed in")
	}
	a.navigate(domain.SignOutUser.LoginPath(a.routes.LoginPath))
	a.printf("Signed out.\n")
	return nil
}

// view returns nil once the session has been force-signed-out.
func (a *App) view(ctx context.Context) *domain.SessionView {
	view := a.store.View(ctx)
	if _, ok := a.store.Record(); !ok {
		return nil
	}
	return view
}

// sessionChanged drives the monitor from session lifecycle changes. An errored
// change needs no handling here: the error handler, subscribed first, signs the
// session out and the resulting ended change stops the monitor.
func (a *App) sessionChanged(_ context.Context, ch session.Change) {
	switch ch.Kind {
	case events.EventSessionStarted:
		a.monitor.Restart()
	case events.EventSessionEnded:
		a.monitor.Stop()
	}
}

func (a *App) expire() {
	if a.store.SignOut(context.Background(), domain.SignOutInactivity) {
		a.navigate(domain.SignOutInactivity.LoginPath(a.routes.LoginPath))
		a.printf("Signed out after a period of inactivity.\n")
	}
}

func (a *App) countdown(st inactivity.State) {
	if st.Phase != inactivity.Warning {
		return
	}
	a.printf("You will be signed out in %d seconds. Type 'stay' to remain signed in.\n", st.Remaining)
}

func (a *App) navigate(location string) {
	a.locMu.Lock()
	a.location = location
	a.locMu.Unlock()
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func parsePatch(args []string) (domain.IdentityPatch, error) {
	var patch domain.IdentityPatch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return patch, fmt.Errorf("expected key=value, got %q", arg)
		}
		v := value
		switch key {
		case "first":
			patch.FirstName = &v
		case "last":
			patch.LastName = &v
		case "email":
			patch.Email = &v
		default:
			return patch, fmt.Errorf("unknown field %q", key)
		}
	}
	if patch.Empty() {
		return patch, errors.New("usage: update first=<name> last=<name> email=<address>")
	}
	return patch, nil
}
