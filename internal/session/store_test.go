package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/events"
)

type refreshFunc func(context.Context, domain.TokenRecord) domain.TokenRecord

func (f refreshFunc) Refresh(ctx context.Context, rec domain.TokenRecord) domain.TokenRecord {
	return f(ctx, rec)
}

var passthrough = refreshFunc(func(_ context.Context, rec domain.TokenRecord) domain.TokenRecord { return rec })

func newRecord(sid string) domain.TokenRecord {
	now := time.Now()
	return domain.TokenRecord{
		SessionID:            sid,
		AccessToken:          "a1",
		RefreshToken:         "r1",
		AccessTokenExpiresAt: now.Add(15 * time.Minute),
		IssuedAt:             now,
		Identity:             domain.Identity{ID: "7", FirstName: "Ada", Email: "ada@example.com", Role: domain.RoleUser},
	}
}

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) listen(_ context.Context, ch Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, ch)
}

func (r *recorder) kinds() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.changes))
	for _, ch := range r.changes {
		out = append(out, ch.Kind)
	}
	return out
}

func TestStore_EmptyView(t *testing.T) {
	store := NewStore(passthrough)
	assert.Nil(t, store.View(context.Background()))
	_, ok := store.Record()
	assert.False(t, ok)
	assert.False(t, store.SignOut(context.Background(), domain.SignOutUser))
}

func TestStore_BeginViewSignOut(t *testing.T) {
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher()
	var published []events.Event
	dispatcher.Subscribe(func(_ context.Context, evt events.Event) error {
		published = append(published, evt)
		return nil
	})

	store := NewStore(passthrough, WithDispatcher(dispatcher))
	rec := &recorder{}
	store.Subscribe(rec.listen)

	store.Begin(ctx, newRecord("s1"))
	view := store.View(ctx)
	require.NotNil(t, view)
	assert.Equal(t, "a1", view.AccessToken)
	assert.Equal(t, "Ada", view.User.FirstName)
	assert.True(t, view.Authenticated())

	assert.True(t, store.SignOut(ctx, domain.SignOutUser))
	assert.Nil(t, store.View(ctx))
	assert.True(t, store.Dirty())

	assert.Equal(t, []events.EventType{events.EventSessionStarted, events.EventSessionEnded}, rec.kinds())
	require.Len(t, published, 2)
	assert.Equal(t, "7", published[1].UserID)
	assert.Equal(t, domain.SignOutUser, published[1].Reason)
}

func TestStore_RestoreIsClean(t *testing.T) {
	store := NewStore(passthrough)
	rec := &recorder{}
	store.Subscribe(rec.listen)

	store.Restore(newRecord("s1"))
	require.NotNil(t, store.View(context.Background()))
	assert.False(t, store.Dirty())
	assert.Empty(t, rec.kinds())
}

func TestStore_ViewAppliesRefresh(t *testing.T) {
	ctx := context.Background()
	newExpiry := time.Now().Add(15 * time.Minute).Add(time.Second)
	store := NewStore(refreshFunc(func(_ context.Context, r domain.TokenRecord) domain.TokenRecord {
		r.AccessToken = "a2"
		r.AccessTokenExpiresAt = newExpiry
		return r
	}))
	rec := &recorder{}
	store.Subscribe(rec.listen)

	store.Restore(newRecord("s1"))
	view := store.View(ctx)
	require.NotNil(t, view)
	assert.Equal(t, "a2", view.AccessToken)
	assert.True(t, store.Dirty())

	stored, ok := store.Record()
	require.True(t, ok)
	assert.Equal(t, "r1", stored.RefreshToken)
	assert.True(t, newExpiry.Equal(stored.AccessTokenExpiresAt))
	assert.Equal(t, []events.EventType{events.EventSessionRefreshed}, rec.kinds())
}

func TestStore_ErrorAnnouncedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore(refreshFunc(func(_ context.Context, r domain.TokenRecord) domain.TokenRecord {
		r.Error = domain.SessionErrorRefreshAccessToken
		return r
	}))
	rec := &recorder{}
	store.Subscribe(rec.listen)

	store.Restore(newRecord("s1"))
	first := store.View(ctx)
	second := store.View(ctx)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, domain.SessionErrorRefreshAccessToken, second.Error)
	assert.Equal(t, []events.EventType{events.EventSessionErrored}, rec.kinds())
}

func TestStore_DiscardsRefreshForSupersededSession(t *testing.T) {
	ctx := context.Background()
	var store *Store
	store = NewStore(refreshFunc(func(_ context.Context, r domain.TokenRecord) domain.TokenRecord {
		if r.SessionID == "s1" {
			store.Begin(ctx, newRecord("s2"))
			r.AccessToken = "stale"
		}
		return r
	}))

	store.Restore(newRecord("s1"))
	view := store.View(ctx)
	require.NotNil(t, view)
	assert.Equal(t, "a1", view.AccessToken)

	stored, _ := store.Record()
	assert.Equal(t, "s2", stored.SessionID)
	assert.Equal(t, "a1", stored.AccessToken)
}

func TestStore_SignOutDuringRefreshWins(t *testing.T) {
	ctx := context.Background()
	var store *Store
	store = NewStore(refreshFunc(func(_ context.Context, r domain.TokenRecord) domain.TokenRecord {
		store.SignOut(ctx, domain.SignOutInactivity)
		r.AccessToken = "a2"
		return r
	}))

	store.Restore(newRecord("s1"))
	assert.Nil(t, store.View(ctx))
	_, ok := store.Record()
	assert.False(t, ok)
}

func TestStore_UpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(refreshFunc(func(context.Context, domain.TokenRecord) domain.TokenRecord {
		t.Fatal("update must not refresh")
		return domain.TokenRecord{}
	}))
	rec := &recorder{}
	store.Subscribe(rec.listen)
	store.Restore(newRecord("s1"))

	name := "Augusta"
	patch := domain.IdentityPatch{FirstName: &name}
	first, err := store.Update(ctx, patch)
	require.NoError(t, err)
	second, err := store.Update(ctx, patch)
	require.NoError(t, err)

	assert.Equal(t, "Augusta", first.User.FirstName)
	assert.Equal(t, *first, *second)
	assert.Equal(t, []events.EventType{events.EventSessionUpdated}, rec.kinds())
	assert.True(t, store.Dirty())
}

func TestStore_UpdateWithoutSession(t *testing.T) {
	store := NewStore(passthrough)
	_, err := store.Update(context.Background(), domain.IdentityPatch{})
	require.ErrorIs(t, err, ErrNoSession)
}

func TestStore_ListenerOrderAndUnsubscribe(t *testing.T) {
	ctx := context.Background()
	store := NewStore(passthrough)

	var order []string
	unsubA := store.Subscribe(func(context.Context, Change) { order = append(order, "a") })
	store.Subscribe(func(context.Context, Change) { order = append(order, "b") })

	store.Begin(ctx, newRecord("s1"))
	unsubA()
	unsubA()
	store.SignOut(ctx, domain.SignOutUser)

	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestStore_DispatcherErrorDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(func(context.Context, events.Event) error {
		return assert.AnError
	}, events.EventSessionStarted)

	store := NewStore(passthrough, WithDispatcher(dispatcher))
	store.Begin(ctx, newRecord("s1"))
	_, ok := store.Record()
	assert.True(t, ok)
}
