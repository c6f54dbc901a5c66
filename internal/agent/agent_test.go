package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push-dispatch-backend/internal/model"
)

type mockPlatform struct {
	mu            sync.Mutex
	permission    Permission
	permissionErr error
	subscribeErr  error
	unsubErr      error
	sub           *Subscription
	prompts       int
	unsubscribed  []string
	scope         string
	// block, when set, is waited on inside RequestPermission.
	block chan struct{}
}

func (m *mockPlatform) RequestPermission(ctx context.Context) (Permission, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts++
	return m.permission, m.permissionErr
}

func (m *mockPlatform) Permission(ctx context.Context) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission, m.permissionErr
}

func (m *mockPlatform) Subscribe(ctx context.Context, scope string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scope = scope
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	return m.sub, nil
}

func (m *mockPlatform) Unsubscribe(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, token)
	return m.unsubErr
}

type mockRegistry struct {
	mu            sync.Mutex
	registerErr   error
	unregisterErr error
	registered    []string
	unregistered  []string
}

func (m *mockRegistry) Register(ctx context.Context, token string, keys *model.AuxiliaryKeys) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered = append(m.registered, token)
	return nil
}

func (m *mockRegistry) Unregister(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered = append(m.unregistered, token)
	return m.unregisterErr
}

func newSub(token string) *Subscription {
	return &Subscription{Token: token, Keys: &model.AuxiliaryKeys{P256DH: "p", Auth: "a"}}
}

func TestAgent_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("granted", func(t *testing.T) {
		platform := &mockPlatform{permission: PermissionGranted, sub: newSub("tok-1")}
		registry := &mockRegistry{}
		a := New(platform, registry, "/sw.js")

		require.NoError(t, a.Register(ctx))
		assert.Equal(t, StateRegistered, a.State())
		assert.Equal(t, "/sw.js", platform.scope)
		assert.Equal(t, []string{"tok-1"}, registry.registered)
		assert.Equal(t, "tok-1", a.Subscription().Token)
	})

	t.Run("second register only refreshes", func(t *testing.T) {
		platform := &mockPlatform{permission: PermissionGranted, sub: newSub("tok-1")}
		registry := &mockRegistry{}
		a := New(platform, registry, "/sw.js")

		require.NoError(t, a.Register(ctx))
		require.NoError(t, a.Register(ctx))
		assert.Equal(t, 1, platform.prompts)
		assert.Equal(t, []string{"tok-1", "tok-1"}, registry.registered)
	})

	t.Run("denied is terminal", func(t *testing.T) {
		platform := &mockPlatform{permission: PermissionDenied}
		registry := &mockRegistry{}
		a := New(platform, registry, "/sw.js")

		assert.ErrorIs(t, a.Register(ctx), ErrPermissionDenied)
		assert.Equal(t, StatePermissionDenied, a.State())

		platform.permission = PermissionGranted
		assert.ErrorIs(t, a.Register(ctx), ErrPermissionDenied)
		assert.Equal(t, 1, platform.prompts, "no second prompt after a denial")
		assert.Empty(t, registry.registered)
	})

	t.Run("dismissed prompt is retryable", func(t *testing.T) {
		a := New(&mockPlatform{permission: PermissionDefault}, &mockRegistry{}, "/sw.js")

		var transient *TransientRegistrationError
		assert.True(t, errors.As(a.Register(ctx), &transient))
		assert.Equal(t, StateUnregistered, a.State())
	})

	t.Run("subscribe failure is retryable", func(t *testing.T) {
		platform := &mockPlatform{permission: PermissionGranted, subscribeErr: errors.New("push service unavailable")}
		a := New(platform, &mockRegistry{}, "/sw.js")

		var transient *TransientRegistrationError
		require.True(t, errors.As(a.Register(ctx), &transient))
		assert.Equal(t, "subscribe", transient.Op)
		assert.Equal(t, StateUnregistered, a.State())
	})

	t.Run("registry failure is retryable", func(t *testing.T) {
		platform := &mockPlatform{permission: PermissionGranted, sub: newSub("tok-1")}
		registry := &mockRegistry{registerErr: errors.New("503")}
		a := New(platform, registry, "/sw.js")

		var transient *TransientRegistrationError
		require.True(t, errors.As(a.Register(ctx), &transient))
		assert.Equal(t, StateUnregistered, a.State())

		registry.registerErr = nil
		require.NoError(t, a.Register(ctx))
		assert.Equal(t, StateRegistered, a.State())
	})
}

func TestAgent_Register_WhilePending(t *testing.T) {
	platform := &mockPlatform{permission: PermissionGranted, sub: newSub("tok-1"), block: make(chan struct{})}
	a := New(platform, &mockRegistry{}, "/sw.js")

	done := make(chan error)
	go func() { done <- a.Register(context.Background()) }()

	require.Eventually(t, func() bool { return a.State() == StatePermissionRequested }, time.Second, time.Millisecond)
	assert.ErrorIs(t, a.Register(context.Background()), ErrRegistrationInProgress)
	assert.ErrorIs(t, a.Unregister(context.Background()), ErrRegistrationInProgress)

	close(platform.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateRegistered, a.State())
}

func TestAgent_Unregister(t *testing.T) {
	ctx := context.Background()

	registered := func(t *testing.T, platform *mockPlatform, registry *mockRegistry) *Agent {
		platform.permission = PermissionGranted
		platform.sub = newSub("tok-1")
		a := New(platform, registry, "/sw.js")
		require.NoError(t, a.Register(ctx))
		return a
	}

	t.Run("registry first, then platform", func(t *testing.T) {
		platform, registry := &mockPlatform{}, &mockRegistry{}
		a := registered(t, platform, registry)

		require.NoError(t, a.Unregister(ctx))
		assert.Equal(t, []string{"tok-1"}, registry.unregistered)
		assert.Equal(t, []string{"tok-1"}, platform.unsubscribed)
		assert.Equal(t, StateUnregistered, a.State())
		assert.Nil(t, a.Subscription())
	})

	t.Run("registry failure still unsubscribes locally", func(t *testing.T) {
		platform, registry := &mockPlatform{}, &mockRegistry{}
		a := registered(t, platform, registry)
		registry.unregisterErr = errors.New("registry unavailable")

		err := a.Unregister(ctx)
		var transient *TransientRegistrationError
		require.True(t, errors.As(err, &transient))
		assert.Equal(t, "unregister", transient.Op)
		assert.Equal(t, []string{"tok-1"}, platform.unsubscribed)
		assert.Equal(t, StateUnregistered, a.State())
	})

	t.Run("both failing keeps the registration", func(t *testing.T) {
		platform, registry := &mockPlatform{}, &mockRegistry{}
		a := registered(t, platform, registry)
		registry.unregisterErr = errors.New("registry unavailable")
		platform.unsubErr = errors.New("platform unavailable")

		assert.Error(t, a.Unregister(ctx))
		assert.Equal(t, StateRegistered, a.State())
	})

	t.Run("not registered is a no-op", func(t *testing.T) {
		platform, registry := &mockPlatform{}, &mockRegistry{}
		a := New(platform, registry, "/sw.js")

		require.NoError(t, a.Unregister(ctx))
		assert.Empty(t, registry.unregistered)
		assert.Empty(t, platform.unsubscribed)
	})
}

func TestAgent_HandleTokenRotation(t *testing.T) {
	ctx := context.Background()

	t.Run("re-registers with the new token", func(t *testing.T) {
		platform := &mockPlatform{permission: PermissionGranted, sub: newSub("old")}
		registry := &mockRegistry{}
		a := New(platform, registry, "/sw.js")
		require.NoError(t, a.Register(ctx))

		require.NoError(t, a.HandleTokenRotation(ctx, newSub("new")))
		assert.Equal(t, []string{"old"}, registry.unregistered)
		assert.Equal(t, []string{"old", "new"}, registry.registered)
		assert.Equal(t, StateRegistered, a.State())
		assert.Equal(t, "new", a.Subscription().Token)
	})

	t.Run("permission revoked since the grant", func(t *testing.T) {
		platform := &mockPlatform{permission: PermissionGranted, sub: newSub("old")}
		registry := &mockRegistry{}
		a := New(platform, registry, "/sw.js")
		require.NoError(t, a.Register(ctx))

		platform.permission = PermissionDenied
		assert.ErrorIs(t, a.HandleTokenRotation(ctx, newSub("new")), ErrPermissionDenied)
		assert.Equal(t, StatePermissionDenied, a.State())
		assert.Equal(t, []string{"old"}, registry.unregistered)
		assert.Equal(t, []string{"old"}, registry.registered)
	})
}
