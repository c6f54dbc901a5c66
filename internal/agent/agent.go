package agent

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"push-dispatch-backend/internal/model"
)

// State is the registration state of one client session.
type State string

const (
	StateUnregistered        State = "unregistered"
	StatePermissionRequested State = "permission_requested"
	StatePermissionDenied    State = "permission_denied"
	StateRegistered          State = "registered"
)

// Permission is the platform's answer to a notification permission prompt.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

var (
	// ErrPermissionDenied is terminal; the user declined notifications.
	ErrPermissionDenied = errors.New("notification permission denied")
	// ErrRegistrationInProgress is returned while another register or
	// unregister call is pending.
	ErrRegistrationInProgress = errors.New("registration already in progress")
)

// TransientRegistrationError wraps a retryable failure. The agent is back in
// StateUnregistered (or stays registered) when it is returned.
type TransientRegistrationError struct {
	Op  string
	Err error
}

func (e *TransientRegistrationError) Error() string {
	return "registration " + e.Op + " failed: " + e.Err.Error()
}

func (e *TransientRegistrationError) Unwrap() error { return e.Err }

// Subscription is the platform push subscription of this client.
type Subscription struct {
	Token string
	Keys  *model.AuxiliaryKeys
}

// Platform is the client-side push service.
type Platform interface {
	// RequestPermission prompts the user when no decision was made yet.
	RequestPermission(ctx context.Context) (Permission, error)
	// Permission returns the current decision without prompting.
	Permission(ctx context.Context) (Permission, error)
	// Subscribe returns a push subscription bound to the receiver scope.
	Subscribe(ctx context.Context, receiverScope string) (*Subscription, error)
	// Unsubscribe invalidates the local endpoint.
	Unsubscribe(ctx context.Context, token string) error
}

// RegistryClient talks to the endpoint registry on behalf of the current
// subscriber. Unregister only removes the subscriber's own endpoint.
type RegistryClient interface {
	Register(ctx context.Context, token string, keys *model.AuxiliaryKeys) error
	Unregister(ctx context.Context, token string) error
}

// Agent keeps one client's endpoint in sync with the registry. No lock is
// held while the platform or the registry is called.
type Agent struct {
	platform      Platform
	registry      RegistryClient
	receiverScope string

	mu      sync.Mutex
	state   State
	pending bool
	sub     *Subscription
}

// New returns an agent in StateUnregistered.
func New(platform Platform, registry RegistryClient, receiverScope string) *Agent {
	return &Agent{
		platform:      platform,
		registry:      registry,
		receiverScope: receiverScope,
		state:         StateUnregistered,
	}
}

// State returns the current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Subscription returns the registered subscription, if any.
func (a *Agent) Subscription() *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sub
}

// begin marks a call as pending and returns the state it started from.
func (a *Agent) begin() (State, *Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending {
		return a.state, nil, ErrRegistrationInProgress
	}
	a.pending = true
	return a.state, a.sub, nil
}

func (a *Agent) finish(state State, sub *Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
	a.sub = sub
	a.pending = false
}

func (a *Agent) setState(state State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
}

// Register asks for permission, subscribes with the platform and records the
// endpoint in the registry. When already registered it only re-sends the
// registration, which refreshes last_seen_at.
func (a *Agent) Register(ctx context.Context) error {
	state, sub, err := a.begin()
	if err != nil {
		return err
	}

	switch state {
	case StatePermissionDenied:
		a.finish(StatePermissionDenied, nil)
		return ErrPermissionDenied
	case StateRegistered:
		if err := a.registry.Register(ctx, sub.Token, sub.Keys); err != nil {
			a.finish(StateRegistered, sub)
			return &TransientRegistrationError{Op: "refresh", Err: err}
		}
		a.finish(StateRegistered, sub)
		return nil
	}

	a.setState(StatePermissionRequested)

	perm, err := a.platform.RequestPermission(ctx)
	if err != nil {
		a.finish(StateUnregistered, nil)
		return &TransientRegistrationError{Op: "permission", Err: err}
	}
	if perm != PermissionGranted {
		if perm == PermissionDenied {
			a.finish(StatePermissionDenied, nil)
			return ErrPermissionDenied
		}
		// Prompt dismissed without a decision.
		a.finish(StateUnregistered, nil)
		return &TransientRegistrationError{Op: "permission", Err: errors.New("permission prompt dismissed")}
	}

	sub, err = a.platform.Subscribe(ctx, a.receiverScope)
	if err != nil {
		a.finish(StateUnregistered, nil)
		return &TransientRegistrationError{Op: "subscribe", Err: err}
	}

	if err := a.registry.Register(ctx, sub.Token, sub.Keys); err != nil {
		a.finish(StateUnregistered, nil)
		return &TransientRegistrationError{Op: "register", Err: err}
	}

	a.finish(StateRegistered, sub)
	logrus.WithField("receiver_scope", a.receiverScope).Debug("push endpoint registered")
	return nil
}

// Unregister removes the endpoint from the registry and then invalidates it
// locally. Local invalidation is attempted even when the registry call
// failed; the registry error is the one reported.
func (a *Agent) Unregister(ctx context.Context) error {
	state, sub, err := a.begin()
	if err != nil {
		return err
	}
	if state != StateRegistered || sub == nil {
		a.finish(state, sub)
		return nil
	}

	regErr := a.registry.Unregister(ctx, sub.Token)
	platErr := a.platform.Unsubscribe(ctx, sub.Token)

	if regErr != nil && platErr != nil {
		// Nothing changed on either side.
		a.finish(StateRegistered, sub)
	} else {
		a.finish(StateUnregistered, nil)
	}

	if regErr != nil {
		if platErr != nil {
			logrus.WithError(platErr).Warn("local push unsubscribe failed")
		}
		return &TransientRegistrationError{Op: "unregister", Err: regErr}
	}
	if platErr != nil {
		return &TransientRegistrationError{Op: "unsubscribe", Err: platErr}
	}
	return nil
}

// HandleTokenRotation replaces the endpoint after the platform issued a new
// subscription. The old endpoint is removed first; the new one is registered
// only while permission is still granted.
func (a *Agent) HandleTokenRotation(ctx context.Context, next *Subscription) error {
	_, old, err := a.begin()
	if err != nil {
		return err
	}
	a.setState(StateUnregistered)

	if old != nil && old.Token != next.Token {
		if err := a.registry.Unregister(ctx, old.Token); err != nil {
			logrus.WithError(err).Warn("failed to remove rotated endpoint")
		}
	}

	perm, err := a.platform.Permission(ctx)
	if err != nil {
		a.finish(StateUnregistered, nil)
		return &TransientRegistrationError{Op: "permission", Err: err}
	}
	switch perm {
	case PermissionGranted:
	case PermissionDenied:
		a.finish(StatePermissionDenied, nil)
		return ErrPermissionDenied
	default:
		a.finish(StateUnregistered, nil)
		return nil
	}

	if err := a.registry.Register(ctx, next.Token, next.Keys); err != nil {
		a.finish(StateUnregistered, nil)
		return &TransientRegistrationError{Op: "register", Err: err}
	}
	a.finish(StateRegistered, next)
	return nil
}
