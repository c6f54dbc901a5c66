package receiver

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// View is one open client window.
type View struct {
	ID        string
	URL       string
	Focusable bool
}

// ActionKind says how a click is routed.
type ActionKind string

const (
	ActionFocus    ActionKind = "focus"
	ActionNavigate ActionKind = "navigate"
	ActionOpen     ActionKind = "open"
)

// ClickAction is the routing decision for a notification click.
type ClickAction struct {
	Kind   ActionKind
	ViewID string
	URL    string
}

// ResolveClick prefers a view already showing target, then the first
// focusable view (navigated to target), then a new view.
func ResolveClick(target string, views []View) ClickAction {
	for _, v := range views {
		if sameLocation(v.URL, target) {
			return ClickAction{Kind: ActionFocus, ViewID: v.ID, URL: target}
		}
	}
	for _, v := range views {
		if v.Focusable {
			return ClickAction{Kind: ActionNavigate, ViewID: v.ID, URL: target}
		}
	}
	return ClickAction{Kind: ActionOpen, URL: target}
}

func sameLocation(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	ua.Fragment, ub.Fragment = "", ""
	if ua.Path == "" {
		ua.Path = "/"
	}
	if ub.Path == "" {
		ub.Path = "/"
	}
	return ua.String() == ub.String()
}

// Display renders and dismisses system notifications.
type Display interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, n Notification) error
}

// Clients controls the open client views.
type Clients interface {
	Views(ctx context.Context) ([]View, error)
	Focus(ctx context.Context, viewID string) error
	Navigate(ctx context.Context, viewID, target string) error
	Open(ctx context.Context, target string) error
}

// Lifecycle is the installation hook of the background worker.
type Lifecycle interface {
	SkipWaiting(ctx context.Context) error
	ClaimClients(ctx context.Context) error
}

// Receiver renders pushes while the app is not focused and routes clicks
// back into it.
type Receiver struct {
	origin   *url.URL
	defaults Defaults
	display  Display
	clients  Clients
}

// New creates a receiver for the app served at origin. Relative links are
// resolved against it.
func New(origin string, defaults Defaults, display Display, clients Clients) (*Receiver, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, errors.Wrap(err, "parse origin")
	}
	if !u.IsAbs() {
		return nil, errors.Errorf("origin %q must be absolute", origin)
	}
	return &Receiver{origin: u, defaults: defaults, display: display, clients: clients}, nil
}

// Install activates the receiver at once and takes over already open views.
func (r *Receiver) Install(ctx context.Context, lc Lifecycle) error {
	if err := lc.SkipWaiting(ctx); err != nil {
		return errors.Wrap(err, "skip waiting")
	}
	if err := lc.ClaimClients(ctx); err != nil {
		return errors.Wrap(err, "claim clients")
	}
	return nil
}

// HandlePush parses the payload and shows it.
func (r *Receiver) HandlePush(ctx context.Context, raw []byte) (Notification, error) {
	n := ParsePayload(raw, r.defaults)
	if err := r.display.Show(ctx, n); err != nil {
		return n, errors.Wrap(err, "show notification")
	}
	return n, nil
}

// HandleClick closes the notification and then focuses, navigates or opens
// a view for its link.
func (r *Receiver) HandleClick(ctx context.Context, n Notification) (ClickAction, error) {
	if err := r.display.Close(ctx, n); err != nil {
		logrus.WithError(err).Warn("failed to close notification")
	}

	target := r.resolveLink(n.Link)
	views, err := r.clients.Views(ctx)
	if err != nil {
		return ClickAction{}, errors.Wrap(err, "list views")
	}

	action := ResolveClick(target, views)
	switch action.Kind {
	case ActionFocus:
		err = r.clients.Focus(ctx, action.ViewID)
	case ActionNavigate:
		if err = r.clients.Navigate(ctx, action.ViewID, target); err == nil {
			err = r.clients.Focus(ctx, action.ViewID)
		}
	default:
		err = r.clients.Open(ctx, target)
	}
	return action, errors.Wrapf(err, "%s view", action.Kind)
}

func (r *Receiver) resolveLink(link string) string {
	if link == "" {
		return r.origin.ResolveReference(&url.URL{Path: "/"}).String()
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return r.origin.ResolveReference(ref).String()
}
