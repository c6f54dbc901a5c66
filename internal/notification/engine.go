package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"push-dispatch-backend/internal/credential"
	"push-dispatch-backend/internal/model"
	"push-dispatch-backend/internal/store"
)

const registryWriteTimeout = 5 * time.Second

// ErrTransportUnavailable is reported for endpoints whose transport is not configured.
var ErrTransportUnavailable = errors.New("transport not configured")

// EngineConfig bounds a single dispatch call.
type EngineConfig struct {
	// Timeout is the overall deadline of a dispatch. Zero means none.
	Timeout time.Duration
	// MaxConcurrency caps in-flight sends. Zero means unbounded.
	MaxConcurrency int
}

// Engine resolves targets, sends to every endpoint and reconciles the
// registry with what the gateways report.
type Engine struct {
	registry   store.Registry
	tokens     credential.TokenSource
	transports map[model.Transport]Transport
	cfg        EngineConfig
	now        func() time.Time
}

// NewEngine wires the engine. webPush may be nil when VAPID is not configured.
func NewEngine(registry store.Registry, tokens credential.TokenSource, fcm, webPush Transport, cfg EngineConfig) *Engine {
	transports := map[model.Transport]Transport{}
	if fcm != nil {
		transports[model.TransportFCM] = fcm
	}
	if webPush != nil {
		transports[model.TransportWebPush] = webPush
	}
	return &Engine{
		registry:   registry,
		tokens:     tokens,
		transports: transports,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ResolveTargets turns a target into the registrations to attempt. A token
// with no registry row is still attempted through the gateway.
func (e *Engine) ResolveTargets(ctx context.Context, target model.Target) ([]model.EndpointRegistration, error) {
	switch t := target.(type) {
	case model.ByToken:
		if t.Token == "" {
			return nil, nil
		}
		reg, err := e.registry.Get(ctx, t.Token)
		if errors.Is(err, store.ErrNotFound) {
			return []model.EndpointRegistration{{EndpointToken: t.Token}}, nil
		}
		if err != nil {
			return nil, err
		}
		return []model.EndpointRegistration{*reg}, nil
	case model.BySubscribers:
		return e.registry.ListBySubscribers(ctx, t.IDs)
	case model.Broadcast:
		return e.registry.ListAll(ctx)
	default:
		return nil, fmt.Errorf("unsupported target %T", target)
	}
}

// Dispatch delivers msg to every endpoint of target. Each endpoint gets one
// attempt; a failing endpoint never cancels the others. When endpoints were
// attempted and none succeeded the summary is returned together with an
// *AllDeliveriesFailedError.
func (e *Engine) Dispatch(ctx context.Context, target model.Target, msg *model.DeliveryMessage) (*model.DispatchSummary, error) {
	summary := &model.DispatchSummary{ID: uuid.NewString(), Results: []model.DispatchResult{}}
	log := logrus.WithField("dispatch_id", summary.ID)

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	regs, err := e.ResolveTargets(ctx, target)
	if err != nil {
		return nil, errors.Wrap(err, "resolve targets")
	}
	if len(regs) == 0 {
		log.Debug("no endpoints to notify")
		return summary, nil
	}

	var bearer string
	if usesGateway(regs) {
		bearer, err = e.tokens.Token(ctx)
		if err != nil {
			log.WithError(err).Error("failed to obtain gateway credential")
			return nil, err
		}
	}

	log.WithField("endpoints", len(regs)).Info("dispatching notification")

	results := make([]model.DispatchResult, len(regs))
	var credentialRejected atomic.Bool
	var g errgroup.Group
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}
	for i := range regs {
		i := i
		g.Go(func() error {
			var rejected bool
			results[i], rejected = e.deliver(ctx, log, &regs[i], msg, bearer)
			if rejected {
				credentialRejected.Store(true)
			}
			return nil
		})
	}
	g.Wait()

	if credentialRejected.Load() {
		e.invalidateCredential(log)
	}

	var delivered []string
	for _, r := range results {
		summary.Attempted++
		if r.Success {
			summary.Succeeded++
			delivered = append(delivered, r.EndpointToken)
		} else {
			summary.Failed++
		}
	}
	summary.Results = results

	if len(delivered) > 0 {
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), registryWriteTimeout)
		if err := e.registry.Touch(touchCtx, delivered, e.now()); err != nil {
			log.WithError(err).Warn("failed to refresh last_seen_at")
		}
		cancel()
	}

	log.WithFields(logrus.Fields{
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("dispatch finished")

	if summary.Succeeded == 0 {
		return summary, &AllDeliveriesFailedError{Summary: summary}
	}
	return summary, nil
}

// deliver sends to one endpoint. The second return reports whether the
// gateway refused the bearer credential.
func (e *Engine) deliver(ctx context.Context, log *logrus.Entry, reg *model.EndpointRegistration, msg *model.DeliveryMessage, bearer string) (model.DispatchResult, bool) {
	kind := reg.Transport()
	result := model.DispatchResult{EndpointToken: reg.EndpointToken, Transport: kind}
	entry := log.WithFields(logrus.Fields{"endpoint": truncate(reg.EndpointToken), "transport": kind})

	var resp *Response
	var err error
	if t, ok := e.transports[kind]; ok {
		resp, err = t.Send(ctx, reg, msg, bearer)
	} else {
		err = ErrTransportUnavailable
	}

	outcome, failure := classify(resp, err)
	result.Outcome = outcome
	if resp != nil {
		result.StatusCode = resp.StatusCode
	}

	entry = entry.WithFields(logrus.Fields{"status": result.StatusCode, "outcome": outcome})
	switch outcome {
	case model.OutcomeDelivered:
		result.Success = true
		entry.Debug("notification delivered")
	case model.OutcomeInvalid:
		result.Error = failure.Error()
		entry.Info("endpoint rejected by gateway; removing registration")
		e.removeInvalid(ctx, entry, reg.EndpointToken)
	default:
		result.Error = failure.Error()
		entry.WithError(failure).Warn("notification delivery failed")
	}
	return result, kind == model.TransportFCM && rejectsCredential(resp)
}

// invalidateCredential drops the cached gateway credential so the next
// dispatch issues a new one.
func (e *Engine) invalidateCredential(log *logrus.Entry) {
	inv, ok := e.tokens.(credential.Invalidator)
	if !ok {
		return
	}
	log.Warn("gateway refused the credential; invalidating cached token")
	inv.Invalidate()
}

// removeInvalid deletes the registration even when the dispatch deadline has
// already passed.
func (e *Engine) removeInvalid(ctx context.Context, log *logrus.Entry, token string) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), registryWriteTimeout)
	defer cancel()
	if err := e.registry.DeleteByToken(delCtx, token, nil); err != nil {
		log.WithError(err).Error("failed to delete invalid registration")
	}
}

// classify maps a gateway answer onto an outcome and, for failures, the
// matching error.
func classify(resp *Response, err error) (model.Outcome, error) {
	if err != nil {
		return model.OutcomeTransient, &TransientDeliveryError{Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return model.OutcomeDelivered, nil
	}

	detail := strings.TrimSpace(string(resp.Body))
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone:
		return model.OutcomeInvalid, &EndpointInvalidError{StatusCode: resp.StatusCode, Detail: detail}
	}
	if reportsUnregistered(resp.Body) {
		return model.OutcomeInvalid, &EndpointInvalidError{StatusCode: resp.StatusCode, Detail: detail}
	}
	return model.OutcomeTransient, &TransientDeliveryError{StatusCode: resp.StatusCode, Detail: detail}
}

func usesGateway(regs []model.EndpointRegistration) bool {
	for i := range regs {
		if regs[i].Transport() == model.TransportFCM {
			return true
		}
	}
	return false
}

// truncate shortens an endpoint for logs.
func truncate(token string) string {
	if len(token) > 50 {
		return token[:50] + "..."
	}
	return token
}
