package notification

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"push-dispatch-backend/internal/model"
	"push-dispatch-backend/internal/store"
)

// memRegistry is an in-memory store.Registry.
type memRegistry struct {
	mu      sync.Mutex
	rows    map[string]model.EndpointRegistration
	deletes int
	touched []string
}

func newMemRegistry(regs ...model.EndpointRegistration) *memRegistry {
	r := &memRegistry{rows: map[string]model.EndpointRegistration{}}
	for _, reg := range regs {
		r.rows[reg.EndpointToken] = reg
	}
	return r
}

func (r *memRegistry) Upsert(ctx context.Context, token string, subscriberID *string, keys *model.AuxiliaryKeys) (*model.EndpointRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := model.EndpointRegistration{EndpointToken: token, SubscriberID: subscriberID, AuxiliaryKeys: keys, LastSeenAt: time.Now()}
	r.rows[token] = reg
	return &reg, nil
}

func (r *memRegistry) Get(ctx context.Context, token string) (*model.EndpointRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.rows[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &reg, nil
}

func (r *memRegistry) ListBySubscribers(ctx context.Context, ids []string) ([]model.EndpointRegistration, error) {
	if len(ids) == 0 {
		return nil, store.ErrEmptySubscriberSet
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []model.EndpointRegistration
	for _, reg := range r.rows {
		if reg.SubscriberID != nil && want[*reg.SubscriberID] {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointToken < out[j].EndpointToken })
	return out, nil
}

func (r *memRegistry) ListAll(ctx context.Context) ([]model.EndpointRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EndpointRegistration
	for _, reg := range r.rows {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointToken < out[j].EndpointToken })
	return out, nil
}

func (r *memRegistry) DeleteByToken(ctx context.Context, token string, owner *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.rows[token]
	if owner != nil && (!ok || reg.SubscriberID == nil || *reg.SubscriberID != *owner) {
		return store.ErrNotFound
	}
	if ok {
		r.deletes++
		delete(r.rows, token)
	}
	return nil
}

func (r *memRegistry) Touch(ctx context.Context, tokens []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, tokens...)
	return nil
}

func (r *memRegistry) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *memRegistry) tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for token := range r.rows {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

type fakeTokens struct {
	calls int32
	err   error
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return "bearer-token", nil
}

// fakeTransport answers with SendFunc and counts calls.
type fakeTransport struct {
	calls    int32
	SendFunc func(ctx context.Context, reg *model.EndpointRegistration, msg *model.DeliveryMessage, bearer string) (*Response, error)
}

func (f *fakeTransport) Send(ctx context.Context, reg *model.EndpointRegistration, msg *model.DeliveryMessage, bearer string) (*Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.SendFunc(ctx, reg, msg, bearer)
}

func statusTransport(codes map[string]int) *fakeTransport {
	return &fakeTransport{SendFunc: func(ctx context.Context, reg *model.EndpointRegistration, msg *model.DeliveryMessage, bearer string) (*Response, error) {
		code, ok := codes[reg.EndpointToken]
		if !ok {
			code = 200
		}
		return &Response{StatusCode: code}, nil
	}}
}

func strPtr(s string) *string { return &s }
