package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"push-dispatch-backend/internal/model"
)

var (
	// ErrNotFound is returned when a lookup or a scoped delete matches no row.
	ErrNotFound = errors.New("endpoint registration not found")
	// ErrEmptySubscriberSet is returned by ListBySubscribers for an empty id set.
	// Callers decide whether "no ids" means broadcast.
	ErrEmptySubscriberSet = errors.New("subscriber id set is empty")
)

// Registry is the persisted mapping of subscribers to delivery endpoints.
type Registry interface {
	Upsert(ctx context.Context, token string, subscriberID *string, keys *model.AuxiliaryKeys) (*model.EndpointRegistration, error)
	Get(ctx context.Context, token string) (*model.EndpointRegistration, error)
	ListBySubscribers(ctx context.Context, subscriberIDs []string) ([]model.EndpointRegistration, error)
	ListAll(ctx context.Context) ([]model.EndpointRegistration, error)
	DeleteByToken(ctx context.Context, token string, ownerSubscriberID *string) error
	Touch(ctx context.Context, tokens []string, at time.Time) error
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// gormStore implements the Registry interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed registry.
func NewGormStore(db *gorm.DB) Registry {
	return &gormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Upsert inserts the registration or, when the token already exists, takes it
// over for the given subscriber with the new keys.
func (s *gormStore) Upsert(ctx context.Context, token string, subscriberID *string, keys *model.AuxiliaryKeys) (*model.EndpointRegistration, error) {
	now := s.now()
	reg := model.EndpointRegistration{
		EndpointToken: token,
		SubscriberID:  subscriberID,
		AuxiliaryKeys: keys,
		LastSeenAt:    now,
		CreatedAt:     now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint_token"}},
		DoUpdates: clause.AssignmentColumns([]string{"subscriber_id", "auxiliary_keys", "last_seen_at"}),
	}).Create(&reg).Error
	if err != nil {
		return nil, errors.Wrapf(err, "upsert registration %s", truncate(token))
	}

	// The conflict path keeps the original created_at.
	var stored model.EndpointRegistration
	if err := s.db.WithContext(ctx).Where("endpoint_token = ?", token).First(&stored).Error; err != nil {
		return nil, errors.Wrapf(err, "reload registration %s", truncate(token))
	}
	return &stored, nil
}

// Get returns the registration for a token.
func (s *gormStore) Get(ctx context.Context, token string) (*model.EndpointRegistration, error) {
	var reg model.EndpointRegistration
	err := s.db.WithContext(ctx).Where("endpoint_token = ?", token).First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get registration %s", truncate(token))
	}
	return &reg, nil
}

// ListBySubscribers returns every registration owned by one of the subscribers.
func (s *gormStore) ListBySubscribers(ctx context.Context, subscriberIDs []string) ([]model.EndpointRegistration, error) {
	if len(subscriberIDs) == 0 {
		return nil, ErrEmptySubscriberSet
	}

	var regs []model.EndpointRegistration
	if err := s.db.WithContext(ctx).Where("subscriber_id IN ?", subscriberIDs).Find(&regs).Error; err != nil {
		return nil, errors.Wrap(err, "list registrations by subscriber")
	}
	return regs, nil
}

// ListAll returns every registration.
func (s *gormStore) ListAll(ctx context.Context) ([]model.EndpointRegistration, error) {
	var regs []model.EndpointRegistration
	if err := s.db.WithContext(ctx).Find(&regs).Error; err != nil {
		return nil, errors.Wrap(err, "list registrations")
	}
	return regs, nil
}

// DeleteByToken removes a registration. With an owner the delete only matches
// that owner's row and a miss is ErrNotFound; without one it is an idempotent
// privileged cleanup.
func (s *gormStore) DeleteByToken(ctx context.Context, token string, ownerSubscriberID *string) error {
	tx := s.db.WithContext(ctx).Where("endpoint_token = ?", token)
	if ownerSubscriberID != nil {
		tx = tx.Where("subscriber_id = ?", *ownerSubscriberID)
	}

	result := tx.Delete(&model.EndpointRegistration{})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "delete registration %s", truncate(token))
	}
	if ownerSubscriberID != nil && result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch refreshes last_seen_at for the given tokens.
func (s *gormStore) Touch(ctx context.Context, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&model.EndpointRegistration{}).
		Where("endpoint_token IN ?", tokens).
		Update("last_seen_at", at).Error
	return errors.Wrap(err, "touch registrations")
}

// DeleteStale removes registrations not seen since before.
func (s *gormStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("last_seen_at < ?", before).Delete(&model.EndpointRegistration{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "delete stale registrations")
	}
	return result.RowsAffected, nil
}

// truncate shortens an endpoint for logs and error messages.
func truncate(token string) string {
	if len(token) > 50 {
		return token[:50]
	}
	return token
}
