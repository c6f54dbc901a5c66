package model

import "time"

// Transport identifies how a registration is reached.
type Transport string

const (
	TransportFCM     Transport = "fcm"
	TransportWebPush Transport = "webpush"
)

// AuxiliaryKeys holds the browser-side encryption material of a Web Push subscription.
type AuxiliaryKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Complete reports whether both keys are present.
func (k *AuxiliaryKeys) Complete() bool {
	return k != nil && k.P256DH != "" && k.Auth != ""
}

// EndpointRegistration is one delivery endpoint owned by (at most) one subscriber.
type EndpointRegistration struct {
	EndpointToken string         `gorm:"primaryKey;size:2048" json:"endpoint_token"`
	SubscriberID  *string        `gorm:"index;size:255" json:"subscriber_id,omitempty"`
	AuxiliaryKeys *AuxiliaryKeys `gorm:"serializer:json;type:text" json:"auxiliary_keys,omitempty"`
	LastSeenAt    time.Time      `gorm:"not null;index" json:"last_seen_at"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

// Transport picks the delivery channel for this registration. Only Web Push
// endpoints carry auxiliary keys.
func (r *EndpointRegistration) Transport() Transport {
	if r.AuxiliaryKeys.Complete() {
		return TransportWebPush
	}
	return TransportFCM
}
