package model

// Target selects which endpoints a dispatch reaches. It is one of
// Broadcast, BySubscribers or ByToken.
type Target interface {
	isTarget()
}

// Broadcast reaches every registered endpoint.
type Broadcast struct{}

// BySubscribers reaches every endpoint owned by the listed subscribers.
type BySubscribers struct {
	IDs []string
}

// ByToken reaches exactly one endpoint.
type ByToken struct {
	Token string
}

func (Broadcast) isTarget()     {}
func (BySubscribers) isTarget() {}
func (ByToken) isTarget()       {}

// NewTarget maps the loosely shaped request fields onto a Target. Both fields
// empty means broadcast; the caller rejects requests that set both.
func NewTarget(subscriberIDs []string, token string) Target {
	switch {
	case token != "":
		return ByToken{Token: token}
	case len(subscriberIDs) > 0:
		return BySubscribers{IDs: subscriberIDs}
	default:
		return Broadcast{}
	}
}
