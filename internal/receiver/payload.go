package receiver

import (
	"encoding/json"
	"strings"

	"push-dispatch-backend/internal/model"
)

// Defaults fill every field a payload leaves empty.
type Defaults struct {
	Title string
	Body  string
	Icon  string
	Link  string
	Tag   string
}

// Notification is what gets rendered for one push.
type Notification struct {
	Title string
	Body  string
	Icon  string
	Link  string
	Tag   string
	Data  map[string]string
}

// wirePayload accepts both the flat Web Push document and the FCM envelope.
type wirePayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon"`
	Link  string         `json:"link"`
	URL   string         `json:"url"`
	Tag   string         `json:"tag"`
	Data  map[string]any `json:"data"`

	Notification *struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Icon  string `json:"icon"`
		Tag   string `json:"tag"`
	} `json:"notification"`
	FCMOptions *struct {
		Link string `json:"link"`
	} `json:"fcmOptions"`
	FCMOptionsSnake *struct {
		Link string `json:"link"`
	} `json:"fcm_options"`
}

// ParsePayload decodes a pushed payload. A payload that is not a JSON object
// is shown as the body text.
func ParsePayload(raw []byte, d Defaults) Notification {
	var p wirePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		n := Notification{Body: strings.TrimSpace(string(raw))}
		return n.withDefaults(d)
	}

	n := Notification{
		Title: p.Title,
		Body:  p.Body,
		Icon:  p.Icon,
		Link:  firstNonEmpty(p.Link, p.URL),
		Tag:   p.Tag,
		Data:  model.CoerceData(p.Data),
	}
	if p.Notification != nil {
		n.Title = firstNonEmpty(p.Notification.Title, n.Title)
		n.Body = firstNonEmpty(p.Notification.Body, n.Body)
		n.Icon = firstNonEmpty(p.Notification.Icon, n.Icon)
		n.Tag = firstNonEmpty(p.Notification.Tag, n.Tag)
	}
	if p.FCMOptions != nil {
		n.Link = firstNonEmpty(p.FCMOptions.Link, n.Link)
	}
	if p.FCMOptionsSnake != nil {
		n.Link = firstNonEmpty(p.FCMOptionsSnake.Link, n.Link)
	}
	if n.Link == "" && n.Data != nil {
		n.Link = firstNonEmpty(n.Data["link"], n.Data["url"])
	}
	return n.withDefaults(d)
}

func (n Notification) withDefaults(d Defaults) Notification {
	n.Title = firstNonEmpty(n.Title, d.Title)
	n.Body = firstNonEmpty(n.Body, d.Body)
	n.Icon = firstNonEmpty(n.Icon, d.Icon)
	n.Link = firstNonEmpty(n.Link, d.Link)
	n.Tag = firstNonEmpty(n.Tag, d.Tag)
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
