package model

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// WebhookEventType selects which queue events a webhook receives.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type WebhookEventType string

const (
	// WebhookEventProgress delivers job progress events.
	WebhookEventProgress WebhookEventType = "progress"
	// WebhookEventCompleted delivers job completion events.
	WebhookEventCompleted WebhookEventType = "completed"
	// WebhookEventFailed delivers job failure events.
	WebhookEventFailed WebhookEventType = "failed"
	// WebhookEventDelta delivers incremental result events.
	WebhookEventDelta WebhookEventType = "delta"
	// WebhookEventAll subscribes to every event type.
	WebhookEventAll WebhookEventType = "all"
)

// Valid returns true if the WebhookEventType is valid.
func (t WebhookEventType) Valid() bool {
	switch t {
	case WebhookEventProgress, WebhookEventCompleted, WebhookEventFailed, WebhookEventDelta, WebhookEventAll:
		return true
	default:
		return false
	}
}

// Matches reports whether a webhook subscribed to t should receive an event
// of the given type.
func (t WebhookEventType) Matches(event WebhookEventType) bool {
	return t == WebhookEventAll || t == event
}

// UnmarshalText implements encoding.TextUnmarshaler for WebhookEventType.
func (t *WebhookEventType) UnmarshalText(text []byte) error {
	v := WebhookEventType(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return errors.New("invalid event type: " + string(text))
	}
	*t = v
	return nil
}

// Webhook represents a registered delivery endpoint. The tuple
// (user_id, url, event_type) is unique.
type Webhook struct {
	ID          string           `json:"id"                    db:"id"`
	UserID      uint64           `json:"userId"                db:"user_id"`
	URL         string           `json:"url"                   db:"url"`
	EventType   WebhookEventType `json:"eventType"             db:"event_type"`
	Description *string          `json:"description,omitempty" db:"description"`
	Active      bool             `json:"active"                db:"active"`
	CreatedAt   time.Time        `json:"createdAt"             db:"created_at"`
	UpdatedAt   time.Time        `json:"updatedAt"             db:"updated_at"`
}

// CreateWebhookRequest represents a request to register a webhook.
type CreateWebhookRequest struct {
	URL         string           `json:"url"`
	EventType   WebhookEventType `json:"eventType"`
	Description *string          `json:"description,omitempty"`
	Active      *bool            `json:"active,omitempty"`
}

// Normalize normalizes the CreateWebhookRequest fields.
func (r *CreateWebhookRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		r.Description = &d
	}
}

// Validate validates the CreateWebhookRequest fields.
func (r *CreateWebhookRequest) Validate() error {
	if err := validateWebhookURL(r.URL); err != nil {
		return err
	}
	if !r.EventType.Valid() {
		return errors.New("eventType must be one of progress, completed, failed, delta, all")
	}
	return nil
}

// UpdateWebhookRequest represents a request to update an existing webhook.
type UpdateWebhookRequest struct {
	URL         *string           `json:"url,omitempty"`
	EventType   *WebhookEventType `json:"eventType,omitempty"`
	Description *string           `json:"description,omitempty"`
	Active      *bool             `json:"active,omitempty"`
}

// HasUpdates returns true if at least one field is being updated.
func (r *UpdateWebhookRequest) HasUpdates() bool {
	return r.URL != nil || r.EventType != nil || r.Description != nil || r.Active != nil
}

// Validate validates the UpdateWebhookRequest fields.
func (r *UpdateWebhookRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.URL != nil {
		if err := validateWebhookURL(strings.TrimSpace(*r.URL)); err != nil {
			return err
		}
	}
	if r.EventType != nil && !r.EventType.Valid() {
		return errors.New("eventType must be one of progress, completed, failed, delta, all")
	}
	return nil
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.New("url is invalid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	return nil
}
