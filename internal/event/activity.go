package event

import (
	"encoding/json"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"userprofile/internal/domain"
)

// OrderEvent is the JSON payload of the order topic.
type OrderEvent struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (o OrderEvent) Validate() error {
	switch {
	case strings.TrimSpace(o.OrderID) == "":
		return zerr.Wrap(domain.ErrInvalidEvent, "order id is required")
	case strings.TrimSpace(o.UserID) == "":
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "order without user"), "order_id", o.OrderID)
	case strings.TrimSpace(o.Status) == "":
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "order status is required"), "order_id", o.OrderID)
	case o.Amount < 0:
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "negative order amount"), "order_id", o.OrderID)
	}
	return nil
}

// NotificationEvent is the JSON payload of the notification topic.
type NotificationEvent struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Channel        string    `json:"channel"`
	Message        string    `json:"message"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (n NotificationEvent) Validate() error {
	switch {
	case strings.TrimSpace(n.NotificationID) == "":
		return zerr.Wrap(domain.ErrInvalidEvent, "notification id is required")
	case strings.TrimSpace(n.UserID) == "":
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "notification without user"), "notification_id", n.NotificationID)
	case strings.TrimSpace(n.Channel) == "":
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "notification channel is required"), "notification_id", n.NotificationID)
	}
	return nil
}

// AuditEvent records an action taken on a subject, by the service or upstream.
type AuditEvent struct {
	ID         string    `json:"event_id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Subject    string    `json:"subject"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (a AuditEvent) Validate() error {
	switch {
	case strings.TrimSpace(a.ID) == "":
		return zerr.Wrap(domain.ErrInvalidEvent, "audit event id is required")
	case strings.TrimSpace(a.Action) == "":
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "audit action is required"), "event_id", a.ID)
	case strings.TrimSpace(a.Subject) == "":
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "audit subject is required"), "event_id", a.ID)
	}
	return nil
}

func DecodeOrderEvent(ev Event) (OrderEvent, error)               { return decodeJSON[OrderEvent](ev) }
func DecodeNotificationEvent(ev Event) (NotificationEvent, error) { return decodeJSON[NotificationEvent](ev) }

// DecodeAuditEvent falls back to the record id when the payload has none.
func DecodeAuditEvent(ev Event) (AuditEvent, error) {
	var a AuditEvent
	if err := unmarshalJSON(ev, &a); err != nil {
		return AuditEvent{}, err
	}
	if a.ID == "" {
		a.ID = ev.ID
	}
	if err := a.Validate(); err != nil {
		return AuditEvent{}, err
	}
	return a, nil
}

type validator interface{ Validate() error }

func decodeJSON[T validator](ev Event) (T, error) {
	var v T
	if err := unmarshalJSON(ev, &v); err != nil {
		return v, err
	}
	if err := v.Validate(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func unmarshalJSON(ev Event, dst any) error {
	if ct := ev.ContentType(); ct != "" && ct != ContentTypeJSON {
		return zerr.With(zerr.Wrap(domain.ErrDecodeFailed, "unsupported content type"), "content_type", ct)
	}
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrDecodeFailed, err.Error()), "offset", ev.Offset)
	}
	return nil
}
