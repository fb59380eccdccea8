package handler

import (
	"context"
	"fmt"
	"time"

	"userprofile/internal/event"
	"userprofile/internal/repository"
)

// OrderEventHandler records orders against existing users.
type OrderEventHandler struct {
	users    repository.UserRepository
	activity repository.ActivityRepository
}

func NewOrderEventHandler(s repository.Store) *OrderEventHandler {
	return &OrderEventHandler{users: s, activity: s}
}

func (h *OrderEventHandler) Handle(ctx context.Context, ev event.Event) error {
	o, err := event.DecodeOrderEvent(ev)
	if err != nil {
		return err
	}
	if _, err := h.users.FindByID(ctx, o.UserID); err != nil {
		return fmt.Errorf("order %s: %w", o.OrderID, err)
	}
	return h.activity.RecordOrder(ctx, repository.Activity{
		Kind:       repository.ActivityOrder,
		Ref:        o.OrderID,
		UserID:     o.UserID,
		Status:     o.Status,
		Detail:     fmt.Sprintf("%.2f %s", o.Amount, o.Currency),
		OccurredAt: occurred(o.OccurredAt, ev),
	})
}

// NotificationEventHandler records notifications sent to existing users.
type NotificationEventHandler struct {
	users    repository.UserRepository
	activity repository.ActivityRepository
}

func NewNotificationEventHandler(s repository.Store) *NotificationEventHandler {
	return &NotificationEventHandler{users: s, activity: s}
}

func (h *NotificationEventHandler) Handle(ctx context.Context, ev event.Event) error {
	n, err := event.DecodeNotificationEvent(ev)
	if err != nil {
		return err
	}
	if _, err := h.users.FindByID(ctx, n.UserID); err != nil {
		return fmt.Errorf("notification %s: %w", n.NotificationID, err)
	}
	return h.activity.RecordNotification(ctx, repository.Activity{
		Kind:       repository.ActivityNotification,
		Ref:        n.NotificationID,
		UserID:     n.UserID,
		Status:     n.Channel,
		Detail:     n.Message,
		OccurredAt: occurred(n.OccurredAt, ev),
	})
}

type AuditEventHandler struct {
	log repository.ActivityRepository
}

func NewAuditEventHandler(log repository.ActivityRepository) *AuditEventHandler {
	return &AuditEventHandler{log: log}
}

func (h *AuditEventHandler) Handle(ctx context.Context, ev event.Event) error {
	a, err := event.DecodeAuditEvent(ev)
	if err != nil {
		return err
	}
	return h.log.AppendAudit(ctx, repository.AuditRecord{
		ID:         a.ID,
		Actor:      a.Actor,
		Action:     a.Action,
		Subject:    a.Subject,
		Detail:     a.Detail,
		OccurredAt: occurred(a.OccurredAt, ev),
	})
}

// NewRegistryFor binds the four handlers over one store.
func NewRegistryFor(s repository.Store, users *UserEventHandler) *Registry {
	r := NewRegistry()
	r.Register(event.User, users)
	r.Register(event.Order, NewOrderEventHandler(s))
	r.Register(event.Notification, NewNotificationEventHandler(s))
	r.Register(event.Audit, NewAuditEventHandler(s))
	return r
}

// occurred prefers the payload time, then the record timestamp.
func occurred(at time.Time, ev event.Event) time.Time {
	if at.IsZero() {
		return ev.Timestamp.UTC()
	}
	return at.UTC()
}
