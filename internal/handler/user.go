package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"userprofile/internal/domain"
	"userprofile/internal/event"
	"userprofile/internal/logging"
	"userprofile/internal/repository"
	"userprofile/sink"
)

const auditActor = "userprofile-service"

// UserEventHandler keeps the users table in line with the user topic and
// reports every applied change to the audit topic.
type UserEventHandler struct {
	repo       repository.UserRepository
	audit      sink.Publisher // nil disables audit events
	auditTopic string
	now        func() time.Time

	// events whose change is stored but whose audit publish failed
	mu        sync.Mutex
	unaudited map[string]struct{}
}

func NewUserEventHandler(repo repository.UserRepository, audit sink.Publisher, auditTopic string) *UserEventHandler {
	return &UserEventHandler{
		repo:       repo,
		audit:      audit,
		auditTopic: auditTopic,
		now:        time.Now,
		unaudited:  make(map[string]struct{}),
	}
}

func (h *UserEventHandler) Handle(ctx context.Context, ev event.Event) error {
	ue, err := event.DecodeUserEvent(ev)
	if err != nil {
		return err
	}

	var applied bool
	switch ue.Op {
	case event.OpCreated:
		applied, err = h.create(ctx, ue.User)
	case event.OpUpdated:
		applied, err = h.update(ctx, ue.User)
	case event.OpDeleted:
		applied, err = h.remove(ctx, ue.User.ID)
	}
	if err != nil {
		return fmt.Errorf("apply user %s %s: %w", ue.Op, ue.User.ID, err)
	}
	if !applied && !h.owesAudit(ue.ID) {
		logging.L().Debug("user event had no effect", "event_id", ue.ID, "op", string(ue.Op), "user_id", ue.User.ID)
		return nil
	}
	if err := h.publishAudit(ctx, ue); err != nil {
		h.setUnaudited(ue.ID, true)
		return err
	}
	h.setUnaudited(ue.ID, false)
	return nil
}

// owesAudit reports whether an earlier attempt at id stored its change but
// failed to publish the audit event. The retry then finds nothing to apply.
func (h *UserEventHandler) owesAudit(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.unaudited[id]
	return ok
}

func (h *UserEventHandler) setUnaudited(id string, pending bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pending {
		h.unaudited[id] = struct{}{}
	} else {
		delete(h.unaudited, id)
	}
}

// create inserts u. A replayed create for a known id is applied only when it
// carries a newer modification.
func (h *UserEventHandler) create(ctx context.Context, u domain.User) (bool, error) {
	err := h.repo.Insert(ctx, u)
	if !errors.Is(err, domain.ErrUserExists) {
		return err == nil, err
	}
	cur, ferr := h.repo.FindByID(ctx, u.ID)
	if errors.Is(ferr, domain.ErrUserNotFound) {
		// conflict on user name or e-mail held by someone else
		return false, err
	}
	if ferr != nil {
		return false, ferr
	}
	if !u.NewerThan(cur) {
		return false, nil
	}
	return true, h.repo.Update(ctx, u)
}

func (h *UserEventHandler) update(ctx context.Context, u domain.User) (bool, error) {
	cur, err := h.repo.FindByID(ctx, u.ID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return true, h.repo.Insert(ctx, u)
	case err != nil:
		return false, err
	case cur.NewerThan(u):
		return false, nil
	}
	return true, h.repo.Update(ctx, u)
}

func (h *UserEventHandler) remove(ctx context.Context, id string) (bool, error) {
	err := h.repo.Remove(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (h *UserEventHandler) publishAudit(ctx context.Context, ue event.UserEvent) error {
	if h.audit == nil || h.auditTopic == "" {
		return nil
	}
	ae := event.AuditEvent{
		ID:         event.NewID(),
		Actor:      auditActor,
		Action:     "user." + string(ue.Op),
		Subject:    ue.User.ID,
		Detail:     ue.ID,
		OccurredAt: h.now().UTC(),
	}
	payload, err := json.Marshal(ae)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return h.audit.Publish(ctx, sink.Message{
		Topic: h.auditTopic,
		Key:   []byte(ue.User.ID),
		Value: payload,
		Headers: map[string]string{
			event.HeaderContentType: event.ContentTypeJSON,
			event.HeaderEventID:     ae.ID,
		},
	})
}
