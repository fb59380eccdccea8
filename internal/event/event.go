// Package event defines the events the service consumes and emits and the
// codecs for their payloads.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"userprofile/internal/config"
)

// Type is the family an event belongs to, derived from its topic.
type Type int

const (
	Unknown Type = iota
	User
	Order
	Notification
	Audit
)

var typeNames = [...]string{"unknown", "user", "order", "notification", "audit"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return typeNames[Unknown]
	}
	return typeNames[t]
}

// ParseType is the inverse of String; it is case-insensitive.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if i != int(Unknown) && n == s {
			return Type(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown event type %q", s)
}

// Types lists the concrete event types.
func Types() []Type { return []Type{User, Order, Notification, Audit} }

const (
	HeaderContentType = "content-type"
	HeaderEventID     = "event-id"

	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"
)

// Event is one consumed record.
type Event struct {
	ID        string
	Type      Type
	Key       []byte
	Payload   []byte
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string
}

// Checkpoint identifies the source record of an event.
type Checkpoint struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (e Event) Checkpoint() Checkpoint {
	return Checkpoint{Topic: e.Topic, Partition: e.Partition, Offset: e.Offset}
}

// ContentType returns the payload media type from the headers, or "".
func (e Event) ContentType() string {
	for k, v := range e.Headers {
		if strings.EqualFold(k, HeaderContentType) {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}

// NewID returns a random event id.
func NewID() string { return uuid.NewString() }

// TopicMap resolves topics to event types and back.
type TopicMap struct {
	byTopic map[string]Type
	byType  map[Type]string
}

func NewTopicMap(t config.TopicConfig) TopicMap {
	m := TopicMap{byTopic: make(map[string]Type, 4), byType: make(map[Type]string, 4)}
	for _, p := range []struct {
		topic string
		typ   Type
	}{
		{t.UserEvents, User},
		{t.OrderEvents, Order},
		{t.NotificationEvents, Notification},
		{t.AuditEvents, Audit},
	} {
		if p.topic == "" {
			continue
		}
		m.byTopic[p.topic] = p.typ
		m.byType[p.typ] = p.topic
	}
	return m
}

// TypeOf returns Unknown for topics not in the map.
func (m TopicMap) TypeOf(topic string) Type {
	if t, ok := m.byTopic[topic]; ok {
		return t
	}
	return Unknown
}

func (m TopicMap) TopicOf(t Type) (string, bool) {
	topic, ok := m.byType[t]
	return topic, ok
}

// Topics returns the mapped topics in type order.
func (m TopicMap) Topics() []string {
	out := make([]string, 0, len(m.byType))
	for _, t := range Types() {
		if topic, ok := m.byType[t]; ok {
			out = append(out, topic)
		}
	}
	return out
}
