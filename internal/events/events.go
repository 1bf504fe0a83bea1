// Package events publishes domain events about accounts, jobs and
// applications to the configured message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jobhub/apiserver/internal/mq"
	"github.com/sirupsen/logrus"
)

// Type names a domain event.
type Type string

const (
	ApplicationCreated       Type = "application.created"
	ApplicationUpdated       Type = "application.updated"
	ApplicationStatusChanged Type = "application.status_changed"
	ApplicationWithdrawn     Type = "application.withdrawn"
	JobCreated               Type = "job.created"
	JobDeleted               Type = "job.deleted"
	CategoryDeleted          Type = "category.deleted"
	UserRegistered           Type = "user.registered"
)

// Event is the JSON payload sent to the broker.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	ActorID    int               `json:"actor_id"`
	ResourceID int               `json:"resource_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType Type, actorID, resourceID int, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		ActorID:    actorID,
		ResourceID: resourceID,
		Attributes: attrs,
	}
}

// Publisher delivers events. Delivery failures never reach the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Broker publishes events as JSON onto one MQ channel.
type Broker struct {
	mq      *mq.MQ
	channel string
	logger  logrus.FieldLogger
}

func NewBroker(queue *mq.MQ, channel string, logger logrus.FieldLogger) *Broker {
	return &Broker{mq: queue, channel: channel, logger: logger}
}

// Publish sends the event and logs the outcome.
func (b *Broker) Publish(ctx context.Context, event Event) {
	entry := b.logger.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"event_type":  event.Type,
		"resource_id": event.ResourceID,
		"channel":     b.channel,
	})

	data, err := json.Marshal(event)
	if err != nil {
		entry.WithError(err).Error("failed to encode event")
		return
	}

	attrs := map[string]string{
		"content_type": "application/json",
		"event_type":   string(event.Type),
		"actor_id":     strconv.Itoa(event.ActorID),

		mq.AttrOrderingKey: orderingKey(event),
	}
	messageID, err := b.mq.Publish(ctx, b.channel, data, attrs)
	if err != nil {
		entry.WithError(err).Error("failed to publish event")
		return
	}
	entry.WithField("message_id", messageID).Debug("event published")
}

// orderingKey groups events about the same resource, e.g. "application:42".
func orderingKey(event Event) string {
	kind, _, _ := strings.Cut(string(event.Type), ".")
	return kind + ":" + strconv.Itoa(event.ResourceID)
}

// Decode parses a broker message published by Broker.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("decode event %s: missing type", msg.ID)
	}
	return event, nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}
