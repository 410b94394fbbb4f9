package interfaces

import (
	"context"

	"github.com/aware88/fresh-ai-crm-sub016/internal/enum"
)

type EventPublisher interface {
	PublishDirectEvent(ctx context.Context, entityId string, entityType enum.EntityType, eventType string, message interface{}) error
	Close() error
}

type EventListener interface {
	Handle(ctx context.Context, event any) error
	GetEventType() string
	GetQueueName() string
}

type EventSubscriber interface {
	RegisterListener(listener EventListener)
	ListenQueue(queueName string) error
	Close() error
}
