// Package eventBusTypes defines the types used by the eventBus package.
package eventBusTypes

import (
	"context"
	"sync"
	"time"
)

// EventName is a string type that identifies different types of events.
type EventName string

// String returns the string representation of the EventName.
func (en *EventName) String() string {
	return string(*en)
}

var (
	// Event_SyncCompleted is emitted after every sync pass that acquired the lock.
	Event_SyncCompleted EventName = "sync_completed"
	// Event_ListingsCleared is emitted after the projection has been wiped.
	Event_ListingsCleared EventName = "listings_cleared"
)

// Event represents a message that is published to the event bus.
type Event struct {
	Name EventName
	Data any
}

type ConsumerId string

// Consumer represents a subscriber to the event bus.
type Consumer struct {
	Id      ConsumerId
	Context context.Context
	Channel chan *Event
}

// ConsumerList is a thread-safe collection of consumers.
type ConsumerList struct {
	mu        sync.Mutex
	consumers []*Consumer
}

func NewConsumerList() *ConsumerList {
	return &ConsumerList{
		consumers: make([]*Consumer, 0),
	}
}

func (cl *ConsumerList) Add(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.consumers = append(cl.consumers, consumer)
}

// Remove removes a consumer by its ID.
func (cl *ConsumerList) Remove(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for i, c := range cl.consumers {
		if c.Id == consumer.Id {
			cl.consumers = append(cl.consumers[:i], cl.consumers[i+1:]...)
			break
		}
	}
}

// GetAll returns a copy of all consumers.
func (cl *ConsumerList) GetAll() []*Consumer {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]*Consumer, len(cl.consumers))
	copy(out, cl.consumers)
	return out
}

type IEventBus interface {
	Subscribe(consumer *Consumer)
	Unsubscribe(consumer *Consumer)
	Publish(event *Event)
}

// SyncCompletedData is the payload of Event_SyncCompleted.
type SyncCompletedData struct {
	Status      string
	Scanned     uint64
	From        uint64
	To          uint64
	SafeTip     uint64
	Applied     int
	Error       string
	CompletedAt time.Time
}
