// Package event provides the pub/sub event sink that carries PTY output,
// continuation/synthesis progress, and workspace state changes from the
// Supervisor out to the UI, using watermill as transport.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType represents the type of event.
type EventType string

const (
	PtyData                EventType = "pty.data"
	PtyExit                EventType = "pty.exit"
	ContinuationIteration  EventType = "continuation.iteration"
	ContinuationDone       EventType = "continuation.done"
	ContinuationMaxReached EventType = "continuation.max_reached"
	ContinuationCancelled  EventType = "continuation.cancelled"
	SynthesisProgress      EventType = "synthesis.progress"
	SynthesisDone          EventType = "synthesis.done"
	WorkspaceOpened        EventType = "workspace.opened"
	SessionEnded           EventType = "session.ended"
	NotificationIdle       EventType = "notification.idle"
	NotificationExit       EventType = "notification.exit"
)

// Event represents an event to be published.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

// subscriberEntry wraps a subscriber with an ID.
type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// internalTopic is the single watermill topic every event is published to.
// One topic keeps delivery order total across all event types, which is
// what lets a pty.data chunk always reach a subscriber before the pty.exit
// that followed it in Publish order (spec's single-writer, serialized-
// delivery requirement).
const internalTopic = "forge.events"

// envelope is the wire payload carried by each watermill message: the
// event's type tag plus its JSON-marshaled, type-erased data.
type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Bus is the event bus. Publish marshals events onto a single watermill
// gochannel topic and a dedicated goroutine dispatches them to subscribers
// one at a time, in publish order; PublishSync bypasses the queue and
// calls subscribers directly in the caller's goroutine.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[EventType][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
	dispatchDone chan struct{}
}

// globalBus is the default event bus instance.
var globalBus = newBus()

// newBus creates a new event bus with its dispatch loop running.
func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 256,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[EventType][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
		dispatchDone: make(chan struct{}),
	}

	messages, err := b.pubsub.Subscribe(ctx, internalTopic)
	if err != nil {
		// gochannel only errors here if already closed, which a freshly
		// constructed GoChannel never is.
		panic(fmt.Sprintf("event: subscribe internal topic: %v", err))
	}
	go b.dispatchLoop(messages)

	return b
}

// dispatchLoop is the bus's single serialized delivery point: it drains
// messages in the order gochannel delivered them (which matches Publish
// call order on this topic) and calls every matching subscriber
// synchronously before moving to the next message.
func (b *Bus) dispatchLoop(messages <-chan *message.Message) {
	defer close(b.dispatchDone)
	for msg := range messages {
		var env envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			msg.Ack()
			continue
		}
		data, err := decodeEventData(env.Type, env.Data)
		if err != nil {
			msg.Ack()
			continue
		}
		b.deliver(Event{Type: env.Type, Data: data})
		msg.Ack()
	}
}

// deliver invokes every subscriber registered for ev.Type plus every
// global subscriber, synchronously, in the calling (dispatch) goroutine.
func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers[ev.Type])+len(b.global))
	for _, entry := range b.subscribers[ev.Type] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(ev)
	}
}

// newID generates a unique subscriber ID.
func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event type.
// Returns an unsubscribe function.
func Subscribe(eventType EventType, fn Subscriber) func() {
	return globalBus.Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, fn: fn}
	b.subscribers[eventType] = append(b.subscribers[eventType], entry)

	// Return unsubscribe function
	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func SubscribeAll(fn Subscriber) func() {
	return globalBus.SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	entry := subscriberEntry{id: id, fn: fn}
	b.global = append(b.global, entry)

	return func() {
		b.unsubscribeGlobal(id)
	}
}

// unsubscribe removes a subscriber for a specific event type.
func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// unsubscribeGlobal removes a global subscriber.
func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish enqueues an event for asynchronous, order-preserving delivery:
// it is marshaled onto the bus's single watermill topic and handed to
// subscribers by the dispatch loop, never from the caller's goroutine.
func Publish(event Event) {
	globalBus.Publish(event)
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	payload, err := json.Marshal(envelope{Type: ev.Type, Data: raw})
	if err != nil {
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	_ = b.pubsub.Publish(internalTopic, msg)
}

// PublishSync sends an event to all subscribers synchronously, bypassing
// the watermill queue entirely: all subscribers are called in the current
// goroutine before returning. Used where the caller needs delivery to have
// completed before proceeding (e.g. before writing to a PTY).
func PublishSync(event Event) {
	globalBus.PublishSync(event)
}

func (b *Bus) PublishSync(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}

	subs := make([]Subscriber, 0, len(b.subscribers[ev.Type])+len(b.global))
	for _, entry := range b.subscribers[ev.Type] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(ev)
	}
}

// NewBus creates a new event bus instance.
func NewBus() *Bus {
	return newBus()
}

// Reset clears all subscribers from the global bus (for testing).
func Reset() {
	old := globalBus

	old.mu.Lock()
	old.closed = true
	old.closedCancel()
	old.mu.Unlock()

	_ = old.pubsub.Close()
	<-old.dispatchDone

	globalBus = newBus()
}

// Close closes the bus, stops its dispatch loop, and drops all subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()

	b.subscribers = make(map[EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	err := b.pubsub.Close()
	<-b.dispatchDone
	return err
}

// PubSub returns the underlying watermill GoChannel this bus publishes to
// and dispatches from.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// PubSub returns the global bus's underlying watermill GoChannel.
func PubSub() *gochannel.GoChannel {
	return globalBus.PubSub()
}
