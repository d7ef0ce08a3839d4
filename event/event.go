// Copyright 2026 Merito Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EventQueueSize is the buffer size of per-subscriber event channels
const EventQueueSize = 20

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// EventBus is a simple in-process pub/sub bus. It decouples the decision
// half of the contribution state machine from its effects: the vote path
// commits a status transition and publishes an event, and the on-chain
// publisher consumes it separately.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]chan Event
	metrics     *eventMetrics
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// NewEventBus creates a new EventBus
func NewEventBus(promRegistry prometheus.Registerer) *EventBus {
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]chan Event),
	}
	if promRegistry != nil {
		e.initMetrics(promRegistry)
	}
	return e
}

// Subscribe allows a consumer to receive events of a particular type via a channel
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]chan Event)
	}
	evtCh := make(chan Event, EventQueueSize)
	e.subscribers[eventType][subId] = evtCh
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, evtCh
}

// SubscribeFunc allows a consumer to receive events of a particular type via a callback function
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			evt, ok := <-evtCh
			if !ok {
				return
			}
			handlerFunc(evt)
		}
	}()
	return subId
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if evtTypeSubs, ok := e.subscribers[eventType]; ok {
		if evtCh, ok2 := evtTypeSubs[subId]; ok2 {
			delete(evtTypeSubs, subId)
			if len(evtTypeSubs) == 0 {
				delete(e.subscribers, eventType)
			}
			close(evtCh)
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType)).
					Dec()
			}
		}
	}
}

// Publish allows a producer to send an event of a particular type to all subscribers
func (e *EventBus) Publish(eventType EventType, evt Event) {
	// Gather channels inside the read lock to avoid a map race
	e.mu.RLock()
	subs := e.subscribers[eventType]
	chans := make([]chan Event, 0, len(subs))
	for _, evtCh := range subs {
		chans = append(chans, evtCh)
	}
	e.mu.RUnlock()
	for _, evtCh := range chans {
		evtCh <- evt
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// Stop closes all subscriber channels and waits for handler goroutines to
// drain
func (e *EventBus) Stop() {
	e.mu.Lock()
	for eventType, evtTypeSubs := range e.subscribers {
		for subId, evtCh := range evtTypeSubs {
			delete(evtTypeSubs, subId)
			close(evtCh)
		}
		delete(e.subscribers, eventType)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
