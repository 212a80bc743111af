package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/search"
)

const (
	RealtimeEventNoteChanged   = "note-change"
	RealtimeEventSearchChanged = "search-change"
	realtimeEventHeartbeat     = "heartbeat"
	realtimeSourceBackend      = "lumina-backend"
)

// RealtimeMessage is one server-sent event fanned out to every stream subscriber.
type RealtimeMessage struct {
	EventType string
	NoteIDs   []string
	Search    *search.Snapshot
	Timestamp time.Time
}

// RealtimeDispatcher broadcasts store and search changes to connected streams.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that lives until ctx is cancelled or cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every subscriber; slow subscribers miss it.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = d.clock().UTC()
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// NoteListener publishes note-change events for applied store mutations.
func (d *RealtimeDispatcher) NoteListener() notes.ChangeListener {
	return func(change notes.Change) {
		ids := make([]string, 0, len(change.NoteIDs))
		for _, id := range change.NoteIDs {
			ids = append(ids, id.String())
		}
		d.Publish(RealtimeMessage{EventType: RealtimeEventNoteChanged, NoteIDs: ids})
	}
}

// SearchListener publishes search-change events for dispatcher state changes.
func (d *RealtimeDispatcher) SearchListener() search.Listener {
	return func(snapshot search.Snapshot) {
		d.Publish(RealtimeMessage{EventType: RealtimeEventSearchChanged, Search: &snapshot})
	}
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
