// Package audit delivers activity events to the store without blocking the
// operations that emit them.
//
// Delivery is best-effort by design: events ride a buffered channel to a
// single writer goroutine, a full buffer drops the event with a log line,
// and events still buffered when the process dies are lost. Callers never
// wait on audit delivery and a mutation's success is never contingent on
// it.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/notedrive/notedrive/pkg/models"
)

const (
	// DefaultBuffer is the event channel capacity used when NewRecorder
	// is given a non-positive size.
	DefaultBuffer = 256

	writeTimeout = 5 * time.Second
)

// Sink persists activity entries. Store implementations satisfy it.
type Sink interface {
	CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error
}

// Event describes one auditable action. PreviousValues carries the state
// needed to revert the action later; ContentSnapshot carries restorable
// content for operations that replace it wholesale.
type Event struct {
	Operation       models.ActivityOperation
	ResourceType    models.ResourceType
	ResourceID      string
	DriveID         *models.DriveID
	PageID          *models.PageID
	ActorID         models.UserID
	IsAIGenerated   bool
	ActorMetadata   models.JSONMap
	PreviousValues  models.JSONMap
	ContentSnapshot models.JSONMap
}

// Recorder accepts events and writes them to the sink from a single
// background goroutine.
type Recorder struct {
	sink   Sink
	events chan Event
	done   chan struct{}
	log    zerolog.Logger
	once   sync.Once
}

// NewRecorder starts the writer goroutine. Call Close during shutdown to
// drain events already accepted.
func NewRecorder(sink Sink, buffer int, log zerolog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	r := &Recorder{
		sink:   sink,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		log:    log,
	}
	go r.run()
	return r
}

// Record enqueues an event and returns immediately. If the buffer is full
// the event is dropped and logged. Record must not be called after Close.
func (r *Recorder) Record(event Event) {
	select {
	case r.events <- event:
	default:
		r.log.Warn().
			Str("operation", string(event.Operation)).
			Str("resource_type", string(event.ResourceType)).
			Str("resource_id", event.ResourceID).
			Msg("audit buffer full, dropping event")
	}
}

// Close stops accepting events, waits for the buffered ones to be written,
// and stops the writer goroutine.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.events)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.events {
		r.write(event)
	}
}

func (r *Recorder) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	entry := &models.ActivityLog{
		Operation:       event.Operation,
		ResourceType:    event.ResourceType,
		ResourceID:      event.ResourceID,
		DriveID:         event.DriveID,
		PageID:          event.PageID,
		UserID:          event.ActorID,
		IsAIGenerated:   event.IsAIGenerated,
		ActorMetadata:   event.ActorMetadata,
		PreviousValues:  event.PreviousValues,
		ContentSnapshot: event.ContentSnapshot,
	}
	if err := r.sink.CreateActivityLog(ctx, entry); err != nil {
		r.log.Error().Err(err).
			Str("operation", string(event.Operation)).
			Str("resource_id", event.ResourceID).
			Msg("writing audit entry")
	}
}
