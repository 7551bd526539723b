package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedrive/notedrive/pkg/models"
)

type captureSink struct {
	mu      sync.Mutex
	entries []*models.ActivityLog
	err     error
}

func (s *captureSink) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.err
}

func (s *captureSink) all() []*models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ActivityLog(nil), s.entries...)
}

// blockingSink holds every write until release is closed, so tests can
// fill the recorder's buffer deterministically.
type blockingSink struct {
	captureSink
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) CreateActivityLog(ctx context.Context, entry *models.ActivityLog) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.captureSink.CreateActivityLog(ctx, entry)
}

func TestRecorderDeliversEvents(t *testing.T) {
	sink := &captureSink{}
	recorder := NewRecorder(sink, 0, zerolog.Nop())

	actorID := models.NewUserID()
	driveID := models.NewDriveID()
	pageID := models.NewPageID()

	recorder.Record(Event{
		Operation:      models.OpUpdate,
		ResourceType:   models.ResourceTypePage,
		ResourceID:     pageID.String(),
		DriveID:        &driveID,
		PageID:         &pageID,
		ActorID:        actorID,
		IsAIGenerated:  true,
		PreviousValues: models.JSONMap{"title": "Old title"},
	})
	recorder.Record(Event{
		Operation:    models.OpDelete,
		ResourceType: models.ResourceTypeDrive,
		ResourceID:   driveID.String(),
		ActorID:      actorID,
	})
	recorder.Close()

	entries := sink.all()
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, models.OpUpdate, first.Operation)
	assert.Equal(t, models.ResourceTypePage, first.ResourceType)
	assert.Equal(t, pageID.String(), first.ResourceID)
	require.NotNil(t, first.DriveID)
	assert.Equal(t, driveID, *first.DriveID)
	require.NotNil(t, first.PageID)
	assert.Equal(t, pageID, *first.PageID)
	assert.Equal(t, actorID, first.UserID)
	assert.True(t, first.IsAIGenerated)
	assert.Equal(t, "Old title", first.PreviousValues["title"])

	assert.Equal(t, models.OpDelete, entries[1].Operation)
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	sink := &blockingSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	recorder := NewRecorder(sink, 1, zerolog.Nop())

	event := Event{
		Operation:    models.OpCreate,
		ResourceType: models.ResourceTypePage,
		ActorID:      models.NewUserID(),
	}

	// The writer takes the first event and blocks inside the sink.
	recorder.Record(event)
	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("writer never picked up the first event")
	}

	// The second fills the buffer; the third has nowhere to go.
	recorder.Record(event)
	recorder.Record(event)

	close(sink.release)
	recorder.Close()

	assert.Len(t, sink.all(), 2)
}

func TestRecorderSinkErrors(t *testing.T) {
	sink := &captureSink{err: errors.New("connection refused")}
	recorder := NewRecorder(sink, 4, zerolog.Nop())

	recorder.Record(Event{
		Operation:    models.OpCreate,
		ResourceType: models.ResourceTypeUser,
		ActorID:      models.NewUserID(),
	})
	recorder.Close()

	// A failing sink is logged, not propagated; the writer keeps running.
	assert.Len(t, sink.all(), 1)
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	recorder := NewRecorder(&captureSink{}, 4, zerolog.Nop())
	recorder.Close()
	assert.NotPanics(t, recorder.Close)
}
