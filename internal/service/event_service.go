package service

import (
	"context"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/pkg/logger"
	"github.com/GoPolymarket/polyfactory/internal/pkg/metrics"
	"github.com/google/uuid"
)

// EventRepo persists the domain event log.
type EventRepo interface {
	Insert(ctx context.Context, e model.Event) error
	List(ctx context.Context, filter model.EventFilter) ([]model.Event, error)
}

// EventSink receives every event after it has been stamped, e.g. a pub/sub
// bus or the websocket hub.
type EventSink interface {
	Publish(ctx context.Context, e model.Event) error
}

// EventService is the Notifier wired into the ledger, the factory and every
// market. Notify is called under entity locks so it only stamps the event and
// hands it to a background consumer.
type EventService struct {
	events chan model.Event
	recent *ring[model.Event]
	repo   EventRepo
	sinks  []EventSink
	now    func() time.Time
	done   chan struct{}
}

func NewEventService(repo EventRepo, bufferSize, ringSize int, sinks ...EventSink) *EventService {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	s := &EventService{
		events: make(chan model.Event, bufferSize),
		recent: newRing[model.Event](ringSize),
		repo:   repo,
		sinks:  sinks,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go s.consume()
	return s
}

func (s *EventService) Notify(e model.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.recent.Add(e)
	select {
	case s.events <- e:
	default:
		metrics.EventsDropped.Inc()
		logger.Warn("event buffer full, dropping event", "type", e.Type, "entity", e.Entity)
	}
}

func (s *EventService) consume() {
	defer close(s.done)
	log := logger.With("component", "events")
	for e := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if s.repo != nil {
			if err := s.repo.Insert(ctx, e); err != nil {
				log.Error("persist event failed", "id", e.ID, "type", e.Type, "error", err)
			}
		}
		for _, sink := range s.sinks {
			if err := sink.Publish(ctx, e); err != nil {
				log.Warn("publish event failed", "id", e.ID, "type", e.Type, "error", err)
			}
		}
		cancel()
	}
}

// List reads from the repo, falling back to the in-memory ring.
func (s *EventService) List(ctx context.Context, filter model.EventFilter) ([]model.Event, error) {
	if s.repo != nil {
		events, err := s.repo.List(ctx, filter)
		if err == nil {
			return events, nil
		}
		logger.LogError(ctx, err, "event repo list failed, serving from memory")
	}
	return s.recent.List(filter.Limit, filter.Matches), nil
}

// Close drains queued events.
func (s *EventService) Close() {
	close(s.events)
	<-s.done
}
