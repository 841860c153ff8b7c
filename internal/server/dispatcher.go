package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/voice-archive-bot/internal/dialog"
	"github.com/skypro1111/voice-archive-bot/internal/metrics"
)

// EventSource produces inbound events until ctx is done
type EventSource interface {
	Events(ctx context.Context) <-chan dialog.Event
}

// EventHandler processes one event
type EventHandler interface {
	Route(ctx context.Context, ev dialog.Event) error
}

// DispatcherConfig controls the per-user queues
type DispatcherConfig struct {
	MaxActiveUsers int // users with queued or running events
	QueueSize      int // per user
	EventTimeout   time.Duration
}

// Dispatcher gives every user with pending events a FIFO queue and a
// goroutine of its own. A user's events are handled in arrival order;
// different users never wait on each other. Idle queues are released.
type Dispatcher struct {
	config  DispatcherConfig
	logger  *slog.Logger
	handler EventHandler
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	recvWG sync.WaitGroup
	workWG sync.WaitGroup

	queues   map[int64]chan *incomingEvent
	stopped  bool
	stopOnce sync.Once

	eventsReceived  uint64
	eventsProcessed uint64
	eventErrors     uint64
	eventsDropped   uint64
	peakActiveUsers int
	mu              sync.RWMutex
}

// incomingEvent is a queued event with its arrival time
type incomingEvent struct {
	event     dialog.Event
	timestamp time.Time
}

// NewDispatcher creates a dispatcher; call Start to run it
func NewDispatcher(cfg DispatcherConfig, logger *slog.Logger, handler EventHandler, m *metrics.Metrics) (*Dispatcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("event handler is required")
	}
	if cfg.MaxActiveUsers < 1 {
		return nil, fmt.Errorf("max_active_users must be at least 1, got %d", cfg.MaxActiveUsers)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("queue_size must be at least 1, got %d", cfg.QueueSize)
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		config:  cfg,
		logger:  logger,
		handler: handler,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[int64]chan *incomingEvent),
	}, nil
}

// Start launches the receive loop when source is not nil. Events can also
// be fed directly with Submit.
func (d *Dispatcher) Start(source EventSource) {
	if source != nil {
		d.recvWG.Add(1)
		go d.receiveLoop(source)
	}

	d.logger.Info("Dispatcher started",
		slog.Int("max_active_users", d.config.MaxActiveUsers),
		slog.Int("queue_size", d.config.QueueSize),
		slog.Duration("event_timeout", d.config.EventTimeout),
	)
}

// Stop stops receiving, lets every user queue drain and waits for them
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("Stopping dispatcher...")

		d.cancel()
		d.recvWG.Wait()

		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()

		d.workWG.Wait()

		stats := d.GetStatistics()
		d.logger.Info("Dispatcher stopped",
			slog.Uint64("events_received", stats.EventsReceived),
			slog.Uint64("events_processed", stats.EventsProcessed),
			slog.Uint64("event_errors", stats.EventErrors),
			slog.Uint64("events_dropped", stats.EventsDropped),
		)
	})
}

func (d *Dispatcher) receiveLoop(source EventSource) {
	defer d.recvWG.Done()

	events := source.Events(d.ctx)
	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("Receive loop stopping due to context cancellation")
			return
		case ev, ok := <-events:
			if !ok {
				d.logger.Info("Event source closed")
				return
			}
			d.Submit(ev)
		}
	}
}

// Submit queues an event on its user's queue, starting one if the user has
// none. It returns false when the dispatcher is stopped, the user's queue is
// full or too many users are active; the event is then dropped.
func (d *Dispatcher) Submit(ev dialog.Event) bool {
	if ev.TraceID == "" {
		ev.TraceID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.ctx.Err() != nil {
		return false
	}

	d.eventsReceived++

	queue, ok := d.queues[ev.UserID]
	if !ok {
		if len(d.queues) >= d.config.MaxActiveUsers {
			d.dropLocked(ev, "Too many active users, dropping event")
			return false
		}
		queue = make(chan *incomingEvent, d.config.QueueSize)
		d.queues[ev.UserID] = queue
		if len(d.queues) > d.peakActiveUsers {
			d.peakActiveUsers = len(d.queues)
		}
		d.workWG.Add(1)
		go d.userWorker(ev.UserID, queue)
	}

	select {
	case queue <- &incomingEvent{event: ev, timestamp: time.Now()}:
		d.metrics.SetQueueSize(d.queuedLocked())
		return true
	default:
		d.dropLocked(ev, "User queue full, dropping event")
		return false
	}
}

// dropLocked must be called with d.mu held
func (d *Dispatcher) dropLocked(ev dialog.Event, msg string) {
	d.eventsDropped++
	d.metrics.RecordDroppedUpdate()
	d.logger.Warn(msg,
		slog.Int64("user_id", ev.UserID),
		slog.String("kind", ev.Kind.String()),
		slog.String("trace_id", ev.TraceID),
	)
}

// userWorker handles one user's queue until it is empty, then releases it.
// Submit enqueues under d.mu, so an empty check under d.mu cannot lose an event.
func (d *Dispatcher) userWorker(userID int64, queue chan *incomingEvent) {
	defer d.workWG.Done()

	for {
		select {
		case item := <-queue:
			d.handleEvent(item)
			continue
		default:
		}

		d.mu.Lock()
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

// handleEvent runs one event with its own deadline, detached from shutdown
// so that queued events are still answered while draining
func (d *Dispatcher) handleEvent(item *incomingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.EventTimeout)
	defer cancel()

	ev := item.event
	start := time.Now()
	err := d.handler.Route(ctx, ev)
	elapsed := time.Since(start)

	d.mu.Lock()
	d.eventsProcessed++
	if err != nil {
		d.eventErrors++
	}
	d.metrics.SetQueueSize(d.queuedLocked())
	d.mu.Unlock()

	d.metrics.RecordEventProcessed(elapsed.Seconds(), err != nil)

	if err != nil {
		d.logger.Error("Failed to process event",
			slog.Int64("user_id", ev.UserID),
			slog.String("kind", ev.Kind.String()),
			slog.String("trace_id", ev.TraceID),
			slog.String("error", err.Error()),
		)
		return
	}

	d.logger.Debug("Event processed",
		slog.Int64("user_id", ev.UserID),
		slog.String("kind", ev.Kind.String()),
		slog.String("trace_id", ev.TraceID),
		slog.Duration("queued", start.Sub(item.timestamp)),
		slog.Duration("duration", elapsed),
	)
}

// queuedLocked must be called with d.mu held
func (d *Dispatcher) queuedLocked() int {
	n := 0
	for _, q := range d.queues {
		n += len(q)
	}
	return n
}

// GetStatistics returns current dispatcher statistics
func (d *Dispatcher) GetStatistics() DispatcherStatistics {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStatistics{
		EventsReceived:  d.eventsReceived,
		EventsProcessed: d.eventsProcessed,
		EventErrors:     d.eventErrors,
		EventsDropped:   d.eventsDropped,
		QueueSize:       uint64(d.queuedLocked()),
		ActiveUsers:     len(d.queues),
		PeakActiveUsers: d.peakActiveUsers,
		MaxActiveUsers:  d.config.MaxActiveUsers,
		UserQueueSize:   d.config.QueueSize,
	}
}

// DispatcherStatistics represents dispatcher throughput counters
type DispatcherStatistics struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsProcessed uint64 `json:"events_processed"`
	EventErrors     uint64 `json:"event_errors"`
	EventsDropped   uint64 `json:"events_dropped"`
	QueueSize       uint64 `json:"queue_size"`
	ActiveUsers     int    `json:"active_users"`
	PeakActiveUsers int    `json:"peak_active_users"`
	MaxActiveUsers  int    `json:"max_active_users"`
	UserQueueSize   int    `json:"user_queue_size"`
}
