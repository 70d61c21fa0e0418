package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/nounimaging/internal/logging"
)

const (
	DefaultStep      = 0.01
	DefaultHeartbeat = 15 * time.Second
)

// Options configures an Emitter.
type Options struct {
	// Step is the minimum fraction advance that emits between boundaries.
	Step float64

	// Heartbeat is the keep-alive interval; zero selects DefaultHeartbeat,
	// a negative value disables it.
	Heartbeat time.Duration

	Logger *slog.Logger
}

// Emitter throttles progress onto a Sink and guarantees a single terminal
// event. Fractions sent to the sink never decrease.
type Emitter struct {
	sink   Sink
	step   float64
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	stage   string
	last    float64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewEmitter creates an Emitter and starts its heartbeat.
func NewEmitter(sink Sink, opts Options) *Emitter {
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.Heartbeat == 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	e := &Emitter{
		sink:   sink,
		step:   opts.Step,
		logger: opts.Logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if opts.Heartbeat > 0 {
		go e.heartbeat(opts.Heartbeat)
	} else {
		close(e.done)
	}
	return e
}

func (e *Emitter) heartbeat(interval time.Duration) {
	defer close(e.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.sink.Heartbeat(); err != nil {
				e.logger.Debug("heartbeat failed", "error", err)
			}
		case <-e.stop:
			return
		}
	}
}

// Update forwards u when the stage changed, u is a boundary, or the fraction
// advanced by at least the configured step since the last emitted event.
// It reports whether an event was sent.
func (e *Emitter) Update(u Update) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}

	if u.Fraction < e.last {
		u.Fraction = e.last
	}
	if u.Fraction > 1 {
		u.Fraction = 1
	}

	stageChanged := !e.started || u.Stage != e.stage
	advanced := u.Fraction-e.last >= e.step-1e-9
	if !stageChanged && !u.Boundary && !advanced {
		return false
	}

	if err := e.sink.Send(Event{Kind: KindProgress, Data: u.Progress}); err != nil {
		e.logger.Debug("progress send failed", "error", err)
		return false
	}
	e.started = true
	e.stage = u.Stage
	e.last = u.Fraction
	return true
}

// Complete sends the terminal complete event and closes the emitter.
func (e *Emitter) Complete(report any) error {
	return e.finish(Event{Kind: KindComplete, Data: report})
}

// Fail sends the terminal error event and closes the emitter.
func (e *Emitter) Fail(payload ErrorPayload) error {
	return e.finish(Event{Kind: KindError, Data: payload})
}

func (e *Emitter) finish(ev Event) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	err := e.sink.Send(ev)
	e.mu.Unlock()

	e.stopHeartbeat()
	return err
}

// Close stops the heartbeat without a terminal event. Later sends are dropped.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.stopHeartbeat()
}

func (e *Emitter) stopHeartbeat() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}
