package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"btd/internal/domain"
	"btd/internal/domain/ports"
	"btd/internal/metrics"
)

// defaultPollInterval bounds how long the actor waits for a command before
// it drains engine alerts again.
const defaultPollInterval = 500 * time.Millisecond

var ErrCommandPanicked = errors.New("command panicked")

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ConfigLoader reads the engine config at path. On error it is expected to
// return the defaults alongside the error.
type ConfigLoader func(path string) (domain.EngineConfig, error)

type Option func(*Actor)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Actor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAlertSink registers fn to receive every drained engine alert. fn runs
// on the actor goroutine and must not block or call back into the actor.
func WithAlertSink(fn func(domain.Alert)) Option {
	return func(a *Actor) {
		a.alertSink = fn
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(a *Actor) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

func WithConfigLoader(load ConfigLoader) Option {
	return func(a *Actor) {
		if load != nil {
			a.loadConfig = load
		}
	}
}

// Actor owns a torrent engine and runs every operation against it on a
// single goroutine, one command at a time, in submission order.
type Actor struct {
	newEngine    ports.EngineFactory
	loadConfig   ConfigLoader
	logger       *slog.Logger
	alertSink    func(domain.Alert)
	pollInterval time.Duration
	tracer       trace.Tracer

	lifecycle sync.Mutex // serializes Start and Shutdown

	mu     sync.Mutex
	state  State
	queue  commandQueue
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	config domain.EngineConfig

	// Owned by the actor goroutine.
	engine   ports.Engine
	registry *Registry
}

func New(factory ports.EngineFactory, opts ...Option) *Actor {
	a := &Actor{
		newEngine:    factory,
		loadConfig:   defaultConfig,
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		tracer:       otel.Tracer("btd/actor"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func defaultConfig(string) (domain.EngineConfig, error) {
	return domain.DefaultEngineConfig(), nil
}

func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Config returns the engine config the running actor was started with.
func (a *Actor) Config() domain.EngineConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

func (a *Actor) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Start loads the engine config from configPath and starts the actor
// goroutine, which builds the engine. It returns once the engine is up or
// has failed to build. Starting a running actor is a no-op.
func (a *Actor) Start(ctx context.Context, configPath string) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	if a.State() == StateRunning {
		return nil
	}
	_, span := a.tracer.Start(ctx, "actor.start")
	defer span.End()
	a.setState(StateStarting)

	cfg, err := a.loadConfig(configPath)
	if err != nil {
		a.logger.Warn("engine config load failed, using defaults",
			slog.String("path", configPath),
			slog.String("error", err.Error()),
		)
		cfg = domain.DefaultEngineConfig()
	}
	if !cfg.Enabled {
		a.setState(StateStopped)
		span.SetStatus(codes.Error, domain.ErrEngineDisabled.Error())
		return domain.ErrEngineDisabled
	}

	a.mu.Lock()
	a.wake = make(chan struct{}, 1)
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.config = cfg
	done := a.done
	a.mu.Unlock()

	ready := make(chan error, 1)
	go a.run(cfg, ready)
	if err := <-ready; err != nil {
		<-done
		a.setState(StateStopped)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return wrapEngine(err)
	}

	a.logger.Info("session actor started",
		slog.Int("listenStart", cfg.ListenPortStart),
		slog.Int("listenEnd", cfg.ListenPortEnd),
		slog.Bool("dht", cfg.DHTEnabled),
		slog.Int("dhtNodes", len(cfg.DHTBootstrapNodes)),
	)
	return nil
}

// Shutdown stops the actor and waits until the engine is closed. Commands
// still queued fail with domain.ErrQueueClosed. Shutdown of a stopped actor
// is a no-op. It must not be called from the alert sink.
func (a *Actor) Shutdown() {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return
	}
	a.state = StateStopping
	close(a.stop)
	done := a.done
	a.mu.Unlock()

	<-done
	a.setState(StateStopped)
	a.logger.Info("session actor stopped")
}

func (a *Actor) run(cfg domain.EngineConfig, ready chan<- error) {
	defer close(a.done)

	engine, err := a.newEngine(cfg)
	if err == nil && engine == nil {
		err = errors.New("engine factory returned nil")
	}
	if err != nil {
		ready <- err
		return
	}
	a.engine = engine
	a.registry = newRegistry()
	metrics.ActiveTorrents.Set(0)
	a.setState(StateRunning)
	ready <- nil

	for {
		cmd, ok := a.next()
		if !ok {
			break
		}
		if cmd != nil {
			a.execute(cmd)
		}
		a.drainAlerts()
	}
	a.teardown()
}

// next returns the oldest queued command, waiting up to the poll interval
// for one. A nil command with ok set means the wait timed out.
func (a *Actor) next() (*Command, bool) {
	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return nil, false
	}
	if cmd := a.queue.pop(); cmd != nil {
		a.mu.Unlock()
		return cmd, true
	}
	a.mu.Unlock()

	timer := time.NewTimer(a.pollInterval)
	defer timer.Stop()
	select {
	case <-a.wake:
	case <-a.stop:
	case <-timer.C:
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRunning {
		return nil, false
	}
	return a.queue.pop(), true
}

func (a *Actor) teardown() {
	a.mu.Lock()
	pending := a.queue.drain()
	a.mu.Unlock()
	for _, cmd := range pending {
		metrics.ActorCommandsTotal.WithLabelValues(cmd.Kind.String(), "closed").Inc()
		cmd.complete(Result{Err: domain.ErrQueueClosed})
	}
	if len(pending) > 0 {
		a.logger.Warn("pending commands rejected at shutdown", slog.Int("count", len(pending)))
	}

	a.drainAlerts()
	if err := a.engine.Close(); err != nil {
		a.logger.Warn("engine close error", slog.String("error", err.Error()))
	}
	a.engine = nil
	a.registry = nil
	metrics.ActiveTorrents.Set(0)
	metrics.ActorQueueDepth.Set(0)
}

// submit hands cmd to the actor and blocks until it has run. It fails
// without blocking when the actor is not running. ctx only carries trace
// context; cancelling it does not abandon the wait.
func (a *Actor) submit(ctx context.Context, c Command) Result {
	cmd := newCommand(ctx, c)

	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return Result{Err: domain.ErrQueueClosed}
	}
	a.queue.push(cmd)
	depth := a.queue.len()
	wake := a.wake
	a.mu.Unlock()

	metrics.ActorQueueDepth.Set(float64(depth))
	select {
	case wake <- struct{}{}:
	default:
	}

	<-cmd.done
	return cmd.result
}

func (a *Actor) execute(cmd *Command) {
	kind := cmd.Kind.String()
	_, span := a.tracer.Start(cmd.ctx, "actor."+kind,
		trace.WithAttributes(attribute.String("torrent.id", string(cmd.ID))),
	)
	start := time.Now()

	res := a.apply(cmd)

	elapsed := time.Since(start)
	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	span.End()

	metrics.ActorCommandsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.ActorCommandDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	metrics.ActiveTorrents.Set(float64(a.registry.Len()))
	a.mu.Lock()
	depth := a.queue.len()
	a.mu.Unlock()
	metrics.ActorQueueDepth.Set(float64(depth))

	attrs := []any{
		slog.String("kind", kind),
		slog.Int64("durationMs", elapsed.Milliseconds()),
	}
	if id := res.ID; id != "" {
		attrs = append(attrs, slog.String("torrentId", string(id)))
	} else if cmd.ID != "" {
		attrs = append(attrs, slog.String("torrentId", string(cmd.ID)))
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("error", res.Err.Error()))
	}
	a.logger.Debug("command executed", attrs...)

	cmd.complete(res)
}

func (a *Actor) apply(cmd *Command) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("command panic recovered",
				slog.String("kind", cmd.Kind.String()),
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = Result{Err: fmt.Errorf("%w: %v", ErrCommandPanicked, r)}
		}
	}()

	switch cmd.Kind {
	case KindAddMagnet:
		return a.addMagnet(cmd)
	case KindAddTorrentFile:
		return a.addTorrentFile(cmd)
	case KindSeedFolder:
		return a.seedFolder(cmd)
	case KindPause:
		return a.pause(cmd)
	case KindResume:
		return a.resume(cmd)
	case KindRemove:
		return a.remove(cmd)
	case KindStatus:
		return a.status(cmd)
	case KindList:
		return Result{IDs: a.registry.IDs()}
	default:
		return Result{Err: fmt.Errorf("unknown command kind %d", cmd.Kind)}
	}
}

func (a *Actor) drainAlerts() {
	for _, alert := range a.engine.PopAlerts() {
		metrics.EngineAlertsTotal.WithLabelValues(string(alert.Kind)).Inc()
		a.logger.Debug("engine alert",
			slog.String("kind", string(alert.Kind)),
			slog.String("torrentId", string(alert.TorrentID)),
			slog.String("message", alert.Message),
		)
		if a.alertSink != nil {
			a.alertSink(alert)
		}
	}
}

func wrapEngine(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrEngine, err)
}
