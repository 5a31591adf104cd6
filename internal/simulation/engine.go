package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"routing-simulator/internal/summary"
	"routing-simulator/internal/types"
)

var validatorInstance = validator.New()

// Summarizer produces the natural language run summary.
type Summarizer interface {
	Summarize(ctx context.Context, req summary.Request) types.SummaryResult
}

// Options tunes the engine. A zero TickInterval disables the internal ticker;
// ticks must then be driven through Tick.
type Options struct {
	TickInterval   time.Duration
	MaxConcurrency int
	SummaryTimeout time.Duration
	Now            func() time.Time
	NewRunID       func() string
}

// Engine drives batches of simulated payments through a Runner and owns all
// run state. It is safe for concurrent use.
type Engine struct {
	connectors ConnectorSource
	runner     Runner
	summarizer Summarizer
	logger     *zap.Logger
	opts       Options

	mu        sync.Mutex
	observers []Observer
	session   types.SessionContext

	state            types.RunState
	stopping         bool
	inFlight         bool
	summaryAttempted bool
	runID            string
	generation       uint64
	cfg              types.SimulationConfig

	stats      Stats
	processed  int64
	dispatched int64
	sequence   int64
	log        []types.TransactionLogEntry
	srSeries   []types.TimeSeriesPoint
	volSeries  []types.TimeSeriesPoint
	summary    *types.SummaryResult

	batchCtx    context.Context
	batchCancel context.CancelFunc
	loopStop    chan struct{}

	summaryWG sync.WaitGroup
}

// NewEngine wires the engine. session may be empty and supplied later through SetSession.
func NewEngine(session types.SessionContext, connectors ConnectorSource, runner Runner, summarizer Summarizer, logger *zap.Logger, opts Options) *Engine {
	if opts.MaxConcurrency < 0 {
		opts.MaxConcurrency = 0
	}
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return ksuid.New().String() }
	}

	return &Engine{
		connectors: connectors,
		runner:     runner,
		summarizer: summarizer,
		logger:     logger,
		opts:       opts,
		session:    session,
		state:      types.StateIdle,
		stats:      NewStats(),
	}
}

// AddObserver registers an observer for all future events.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.observers = append(e.observers, o)
}

func (e *Engine) publish(events ...Event) {
	e.mu.Lock()
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			o.Observe(ev)
		}
	}
}

// Session returns the current credentials.
func (e *Engine) Session() types.SessionContext {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.session
}

// SetSession replaces the credentials. Only allowed while idle.
func (e *Engine) SetSession(session types.SessionContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != types.StateIdle {
		return fmt.Errorf("%w: session can only change while idle", ErrInvalidTransition)
	}
	e.session = session

	return nil
}

// ValidateConfig checks a simulation config against its constraints.
func ValidateConfig(cfg types.SimulationConfig) error {
	if err := validatorInstance.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Start begins a new run with cfg. All statistics are reset.
func (e *Engine) Start(ctx context.Context, cfg types.SimulationConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state != types.StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, e.state)
	}
	session := e.session
	e.mu.Unlock()

	if err := validatorInstance.Struct(session); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}

	if err := e.connectors.Load(ctx, session); err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnectors, err)
	}
	if e.connectors.Len() == 0 {
		return ErrNoConnectors
	}

	e.mu.Lock()
	if e.state != types.StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, e.state)
	}

	e.generation++
	e.runID = e.opts.NewRunID()
	e.cfg = cfg.Clone()
	e.stats = NewStats()
	e.processed = 0
	e.log = nil
	e.srSeries = nil
	e.volSeries = nil
	e.summary = nil
	e.summaryAttempted = false
	e.stopping = false
	e.state = types.StateRunning
	e.newBatchContextLocked()
	e.startLoopLocked()
	ev := e.stateEventLocked()
	e.mu.Unlock()

	e.logger.Info("simulation started",
		zap.String("run_id", ev.RunID),
		zap.Int("target", cfg.TargetTotal),
		zap.Int("batch_size", cfg.BatchSize))
	e.publish(ev)

	return nil
}

// Pause aborts the in-flight batch and keeps all statistics.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.state != types.StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, e.state)
	}

	e.stopping = true
	e.cancelLocked()
	e.state = types.StatePaused
	ev := e.stateEventLocked()
	e.mu.Unlock()

	e.logger.Info("simulation paused", zap.String("run_id", ev.RunID))
	e.publish(ev)

	return nil
}

// Resume continues a paused run without touching its statistics.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.state != types.StatePaused {
		e.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, e.state)
	}

	e.stopping = false
	e.state = types.StateRunning
	e.newBatchContextLocked()
	e.startLoopLocked()
	ev := e.stateEventLocked()
	e.mu.Unlock()

	e.logger.Info("simulation resumed", zap.String("run_id", ev.RunID))
	e.publish(ev)

	return nil
}

// Stop ends the run and requests the summary once if anything was logged.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != types.StateRunning && e.state != types.StatePaused {
		e.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, e.state)
	}

	e.stopping = true
	e.cancelLocked()
	e.state = types.StateIdle
	ev := e.stateEventLocked()
	req, summarize := e.beginSummaryLocked()
	e.mu.Unlock()

	e.logger.Info("simulation stopped", zap.String("run_id", ev.RunID), zap.Int64("processed", req.Processed))
	e.publish(ev)

	if summarize {
		e.requestSummary(ev.RunID, req)
	}

	return nil
}

// Tick runs one batch. It returns false without doing anything when the run
// is not running, is stopping, has nothing left or a batch is already in flight.
func (e *Engine) Tick() bool {
	e.mu.Lock()
	if e.stopping || e.state != types.StateRunning || e.inFlight {
		e.mu.Unlock()
		return false
	}

	remaining := int64(e.cfg.TargetTotal) - e.processed
	batch := min(int64(e.cfg.BatchSize), remaining)
	if batch <= 0 {
		e.mu.Unlock()
		return false
	}

	e.inFlight = true
	gen := e.generation
	ctx := e.batchCtx
	base := e.dispatched
	e.dispatched += batch
	attempt := Attempt{Session: e.session, Config: e.cfg}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	attempt.Eligible = e.connectors.Enabled()

	outcomes, err := e.dispatch(ctx, attempt, base, batch)

	e.commit(ctx, gen, outcomes, err)

	return true
}

// dispatch fans the batch out and returns the outcomes in completion order.
func (e *Engine) dispatch(ctx context.Context, attempt Attempt, base, batch int64) ([]types.PaymentOutcome, error) {
	results := make(chan types.PaymentOutcome, batch)

	var g errgroup.Group
	if e.opts.MaxConcurrency > 0 {
		g.SetLimit(e.opts.MaxConcurrency)
	}

	for i := int64(0); i < batch; i++ {
		a := attempt
		a.Index = base + i

		g.Go(func() error {
			outcome, err := e.runner.Run(ctx, a)
			if err != nil {
				if IsCancellation(err) {
					return err
				}

				e.logger.Warn("payment attempt failed", zap.Int64("index", a.Index), zap.Error(err))
				outcome = FailedOutcome("", types.RoutingUnknown, nil, e.opts.Now())
			}
			results <- outcome

			return nil
		})
	}

	err := g.Wait()
	close(results)

	outcomes := make([]types.PaymentOutcome, 0, batch)
	for o := range results {
		outcomes = append(outcomes, o)
	}

	return outcomes, err
}

// commit folds a finished batch into the run state. Cancelled or stale batches
// are dropped without touching anything.
func (e *Engine) commit(ctx context.Context, gen uint64, outcomes []types.PaymentOutcome, err error) {
	e.mu.Lock()

	if err != nil || ctx.Err() != nil || gen != e.generation || e.state != types.StateRunning {
		runID := e.runID
		e.mu.Unlock()
		e.logger.Debug("batch abandoned", zap.String("run_id", runID), zap.Int("completed", len(outcomes)))

		return
	}

	now := e.opts.Now()
	entries := make([]types.TransactionLogEntry, 0, len(outcomes))
	for i := range outcomes {
		e.sequence++

		entry := types.TransactionLogEntry{Timestamp: now, Status: "error", RoutingApproach: types.RoutingUnknown}
		if outcomes[i].Log != nil {
			entry = *outcomes[i].Log
		}
		entry.Sequence = e.sequence
		outcomes[i].Log = &entry
		entries = append(entries, entry)
	}

	e.log = append(e.log, entries...)
	e.stats = ApplyOutcomes(e.stats, outcomes)
	e.processed += int64(len(outcomes))

	sr, vol := DeriveSeriesPoints(now, e.stats)
	e.srSeries = append(e.srSeries, sr)
	e.volSeries = append(e.volSeries, vol)

	events := make([]Event, 0, 2)

	completed := e.processed >= int64(e.cfg.TargetTotal)
	if completed {
		e.state = types.StateIdle
		e.cancelLocked()
	}

	snap := e.snapshotLocked()
	events = append(events, Event{
		Type:     EventTick,
		RunID:    e.runID,
		State:    e.state,
		Snapshot: &snap,
		Entries:  entries,
		Outcomes: outcomes,
	})

	var (
		req       summary.Request
		summarize bool
	)
	if completed {
		events = append(events, e.stateEventLocked())
		req, summarize = e.beginSummaryLocked()
	}
	runID := e.runID
	e.mu.Unlock()

	e.publish(events...)

	if completed {
		e.logger.Info("simulation completed", zap.String("run_id", runID), zap.Int64("processed", snap.Processed))
	}
	if summarize {
		e.requestSummary(runID, req)
	}
}

// beginSummaryLocked claims the per-run summary slot.
func (e *Engine) beginSummaryLocked() (summary.Request, bool) {
	req := summary.Request{
		TargetTotal: e.cfg.TargetTotal,
		Processed:   e.processed,
	}
	if e.summaryAttempted || len(e.log) == 0 || e.summarizer == nil {
		return req, false
	}
	e.summaryAttempted = true
	e.summaryWG.Add(1)

	req.OverallSR = DeriveOverallSR(e.stats.Global)
	req.PerConnector = DeriveConnectorMetrics(e.stats, e.connectorName)
	req.Incidents = DeriveIncidents(e.cfg)
	req.TransactionLog = append([]types.TransactionLogEntry(nil), e.log...)

	return req, true
}

// requestSummary must only follow a successful beginSummaryLocked.
func (e *Engine) requestSummary(runID string, req summary.Request) {
	go func() {
		defer e.summaryWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.opts.SummaryTimeout)
		defer cancel()

		result := e.summarizer.Summarize(ctx, req)

		e.mu.Lock()
		if e.runID != runID {
			e.mu.Unlock()
			return
		}
		e.summary = &result
		state := e.state
		e.mu.Unlock()

		e.publish(Event{Type: EventSummary, RunID: runID, State: state, Summary: &result})
	}()
}

// WaitSummaries blocks until all pending summary requests have finished.
func (e *Engine) WaitSummaries() {
	e.summaryWG.Wait()
}

func (e *Engine) connectorName(id string) string {
	if c, ok := e.connectors.Lookup(id); ok {
		return c.DisplayName()
	}

	return ""
}

func (e *Engine) newBatchContextLocked() {
	e.batchCtx, e.batchCancel = context.WithCancel(context.Background())
}

// cancelLocked aborts in-flight work and stops the ticker.
func (e *Engine) cancelLocked() {
	if e.batchCancel != nil {
		e.batchCancel()
	}
	if e.loopStop != nil {
		close(e.loopStop)
		e.loopStop = nil
	}
}

func (e *Engine) startLoopLocked() {
	if e.opts.TickInterval <= 0 {
		return
	}

	stop := make(chan struct{})
	e.loopStop = stop

	go e.loop(stop)
}

func (e *Engine) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

func (e *Engine) stateEventLocked() Event {
	snap := e.snapshotLocked()

	return Event{Type: EventState, RunID: e.runID, State: e.state, Snapshot: &snap}
}

// Snapshot returns a consistent copy of the run state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		RunID:             e.runID,
		State:             e.state,
		Stopping:          e.stopping,
		InFlight:          e.inFlight,
		Target:            e.cfg.TargetTotal,
		Processed:         e.processed,
		Config:            e.cfg.Clone(),
		Connectors:        DeriveConnectorMetrics(e.stats, e.connectorName),
		Global:            e.stats.Global,
		OverallSR:         DeriveOverallSR(e.stats.Global),
		SuccessRateSeries: append([]types.TimeSeriesPoint(nil), e.srSeries...),
		VolumeSeries:      append([]types.TimeSeriesPoint(nil), e.volSeries...),
	}
	if e.summary != nil {
		s := *e.summary
		snap.Summary = &s
	}

	return snap
}

// Stats returns a copy of the accumulated statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stats.Clone()
}

// State returns the current run state.
func (e *Engine) State() types.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Log returns the last limit log entries of the current run, all when limit <= 0.
func (e *Engine) Log(limit int) []types.TransactionLogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.log
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	return append([]types.TransactionLogEntry(nil), entries...)
}

// Summary returns the summary of the current run, if one was produced.
func (e *Engine) Summary() (types.SummaryResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.summary == nil {
		return types.SummaryResult{}, false
	}

	return *e.summary, true
}
