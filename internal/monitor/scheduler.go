package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/calderhq/traderpulse/internal/domain"
)

// Bus channel and stream names for score events.
const (
	ChannelScores   = "scores"
	ChannelHeatmaps = "heatmaps"
	StreamScores    = "stream:scores"
)

// outageAlertThreshold is the number of consecutive cycles in which every
// entity failed before an operator alert fires.
const outageAlertThreshold = 3

// heatmapRefreshEvery is how many cycles elapse between full heatmap
// recompute broadcasts to watchers.
const heatmapRefreshEvery = 30

// Alerter receives operational alerts from the scheduler. Satisfied by
// notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SchedulerConfig holds the scheduler's construction parameters.
type SchedulerConfig struct {
	Entities []domain.EntityID
	Interval time.Duration
}

// Status is a point-in-time view of the scheduler's state.
type Status struct {
	Running     bool              `json:"running"`
	Interval    time.Duration     `json:"interval"`
	Entities    int               `json:"entities"`
	LastCycleAt time.Time         `json:"last_cycle_at"`
	Cycles      uint64            `json:"cycles"`
	LastFailed  []domain.EntityID `json:"last_failed,omitempty"`
}

// Scheduler drives the monitoring pipeline: on every tick it runs one
// fetch→score→store→broadcast pass over all tracked entities. Each Scheduler
// owns exactly one Fetcher, Scorer, HistoryStore, and dispatcher; there are
// no ambient singletons.
//
// Cycles never overlap: the ticker loop runs them sequentially and TriggerNow
// shares the same run mutex. Stop cancels future ticks but lets an in-flight
// cycle finish; individual fetches are bounded by the fetcher's own timeout.
type Scheduler struct {
	cfg        SchedulerConfig
	fetcher    *Fetcher
	scorer     *Scorer
	history    *HistoryStore
	dispatcher domain.ScoreDispatcher
	sink       domain.ScoreSink  // optional
	cache      domain.ScoreCache // optional
	bus        domain.SignalBus  // optional
	alerter    Alerter           // optional
	logger     *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	last     time.Time
	cycles   uint64
	failed   []domain.EntityID
	outages  int

	// runMu serializes cycle execution between the ticker loop and
	// TriggerNow.
	runMu sync.Mutex

	// prev holds the previous snapshot per entity for delta scoring. Written
	// only by the cycle pipeline, read concurrently by nothing else; kept
	// under prevMu for the ResetHistory path.
	prevMu sync.Mutex
	prev   map[domain.EntityID]domain.Snapshot
}

// NewScheduler wires a Scheduler from its owned components. dispatcher, sink,
// cache, bus, and alerter may be nil; the corresponding step is skipped.
func NewScheduler(
	cfg SchedulerConfig,
	fetcher *Fetcher,
	scorer *Scorer,
	history *HistoryStore,
	dispatcher domain.ScoreDispatcher,
	sink domain.ScoreSink,
	cache domain.ScoreCache,
	bus domain.SignalBus,
	alerter Alerter,
	logger *slog.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Scheduler{
		cfg:        cfg,
		fetcher:    fetcher,
		scorer:     scorer,
		history:    history,
		dispatcher: dispatcher,
		sink:       sink,
		cache:      cache,
		bus:        bus,
		alerter:    alerter,
		logger:     logger.With(slog.String("component", "scheduler")),
		prev:       make(map[domain.EntityID]domain.Snapshot),
	}
}

// Start begins the periodic loop: one cycle immediately, then one per
// interval. It is idempotent; calling Start while running logs and no-ops.
// The loop stops when Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "scheduler already running, start ignored")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "scheduler starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("entities", len(s.cfg.Entities)),
	)

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		// Run immediately, then on the ticker. Cycles use a context detached
		// from the loop so Stop does not preempt an in-flight pass; the
		// fetcher's per-entity timeout bounds every outstanding call.
		s.runCycle(context.WithoutCancel(loopCtx))

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				s.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.runCycle(context.WithoutCancel(loopCtx))
			}
		}
	}()
}

// Stop cancels the periodic timer. An in-flight cycle is allowed to finish.
// Stop is idempotent and blocks until the loop goroutine has exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Info("scheduler not running, stop ignored")
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Status reports the scheduler's current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make([]domain.EntityID, len(s.failed))
	copy(failed, s.failed)
	return Status{
		Running:     s.running,
		Interval:    s.cfg.Interval,
		Entities:    len(s.cfg.Entities),
		LastCycleAt: s.last,
		Cycles:      s.cycles,
		LastFailed:  failed,
	}
}

// TriggerNow runs a single cycle out-of-band, independent of the periodic
// timer. Safe to call whether or not the scheduler is running; the shared
// run mutex guarantees it never overlaps a ticker-driven cycle.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.runCycle(ctx)
}

// LatestScores returns the most recent score per entity from in-memory
// history.
func (s *Scheduler) LatestScores() map[domain.EntityID]domain.ActivityScore {
	return s.history.LatestAll()
}

// Heatmap builds the heatmap aggregate for one entity over the trailing
// window.
func (s *Scheduler) Heatmap(id domain.EntityID, hours int) domain.HeatmapAggregate {
	if hours <= 0 {
		hours = 24
	}
	return s.history.BuildHeatmap(id, time.Duration(hours)*time.Hour)
}

// ResetHistory clears all retained scores and previous snapshots. Intended
// for testing and operational use.
func (s *Scheduler) ResetHistory() {
	s.history.Reset()
	s.prevMu.Lock()
	s.prev = make(map[domain.EntityID]domain.Snapshot)
	s.prevMu.Unlock()
}

// runCycle executes one full fetch→score→store→broadcast pass. Any panic or
// error is contained here; a failed cycle never stops the periodic loop.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked", slog.Any("panic", r))
		}
	}()

	start := time.Now()
	result := s.fetcher.FetchAll(ctx, s.cfg.Entities)

	scores := make([]domain.ActivityScore, 0, len(result.Snapshots))
	for _, snap := range result.Snapshots {
		prev := s.previousFor(snap.EntityID)
		score := s.scorer.Calculate(snap, prev)
		s.setPrevious(snap)

		s.history.Append(score)
		s.persistScore(ctx, score)
		scores = append(scores, score)
	}

	if len(scores) > 0 {
		if s.dispatcher != nil {
			s.dispatcher.BroadcastScores(ctx, scores)
		}
		s.publishScores(ctx, scores)
	}

	cycle := s.finishCycle(ctx, result, time.Since(start))
	if cycle%heatmapRefreshEvery == 0 {
		s.RefreshHeatmaps(ctx)
	}
}

// previousFor returns the entity's previous snapshot, or nil on cold start.
func (s *Scheduler) previousFor(id domain.EntityID) *domain.Snapshot {
	s.prevMu.Lock()
	defer s.prevMu.Unlock()
	if snap, ok := s.prev[id]; ok {
		return &snap
	}
	return nil
}

// setPrevious atomically replaces the entity's previous snapshot after
// scoring.
func (s *Scheduler) setPrevious(snap domain.Snapshot) {
	s.prevMu.Lock()
	s.prev[snap.EntityID] = snap
	s.prevMu.Unlock()
}

// persistScore writes the score to the cache and durable sink. Both are
// best-effort: failures are logged and never touch in-memory state.
func (s *Scheduler) persistScore(ctx context.Context, score domain.ActivityScore) {
	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, score); err != nil {
			s.logger.WarnContext(ctx, "score cache write failed",
				slog.String("entity", string(score.EntityID)),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.sink != nil {
		if err := s.sink.InsertScore(ctx, score); err != nil {
			s.logger.WarnContext(ctx, "score sink write failed",
				slog.String("entity", string(score.EntityID)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// publishScores pushes score events onto the signal bus so relay processes
// and analytics consumers can follow along. Best-effort.
func (s *Scheduler) publishScores(ctx context.Context, scores []domain.ActivityScore) {
	if s.bus == nil {
		return
	}
	for _, score := range scores {
		payload, err := json.Marshal(score)
		if err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, ChannelScores, payload); err != nil {
			s.logger.WarnContext(ctx, "score publish failed",
				slog.String("entity", string(score.EntityID)),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, StreamScores, payload); err != nil {
			s.logger.WarnContext(ctx, "score stream append failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// RefreshHeatmaps recomputes the heatmap aggregate for every tracked entity
// and broadcasts the refresh to watchers over the same fan-out path as
// scores.
func (s *Scheduler) RefreshHeatmaps(ctx context.Context) {
	aggregates := make([]domain.HeatmapAggregate, 0, len(s.cfg.Entities))
	for _, id := range s.cfg.Entities {
		aggregates = append(aggregates, s.history.BuildHeatmap(id, s.history.cfg.Retention))
	}
	if len(aggregates) == 0 {
		return
	}
	if s.dispatcher != nil {
		s.dispatcher.BroadcastHeatmaps(ctx, aggregates)
	}

	if s.bus != nil {
		for _, agg := range aggregates {
			payload, err := json.Marshal(agg)
			if err != nil {
				continue
			}
			if err := s.bus.Publish(ctx, ChannelHeatmaps, payload); err != nil {
				s.logger.WarnContext(ctx, "heatmap publish failed",
					slog.String("entity", string(agg.EntityID)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// finishCycle records bookkeeping and fires the outage alert when every
// entity has failed for several consecutive cycles. It returns the completed
// cycle count.
func (s *Scheduler) finishCycle(ctx context.Context, result FetchResult, elapsed time.Duration) uint64 {
	allFailed := len(result.Snapshots) == 0 && len(result.Failed) > 0

	s.mu.Lock()
	s.last = time.Now()
	s.cycles++
	s.failed = result.Failed
	if allFailed {
		s.outages++
	} else {
		s.outages = 0
	}
	outages := s.outages
	cycle := s.cycles
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "cycle complete",
		slog.Int("scored", len(result.Snapshots)),
		slog.Int("failed", len(result.Failed)),
		slog.Duration("elapsed", elapsed),
	)

	if allFailed && outages == outageAlertThreshold && s.alerter != nil {
		if err := s.alerter.Notify(ctx, "provider_outage",
			"Snapshot provider outage",
			"all tracked entities have failed to fetch for 3 consecutive cycles",
		); err != nil {
			s.logger.WarnContext(ctx, "outage alert failed", slog.String("error", err.Error()))
		}
	}
	return cycle
}
