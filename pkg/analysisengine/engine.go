// Package analysisengine orchestrates one beacon's analysis cycle (collect
// -> classify -> decide -> act/escalate) and its periodic scheduler.
// Grounded on the teacher's ticker-driven background-worker shape
// (Run(ctx) loop, idempotent start/stop via context cancellation),
// generalized from tenant-alert escalation to the fleet-remediation cycle.
package analysisengine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/wopr/internal/telemetry"
	"github.com/wisbric/wopr/pkg/analysisstore"
	"github.com/wisbric/wopr/pkg/collector"
	"github.com/wisbric/wopr/pkg/executor"
	"github.com/wisbric/wopr/pkg/llm"
	"github.com/wisbric/wopr/pkg/notifier"
	"github.com/wisbric/wopr/pkg/patternmatcher"
	"github.com/wisbric/wopr/pkg/safety"
	"github.com/wisbric/wopr/pkg/types"
)

const digestCap = 10

// Engine runs analysis cycles on one beacon, either on a schedule or
// on demand (POST /analyze-now). Cycles within one beacon are strictly
// serial: a new cycle cannot start until the previous one has finished.
type Engine struct {
	store    *analysisstore.Store
	collect  *collector.Collector
	llm      *llm.Client
	validate *safety.Validator
	exec     *executor.Executor
	notify   notifier.Notifier
	logger   *slog.Logger

	maxAutoActionsPerHour int
	scanInterval          time.Duration

	cycleMu sync.Mutex // serializes run_analysis_cycle

	schedMu  sync.Mutex // guards start/stop of the scheduler goroutine
	running  bool
	stopOnce chan struct{}
	doneCh   chan struct{}
}

// Config bundles the tunables read from the environment (spec §6.5).
type Config struct {
	MaxAutoActionsPerHour int
	ScanInterval          time.Duration
}

// New builds an Engine from its dependencies.
func New(store *analysisstore.Store, collect *collector.Collector, llmClient *llm.Client, validator *safety.Validator, exec *executor.Executor, notify notifier.Notifier, logger *slog.Logger, cfg Config) *Engine {
	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	maxActions := cfg.MaxAutoActionsPerHour
	if maxActions <= 0 {
		maxActions = 10
	}
	return &Engine{
		store:                 store,
		collect:               collect,
		llm:                   llmClient,
		validate:              validator,
		exec:                  exec,
		notify:                notify,
		logger:                logger,
		maxAutoActionsPerHour: maxActions,
		scanInterval:          interval,
	}
}

// Start launches the scheduler goroutine. Calling Start twice is a no-op —
// it leaves exactly one scheduler task running.
func (e *Engine) Start(ctx context.Context) {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopOnce = make(chan struct{})
	e.doneCh = make(chan struct{})

	go e.schedulerLoop(ctx, e.stopOnce, e.doneCh)
}

// Stop cancels the scheduler's sleep and prevents subsequent cycles. It
// does not forcibly cancel an in-flight cycle — that finishes or fails
// naturally. Stop is idempotent.
func (e *Engine) Stop() {
	e.schedMu.Lock()
	if !e.running {
		e.schedMu.Unlock()
		return
	}
	e.running = false
	close(e.stopOnce)
	done := e.doneCh
	e.schedMu.Unlock()

	<-done
}

// IsRunning reports the scheduler's state, not the state of any in-flight
// cycle.
func (e *Engine) IsRunning() bool {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.running
}

func (e *Engine) schedulerLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := e.RunCycle(ctx); err != nil {
				e.logger.Error("analysis cycle crashed", "error", err)
			}
		}
	}
}

// RunCycle executes run_analysis_cycle once, synchronously. Any panic or
// error inside marks the run failed with the message recorded in summary;
// the scheduler loop is never allowed to stop because of it.
func (e *Engine) RunCycle(ctx context.Context) (run types.AnalysisRun, err error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	run = types.AnalysisRun{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Status:    types.RunRunning,
	}
	if err := e.store.CreateRun(run); err != nil {
		return run, fmt.Errorf("creating analysis run: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			run.Status = types.RunFailed
			run.Summary = fmt.Sprintf("panic: %v", r)
			completedAt := time.Now()
			run.CompletedAt = &completedAt
			_ = e.store.CompleteRun(run)
			telemetry.AnalysisCyclesTotal.WithLabelValues(string(types.RunFailed)).Inc()
			err = fmt.Errorf("analysis cycle panicked: %v", r)
		}
	}()

	grouped := e.collect.Collect(ctx, collector.DefaultWindow)

	for service, errs := range grouped {
		run.ErrorsFound += len(errs)
		decision, ok := e.classify(ctx, service, errs)
		if !ok {
			continue
		}
		decision = e.validate.Validate(decision)
		e.act(ctx, &run, decision)
	}

	run.Status = types.RunCompleted
	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.Summary = fmt.Sprintf("processed %d service(s), %d error(s)", len(grouped), run.ErrorsFound)
	if err := e.store.CompleteRun(run); err != nil {
		return run, fmt.Errorf("completing analysis run: %w", err)
	}
	telemetry.AnalysisCyclesTotal.WithLabelValues(string(types.RunCompleted)).Inc()
	return run, nil
}

// classify scans the service's errors through the Pattern Matcher first;
// the first hit wins and skips the model entirely. Otherwise it issues a
// single JSON-mode inference request. Any inference failure (or a missing
// inference client) yields a null decision: ok is false and the caller
// skips the service this cycle.
func (e *Engine) classify(ctx context.Context, service string, errs []types.ErrorRecord) (types.Decision, bool) {
	digest := buildDigest(errs)

	for _, rec := range errs {
		if d, ok := patternmatcher.Match(service, rec.Message); ok {
			return d, true
		}
	}

	if e.llm == nil {
		return types.Decision{}, false
	}

	d, ok := e.llm.Classify(ctx, service, digest)
	if !ok {
		return types.Decision{}, false
	}
	return *d, true
}

func buildDigest(errs []types.ErrorRecord) string {
	var b strings.Builder
	for i, rec := range errs {
		if i >= digestCap {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s\n", rec.Severity, rec.Message)
	}
	return b.String()
}

// act applies the decide -> act/escalate half of the cycle for one
// service's decision, updating run counters in place.
func (e *Engine) act(ctx context.Context, run *types.AnalysisRun, decision types.Decision) {
	if decision.Tier == types.DecisionAuto {
		withinBudget, err := e.withinRateLimit()
		if err != nil {
			e.logger.Warn("rate limit check failed, downgrading to suggest", "service", decision.Service, "error", err)
			decision.Tier = types.DecisionSuggest
		} else if !withinBudget {
			decision.Tier = types.DecisionSuggest
			telemetry.AnalysisRateLimitedTotal.Inc()
		}
	}

	if decision.Tier == types.DecisionAuto {
		e.executeAndLog(ctx, run, decision)
		return
	}

	e.escalate(ctx, run, decision)
}

func (e *Engine) withinRateLimit() (bool, error) {
	count, err := e.store.CountAutoActionsSince(time.Now().Add(-time.Hour))
	if err != nil {
		return false, err
	}
	return count < e.maxAutoActionsPerHour, nil
}

func (e *Engine) executeAndLog(ctx context.Context, run *types.AnalysisRun, decision types.Decision) {
	result := e.exec.Execute(ctx, decision.Action)

	logEntry := types.AutoActionLog{
		ID:            uuid.New(),
		AnalysisRunID: run.ID,
		ExecutedAt:    time.Now(),
		Service:       decision.Service,
		Action:        decision.Action,
		Success:       result.Success,
		Output:        result.Output,
	}
	if err := e.store.AppendAutoAction(logEntry); err != nil {
		e.logger.Warn("failed to record auto action log", "error", err)
	}

	if result.Success {
		run.AutoFixed++
		telemetry.AnalysisAutoFixedTotal.Inc()
		return
	}

	e.notify.NotifyAutoFixFailure(ctx, decision.Service, decision.Action, result.Output)
	e.escalate(ctx, run, decision)
}

func (e *Engine) escalate(ctx context.Context, run *types.AnalysisRun, decision types.Decision) {
	now := time.Now()
	existing, err := e.store.FindPendingDuplicate(decision.Service, decision.Action, now)
	if err != nil {
		e.logger.Warn("dedup probe failed", "error", err)
	}
	if existing != nil {
		// Collapses into the existing pending escalation: skip creation,
		// skip notification.
		return
	}

	esc := types.Escalation{
		ID:             uuid.New(),
		AnalysisRunID:  run.ID,
		CreatedAt:      now,
		Tier:           decision.Tier,
		Service:        decision.Service,
		ErrorSummary:   decision.Reasoning,
		ProposedAction: decision.Action,
		Confidence:     decision.Confidence,
		Status:         types.EscalationPending,
	}
	if err := e.store.CreateEscalation(esc); err != nil {
		e.logger.Warn("failed to create escalation", "error", err)
		return
	}
	run.Escalated++
	telemetry.AnalysisEscalatedTotal.Inc()
	e.notify.NotifyEscalation(ctx, decision.Tier, decision.Service, decision.Reasoning, decision.Action, decision.Confidence, esc.ID.String())
}
