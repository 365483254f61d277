package scaling

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/errors"
	"github.com/phildougherty/queuescale/internal/logging"
)

// QueueBackend reports the backlog of the consumed queue
type QueueBackend interface {
	ApproximateMessageCount(ctx context.Context) (uint64, error)
}

// WorkloadBackend reads and writes the replica count of the scaled workload
type WorkloadBackend interface {
	ReplicaCount(ctx context.Context) (int32, error)
	SetReplicaCount(ctx context.Context, replicas int32) error
}

// Status is the published view of the most recent tick
type Status struct {
	Workload   string        `json:"workload"`
	Ticks      uint64        `json:"ticks"`
	LastTickAt time.Time     `json:"lastTickAt,omitempty"`
	Snapshot   *Snapshot     `json:"snapshot,omitempty"`
	Decision   *Decision     `json:"decision,omitempty"`
	Applied    bool          `json:"applied"`
	DryRun     bool          `json:"dryRun"`
	Cooldown   CooldownState `json:"cooldown"`
	LastError  string        `json:"lastError,omitempty"`
	Ready      bool          `json:"ready"`
}

// Loop is the control loop: one tick per poll period, run by a single
// goroutine. Only the published Status is shared with other goroutines.
type Loop struct {
	opts     config.Options
	queue    QueueBackend
	workload WorkloadBackend
	logger   *logging.Logger
	clock    clock.Clock
	metrics  *Metrics
	cooldown *CooldownTracker

	mu     sync.RWMutex
	status Status
}

// LoopOption customizes a Loop
type LoopOption func(*Loop)

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clock.Clock) LoopOption {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithMetrics sets the collectors the loop updates
func WithMetrics(m *Metrics) LoopOption {
	return func(l *Loop) {
		l.metrics = m
	}
}

// NewLoop creates a control loop. Without WithMetrics the loop registers its
// collectors on a private registry.
func NewLoop(opts config.Options, queue QueueBackend, workload WorkloadBackend, logger *logging.Logger, options ...LoopOption) *Loop {
	l := &Loop{
		opts:     opts,
		queue:    queue,
		workload: workload,
		logger:   logger,
		clock:    clock.RealClock{},
	}
	for _, o := range options {
		o(l)
	}
	if l.metrics == nil {
		// A fresh registry cannot hold duplicates.
		l.metrics, _ = NewMetrics(prometheus.NewRegistry())
	}
	l.cooldown = NewCooldownTracker(l.clock.Now())
	l.status = Status{
		Workload: opts.Workload.String(),
		DryRun:   opts.DryRun,
		Cooldown: l.cooldown.State(),
	}
	return l
}

// Start runs ticks until ctx is cancelled. Cancellation is only observed
// while sleeping between ticks. It returns nil on cancellation and the tick
// error when a tick fails fatally.
func (l *Loop) Start(ctx context.Context) error {
	l.cooldown = NewCooldownTracker(l.clock.Now())
	l.logger.Info("Starting poll of deployment %s every %s", l.opts.Workload, l.opts.PollPeriod)

	for {
		if err := l.Tick(ctx); err != nil {
			if l.opts.ExitOnError || errors.IsFatal(err) {
				l.logger.Error("Stopping control loop: %v", err)
				return err
			}
			l.logger.Warning("Tick failed, retrying in %s: %v", l.opts.PollPeriod, err)
		}

		timer := l.clock.NewTimer(l.opts.PollPeriod)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("Control loop for deployment %s stopped", l.opts.Workload)
			return nil
		case <-timer.C():
		}
	}
}

// NeedLeaderElection makes the manager run the loop only on the leader
func (l *Loop) NeedLeaderElection() bool {
	return true
}

// Tick runs one read, decide, act sequence. Collaborator calls ignore the
// cancellation of ctx so that a shutdown never interrupts a tick halfway;
// each call is bounded by CallTimeout instead.
func (l *Loop) Tick(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	fields := l.logger.WithFields(map[string]interface{}{"deployment": l.opts.Workload.String()})

	current, err := l.readReplicas(ctx)
	if err != nil {
		return l.fail(fmt.Errorf("failed to read replica count: %w", err))
	}
	l.metrics.CurrentReplicas.Set(float64(current))

	if current == 0 {
		fields.Debug("Deployment scaled to zero, skipping")
		l.publish(func(s *Status) {
			s.Snapshot = &Snapshot{CurrentReplicas: 0, ObservedAt: l.clock.Now()}
			s.Decision = &Decision{Action: NoOp, Reason: "workload scaled to zero"}
			s.Applied = false
		})
		return nil
	}

	count, err := l.readMessages(ctx)
	if err != nil {
		return l.fail(fmt.Errorf("failed to read queue depth: %w", err))
	}
	l.metrics.QueueMessages.Set(float64(count))

	now := l.clock.Now()
	snap := Snapshot{MessageCount: count, CurrentReplicas: current, ObservedAt: now}
	decision := Evaluate(snap, l.cooldown.State(), l.opts, now)

	applied := false
	switch {
	case decision.Action == NoOp:
		fields.Debug("messages=%d replicas=%d: %s", count, current, decision.Reason)
		l.metrics.DesiredReplicas.Set(float64(current))
	case l.opts.DryRun:
		fields.Info("Dry run: would %s from %d to %d: %s", decision.Action, current, decision.Replicas, decision.Reason)
		l.metrics.DesiredReplicas.Set(float64(decision.Replicas))
	default:
		fields.Info("Scaling %s from %d to %d: %s", directionVerb(decision.Action), current, decision.Replicas, decision.Reason)
		l.metrics.DesiredReplicas.Set(float64(decision.Replicas))
		if err := l.apply(ctx, decision.Replicas); err != nil {
			return l.fail(fmt.Errorf("failed to set replica count to %d: %w", decision.Replicas, err))
		}
		l.cooldown.Record(decision, now)
		l.metrics.Actions.WithLabelValues(decision.Action.String()).Inc()
		applied = true
	}

	l.publish(func(s *Status) {
		s.Snapshot = &snap
		s.Decision = &decision
		s.Applied = applied
	})
	return nil
}

func (l *Loop) readReplicas(ctx context.Context) (int32, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
	defer cancel()
	return l.workload.ReplicaCount(ctx)
}

func (l *Loop) readMessages(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
	defer cancel()
	return l.queue.ApproximateMessageCount(ctx)
}

func (l *Loop) apply(ctx context.Context, replicas int32) error {
	ctx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
	defer cancel()
	return l.workload.SetReplicaCount(ctx, replicas)
}

func (l *Loop) fail(err error) error {
	l.metrics.TickErrors.WithLabelValues(errors.KindOf(err).String()).Inc()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Ticks++
	l.status.LastTickAt = l.clock.Now()
	l.status.LastError = err.Error()
	return err
}

func (l *Loop) publish(update func(s *Status)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	update(&l.status)
	l.status.Ticks++
	l.status.LastTickAt = l.clock.Now()
	l.status.Cooldown = l.cooldown.State()
	l.status.LastError = ""
	l.status.Ready = true
}

// Status returns a copy of the last published status
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.status
	if s.Snapshot != nil {
		snap := *s.Snapshot
		s.Snapshot = &snap
	}
	if s.Decision != nil {
		d := *s.Decision
		s.Decision = &d
	}
	return s
}

// ReadyCheck fails until the first tick has succeeded. Its signature
// matches healthz.Checker.
func (l *Loop) ReadyCheck(_ *http.Request) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.status.Ready {
		return fmt.Errorf("control loop for %s has not completed a tick yet", l.status.Workload)
	}
	return nil
}

func directionVerb(a Action) string {
	if a == ScaleUp {
		return "up"
	}
	return "down"
}
