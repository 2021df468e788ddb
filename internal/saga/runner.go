package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orchard/internal/contracts"
	"orchard/internal/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher dispatches the orchestrator's outbound messages.
type Publisher interface {
	PublishEvent(ctx context.Context, evt contracts.Event) error
	SendCommand(ctx context.Context, cmd contracts.Command) error
}

// Notifier observes saga status changes, e.g. to push them to websocket
// subscribers.
type Notifier interface {
	NotifyStatus(correlationID uuid.UUID, state State)
}

// Runner consumes protocol events: it loads or creates the instance,
// runs the transition function, persists the result under the instance's
// version and only then dispatches the outbound messages. Returning an
// error hands the delivery back to the bus for redelivery; absorbed
// outcomes (orphans, duplicates) return nil so the delivery is acked.
type Runner struct {
	store     Store
	publisher Publisher
	journal   Journal
	notifier  Notifier
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithJournal records applied transitions to the given journal.
func WithJournal(j Journal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

// WithNotifier forwards status changes to the given notifier.
func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

// WithClock overrides the runner's clock.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner constructs a Runner.
func NewRunner(store Store, publisher Publisher, logger *zap.Logger, metrics *observability.Metrics, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound delivery.
func (r *Runner) Handle(ctx context.Context, env contracts.Envelope) error {
	started := time.Now()
	outcome, err := r.handle(ctx, env)
	r.metrics.ObserveMessage(env.Kind, outcome, time.Since(started))
	return err
}

func (r *Runner) handle(ctx context.Context, env contracts.Envelope) (string, error) {
	msg, err := contracts.Unwrap(env)
	if err != nil {
		// Malformed payloads cannot improve on redelivery.
		r.logger.Error("dropping undecodable message",
			zap.String("kind", env.Kind),
			zap.String("correlation_id", env.CorrelationID.String()),
			zap.Error(err))
		return observability.OutcomeMalformed, nil
	}

	if submitted, ok := msg.(contracts.OrderSubmitted); ok {
		return r.start(ctx, submitted)
	}

	evt, ok := msg.(contracts.Event)
	if !ok {
		r.logger.Warn("command delivered to orchestrator, dropping",
			zap.String("kind", env.Kind),
			zap.String("correlation_id", env.CorrelationID.String()))
		return observability.OutcomeMalformed, nil
	}
	return r.advance(ctx, evt)
}

func (r *Runner) start(ctx context.Context, msg contracts.OrderSubmitted) (string, error) {
	inst, outbound, err := Start(msg, r.now())
	if err != nil {
		r.logger.Error("dropping unstartable submission",
			zap.String("correlation_id", msg.OrderID.String()),
			zap.Error(err))
		return observability.OutcomeMalformed, nil
	}

	if err := r.store.CreateIfAbsent(ctx, inst); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Redelivered triggering event: the instance is already on
			// its way, do not resend the payment command.
			r.logger.Info("duplicate order submission ignored",
				zap.String("correlation_id", msg.OrderID.String()))
			return observability.OutcomeIgnored, nil
		}
		return observability.OutcomeFailed, fmt.Errorf("create instance %s: %w", msg.OrderID, err)
	}

	r.logger.Info("saga started",
		zap.String("correlation_id", inst.CorrelationID.String()),
		zap.String("customer_id", inst.CustomerID),
		zap.Float64("total_amount", inst.TotalAmount))

	r.record(TransitionEntry{
		CorrelationID: inst.CorrelationID,
		Event:         msg.Kind(),
		From:          StateInitial,
		To:            inst.State,
		At:            r.now(),
	})
	r.notify(inst)
	r.dispatch(ctx, inst, outbound)
	return observability.OutcomeCreated, nil
}

func (r *Runner) advance(ctx context.Context, evt contracts.Event) (string, error) {
	id := evt.Correlation()

	inst, err := r.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Orphan: no instance to attach the event to. Retrying would
			// not change the outcome.
			r.logger.Warn("orphan event dropped",
				zap.String("kind", evt.Kind()),
				zap.String("correlation_id", id.String()))
			return observability.OutcomeOrphan, nil
		}
		return observability.OutcomeFailed, fmt.Errorf("load instance %s: %w", id, err)
	}

	dec, err := Decide(inst, evt, r.now())
	if err != nil {
		r.logger.Error("dropping undecidable event",
			zap.String("kind", evt.Kind()),
			zap.String("correlation_id", id.String()),
			zap.Error(err))
		return observability.OutcomeMalformed, nil
	}
	if dec.Outcome == OutcomeIgnored {
		r.logger.Debug("stale or duplicate event ignored",
			zap.String("kind", evt.Kind()),
			zap.String("correlation_id", id.String()),
			zap.String("state", string(inst.State)))
		return observability.OutcomeIgnored, nil
	}

	from := inst.State
	if err := r.store.CompareAndSwap(ctx, dec.Instance, inst.Version); err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			return observability.OutcomeFailed, fmt.Errorf("persist instance %s: %w", id, err)
		}
		r.metrics.ObserveConflict()

		// One re-read against the fresh state; a second conflict goes
		// back to the bus for redelivery.
		fresh, err := r.store.Load(ctx, id)
		if err != nil {
			return observability.OutcomeFailed, fmt.Errorf("reload instance %s: %w", id, err)
		}
		dec, err = Decide(fresh, evt, r.now())
		if err != nil {
			r.logger.Error("dropping undecidable event",
				zap.String("kind", evt.Kind()),
				zap.String("correlation_id", id.String()),
				zap.Error(err))
			return observability.OutcomeMalformed, nil
		}
		if dec.Outcome == OutcomeIgnored {
			return observability.OutcomeIgnored, nil
		}
		from = fresh.State
		if err := r.store.CompareAndSwap(ctx, dec.Instance, fresh.Version); err != nil {
			return observability.OutcomeFailed, fmt.Errorf("persist instance %s after conflict: %w", id, err)
		}
	}

	r.logger.Info("saga advanced",
		zap.String("correlation_id", id.String()),
		zap.String("event", evt.Kind()),
		zap.String("from", string(from)),
		zap.String("to", string(dec.Instance.State)))

	r.record(TransitionEntry{
		CorrelationID: id,
		Event:         evt.Kind(),
		From:          from,
		To:            dec.Instance.State,
		At:            r.now(),
	})
	r.notify(dec.Instance)
	r.dispatch(ctx, dec.Instance, dec.Outbound)
	return observability.OutcomeApplied, nil
}

// dispatch sends outbound messages after the instance has been
// persisted. Failures are logged, not returned: the state change is
// already durable, so redelivery would re-decide against the advanced
// state and be ignored rather than recover the lost message.
func (r *Runner) dispatch(ctx context.Context, inst *Instance, outbound []contracts.Message) {
	for _, msg := range outbound {
		var err error
		switch m := msg.(type) {
		case contracts.Command:
			err = r.publisher.SendCommand(ctx, m)
		case contracts.Event:
			err = r.publisher.PublishEvent(ctx, m)
		default:
			err = fmt.Errorf("outbound message %s is neither command nor event", msg.Kind())
		}
		r.metrics.ObserveOutbound(msg.Kind(), err)
		if err != nil {
			r.logger.Error("outbound dispatch failed",
				zap.String("kind", msg.Kind()),
				zap.String("correlation_id", inst.CorrelationID.String()),
				zap.Error(err))
		}
	}
}

func (r *Runner) record(entry TransitionEntry) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(entry); err != nil {
		r.logger.Error("journal append failed",
			zap.String("correlation_id", entry.CorrelationID.String()),
			zap.Error(err))
	}
}

func (r *Runner) notify(inst *Instance) {
	if r.notifier == nil {
		return
	}
	r.notifier.NotifyStatus(inst.CorrelationID, inst.State)
}
