package billing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// SWEEPER - Batch late-fee run
// =============================================================================

// SweepFailure is one obligation the sweep could not evaluate.
type SweepFailure struct {
	ObligationID ledger.ObligationID
	Err          error
}

// SweepResult summarizes one sweep. Re-running with the same asOf moves
// every previously charged obligation into Skipped[SkipAlreadyCharged].
type SweepResult struct {
	AsOf      ledger.Date
	Evaluated int
	Charges   []ledger.LateFeeCharge
	Skipped   map[SkipReason]int
	Failures  []SweepFailure
}

// Sweeper runs the late-fee engine over all active obligations.
type Sweeper struct {
	store  ledger.TxStore
	engine *LateFeeEngine
	opts   options
}

// NewSweeper creates a sweeper over store.
func NewSweeper(store ledger.TxStore, opts ...Option) *Sweeper {
	o := buildOptions(opts)
	o.logger = o.logger.Named("sweeper")
	return &Sweeper{store: store, engine: NewLateFeeEngine(o.now), opts: o}
}

// Sweep evaluates every active obligation as of asOf. A failure on one
// obligation is recorded in the result and the sweep moves on; only a
// failure to list obligations aborts it.
func (s *Sweeper) Sweep(ctx context.Context, asOf ledger.Date) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "billing.Sweep")
	defer span.End()
	span.SetAttributes(attribute.String("as_of", asOf.String()))

	result := SweepResult{AsOf: asOf, Skipped: make(map[SkipReason]int)}

	obligations, err := s.store.ListObligations(ctx, ledger.ObligationFilter{ActiveOnly: true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list obligations")
		return result, fmt.Errorf("failed to list obligations: %w", err)
	}

	for _, o := range obligations {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Evaluated++

		ev, err := s.SweepObligation(ctx, o.ID, asOf)
		switch {
		case err != nil:
			result.Failures = append(result.Failures, SweepFailure{ObligationID: o.ID, Err: err})
			s.opts.logger.Warn("late fee evaluation failed",
				zap.String("obligation_id", string(o.ID)), zap.Error(err))
		case ev.Charged():
			result.Charges = append(result.Charges, *ev.Charge)
		default:
			result.Skipped[ev.Skip]++
		}
	}

	span.SetAttributes(
		attribute.Int("evaluated", result.Evaluated),
		attribute.Int("charged", len(result.Charges)),
		attribute.Int("failed", len(result.Failures)),
	)
	s.opts.logger.Info("late fee sweep completed",
		zap.String("as_of", asOf.String()),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("charged", len(result.Charges)),
		zap.Int("failed", len(result.Failures)))
	return result, nil
}

// SweepObligation evaluates a single obligation under its lock and
// publishes late_fee.charged after the charge commits. Losing a race to
// another sweep is reported as SkipAlreadyCharged, not as an error.
func (s *Sweeper) SweepObligation(ctx context.Context, id ledger.ObligationID, asOf ledger.Date) (Evaluation, error) {
	unlock, err := s.opts.locker.Lock(ctx, ledger.ObligationLockKey(id))
	if err != nil {
		return Evaluation{ObligationID: id, AsOf: asOf}, err
	}
	defer unlock()

	var ev Evaluation
	err = s.store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.LockObligation(ctx, id); err != nil {
			return err
		}
		o, err := tx.GetObligation(ctx, id)
		if err != nil {
			return err
		}
		cfg, err := ActiveConfig(ctx, tx, o.Owner)
		if err != nil {
			return err
		}
		ev, err = s.engine.EvaluatePeriod(ctx, tx, o, cfg, asOf)
		return err
	})
	if errors.Is(err, ledger.ErrDuplicateCharge) {
		ev.Charge = nil
		ev.Skip = SkipAlreadyCharged
		return ev, nil
	}
	if err != nil {
		return ev, err
	}

	if ev.Charged() {
		c := ev.Charge
		s.opts.logger.Info("late fee charged",
			zap.String("obligation_id", string(id)),
			zap.String("charge_id", string(c.ID)),
			zap.String("period", c.Period.Key()),
			zap.String("amount", c.Amount.StringFixed(ledger.CentsPlaces)))
		s.publish(ctx, ledger.NewEvent(ledger.EventLateFeeCharged, string(id), s.opts.now(),
			ledger.LateFeeChargedPayload{
				ChargeID:     c.ID,
				ObligationID: id,
				PeriodStart:  c.Period.Start,
				PeriodEnd:    c.Period.End,
				Amount:       c.Amount,
				AsOf:         asOf,
			}))
	}
	return ev, nil
}

// publish never fails the caller: the charge is already committed.
func (s *Sweeper) publish(ctx context.Context, e ledger.Event) {
	if err := s.opts.publisher.Publish(ctx, e); err != nil {
		s.opts.logger.Error("failed to publish event",
			zap.String("event_type", string(e.Type)),
			zap.String("aggregate_id", e.AggregateID),
			zap.Error(err))
	}
}
