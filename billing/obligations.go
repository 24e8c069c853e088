package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// OBLIGATIONS - Administration of schedules and fee policies
// =============================================================================

// ObligationInput describes a new recurring obligation. Owner may name
// only a unit; the property is derived from it.
type ObligationInput struct {
	Owner       ledger.OwnerContext
	LeaseID     ledger.LeaseID
	Kind        ledger.ObligationKind
	Description string
	Amount      decimal.Decimal
	Frequency   ledger.Frequency
	AnchorDay   int
	StartDate   ledger.Date
	EndDate     *ledger.Date
}

func (in ObligationInput) validate() error {
	if !in.Kind.Valid() {
		return ledger.NewValidationError("kind", fmt.Sprintf("unknown kind %q", in.Kind), nil)
	}
	if !ledger.PositiveCents(in.Amount) {
		return ledger.NewValidationError("amount", "must be positive", ledger.ErrInvalidAmount)
	}
	if err := in.Frequency.Validate(); err != nil {
		return err
	}
	if err := ledger.ValidateAnchorDay(in.AnchorDay); err != nil {
		return err
	}
	if in.StartDate.IsZero() {
		return ledger.NewValidationError("start_date", "is required", nil)
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return ledger.NewValidationError("end_date", "must not be before start_date", nil)
	}
	return nil
}

// LateFeeConfigInput describes a fee policy for a property or a unit.
// FeeValue is an amount for fixed fees and a percent for percentage fees.
type LateFeeConfigInput struct {
	Owner           ledger.OwnerContext
	FeeType         ledger.FeeType
	FeeValue        decimal.Decimal
	GracePeriodDays int
	MinimumFee      *decimal.Decimal
	MaximumFee      *decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

func (in LateFeeConfigInput) validate() error {
	switch in.FeeType {
	case ledger.FeeFixed:
	case ledger.FeePercentage:
		if in.FeeValue.GreaterThan(hundred) {
			return ledger.NewValidationError("fee_value", "percentage must not exceed 100", nil)
		}
	default:
		return ledger.NewValidationError("fee_type", fmt.Sprintf("unknown fee type %q", in.FeeType), nil)
	}
	if in.FeeValue.IsNegative() {
		return ledger.NewValidationError("fee_value", "must not be negative", ledger.ErrInvalidAmount)
	}
	if in.GracePeriodDays < 0 {
		return ledger.NewValidationError("grace_period_days", "must not be negative", nil)
	}
	if in.MinimumFee != nil && in.MinimumFee.IsNegative() {
		return ledger.NewValidationError("minimum_fee", "must not be negative", ledger.ErrInvalidAmount)
	}
	if in.MaximumFee != nil && in.MaximumFee.IsNegative() {
		return ledger.NewValidationError("maximum_fee", "must not be negative", ledger.ErrInvalidAmount)
	}
	if in.FeeType == ledger.FeeFixed && (in.MinimumFee != nil || in.MaximumFee != nil) {
		return ledger.NewValidationError("fee_type", "minimum_fee and maximum_fee apply only to percentage fees", nil)
	}
	if in.MinimumFee != nil && in.MaximumFee != nil && in.MinimumFee.GreaterThan(*in.MaximumFee) {
		return ledger.NewValidationError("minimum_fee", "must not exceed maximum_fee", nil)
	}
	return nil
}

// Obligations administers recurring obligations and late-fee policies.
type Obligations struct {
	store ledger.TxStore
	opts  options
}

// NewObligations creates the administration service.
func NewObligations(store ledger.TxStore, opts ...Option) *Obligations {
	o := buildOptions(opts)
	o.logger = o.logger.Named("obligations")
	return &Obligations{store: store, opts: o}
}

// Create validates and stores a new active obligation.
func (s *Obligations) Create(ctx context.Context, in ObligationInput) (ledger.RecurringObligation, error) {
	if err := in.validate(); err != nil {
		return ledger.RecurringObligation{}, err
	}

	var created ledger.RecurringObligation
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		var err error
		created, err = s.insert(ctx, tx, in)
		return err
	})
	if err != nil {
		return ledger.RecurringObligation{}, err
	}

	s.opts.logger.Info("obligation created",
		zap.String("obligation_id", string(created.ID)),
		zap.String("property_id", string(created.Owner.PropertyID)),
		zap.String("frequency", string(created.Frequency)),
		zap.String("amount", created.Amount.StringFixed(ledger.CentsPlaces)))
	return created, nil
}

func (s *Obligations) insert(ctx context.Context, tx ledger.Store, in ObligationInput) (ledger.RecurringObligation, error) {
	owner, err := ledger.ResolveOwner(ctx, tx, in.Owner)
	if err != nil {
		return ledger.RecurringObligation{}, err
	}
	if in.LeaseID != "" {
		lease, err := tx.GetLease(ctx, in.LeaseID)
		if err != nil {
			return ledger.RecurringObligation{}, err
		}
		if owner.HasUnit() && lease.UnitID != owner.UnitID {
			return ledger.RecurringObligation{}, ledger.NewValidationError("lease_id",
				"lease "+string(lease.ID)+" belongs to unit "+string(lease.UnitID), nil)
		}
	}

	o := ledger.RecurringObligation{
		ID:          ledger.ObligationID(ledger.NewID()),
		Owner:       owner,
		LeaseID:     in.LeaseID,
		Kind:        in.Kind,
		Description: in.Description,
		Amount:      ledger.Cents(in.Amount),
		Frequency:   in.Frequency,
		AnchorDay:   in.AnchorDay,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Active:      true,
		CreatedAt:   s.opts.now().UTC(),
	}
	if err := tx.InsertObligation(ctx, o); err != nil {
		return ledger.RecurringObligation{}, err
	}
	return o, nil
}

func (s *Obligations) Get(ctx context.Context, id ledger.ObligationID) (ledger.RecurringObligation, error) {
	return s.store.GetObligation(ctx, id)
}

func (s *Obligations) List(ctx context.Context, f ledger.ObligationFilter) ([]ledger.RecurringObligation, error) {
	return s.store.ListObligations(ctx, f)
}

// Deactivate stops an obligation from being swept. Existing charges and
// payments are untouched.
func (s *Obligations) Deactivate(ctx context.Context, id ledger.ObligationID) error {
	unlock, err := s.opts.locker.Lock(ctx, ledger.ObligationLockKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.SetObligationActive(ctx, id, false); err != nil {
		return err
	}
	s.opts.logger.Info("obligation deactivated", zap.String("obligation_id", string(id)))
	return nil
}

// Supersede deactivates id and creates its replacement in one transaction,
// e.g. on a rent increase. The replacement keeps the old owner unless in
// names one.
func (s *Obligations) Supersede(ctx context.Context, id ledger.ObligationID, in ObligationInput) (ledger.RecurringObligation, error) {
	unlock, err := s.opts.locker.Lock(ctx, ledger.ObligationLockKey(id))
	if err != nil {
		return ledger.RecurringObligation{}, err
	}
	defer unlock()

	var replacement ledger.RecurringObligation
	err = s.store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.LockObligation(ctx, id); err != nil {
			return err
		}
		old, err := tx.GetObligation(ctx, id)
		if err != nil {
			return err
		}
		if !old.Active {
			return &ledger.ConflictError{Entity: "obligation", ID: string(id), Message: "already inactive"}
		}
		if in.Owner.IsEmpty() {
			in.Owner = old.Owner
		}
		if in.LeaseID == "" {
			in.LeaseID = old.LeaseID
		}
		if in.Kind == "" {
			in.Kind = old.Kind
		}
		if err := in.validate(); err != nil {
			return err
		}
		if err := tx.SetObligationActive(ctx, id, false); err != nil {
			return err
		}
		replacement, err = s.insert(ctx, tx, in)
		return err
	})
	if err != nil {
		return ledger.RecurringObligation{}, err
	}

	s.opts.logger.Info("obligation superseded",
		zap.String("obligation_id", string(id)),
		zap.String("replacement_id", string(replacement.ID)))
	return replacement, nil
}

// =============================================================================
// LATE-FEE POLICIES
// =============================================================================

// SetLateFeeConfig stores a new active policy for the owner's scope and
// deactivates the one it replaces.
func (s *Obligations) SetLateFeeConfig(ctx context.Context, in LateFeeConfigInput) (ledger.LateFeeConfig, error) {
	if err := in.validate(); err != nil {
		return ledger.LateFeeConfig{}, err
	}

	var cfg ledger.LateFeeConfig
	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		owner, err := ledger.ResolveOwner(ctx, tx, in.Owner)
		if err != nil {
			return err
		}
		if _, err := tx.DeactivateLateFeeConfigs(ctx, owner); err != nil {
			return err
		}
		cfg = ledger.LateFeeConfig{
			ID:              ledger.ConfigID(ledger.NewID()),
			Owner:           owner,
			FeeType:         in.FeeType,
			FeeValue:        in.FeeValue,
			GracePeriodDays: in.GracePeriodDays,
			MinimumFee:      in.MinimumFee,
			MaximumFee:      in.MaximumFee,
			Active:          true,
			CreatedAt:       s.opts.now().UTC(),
		}
		return tx.InsertLateFeeConfig(ctx, cfg)
	})
	if err != nil {
		return ledger.LateFeeConfig{}, err
	}

	s.opts.logger.Info("late fee config set",
		zap.String("config_id", string(cfg.ID)),
		zap.String("property_id", string(cfg.Owner.PropertyID)),
		zap.String("unit_id", string(cfg.Owner.UnitID)),
		zap.String("fee_type", string(cfg.FeeType)))
	return cfg, nil
}

func (s *Obligations) LateFeeConfigs(ctx context.Context, f ledger.LateFeeConfigFilter) ([]ledger.LateFeeConfig, error) {
	return s.store.ListLateFeeConfigs(ctx, f)
}

// ActiveConfig returns the policy that applies to owner: the unit's own
// active policy if there is one, else the property's. nil means no policy.
func ActiveConfig(ctx context.Context, store ledger.ObligationStore, owner ledger.OwnerContext) (*ledger.LateFeeConfig, error) {
	scopes := []ledger.UnitID{""}
	if owner.HasUnit() {
		scopes = []ledger.UnitID{owner.UnitID, ""}
	}
	for _, unit := range scopes {
		unit := unit
		list, err := store.ListLateFeeConfigs(ctx, ledger.LateFeeConfigFilter{
			PropertyID: owner.PropertyID,
			UnitID:     &unit,
			ActiveOnly: true,
		})
		if err != nil {
			return nil, err
		}
		if len(list) > 0 {
			return &list[0], nil
		}
	}
	return nil, nil
}
