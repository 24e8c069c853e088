/*
Package expense records categorized expenses and processes receipts.

KEY CONCEPTS:
  Category tree: categories form a forest through parent_id. A category can
  never become its own ancestor; UpdateCategory walks the proposed parent's
  ancestors before writing anything.

  Deactivation: a deactivated category hands its expenses and its child
  categories to its own parent (or to the root when it has none), all in
  one transaction.

  Receipts: images are queued and handled by ReceiptWorker with
  at-least-once delivery. Handling is idempotent per receipt id.

SEE ALSO:
  - ledger/model.go for ExpenseCategory, Expense and ReceiptExtraction
  - queue for the delivery guarantees
*/
package expense

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

var tracer = otel.Tracer("github.com/wdeanegpt/property-sub001/expense")

// Ledger manages categories and expenses.
type Ledger struct {
	store  ledger.TxStore
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(l *zap.Logger) Option {
	return func(e *Ledger) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Ledger) {
		if now != nil {
			e.now = now
		}
	}
}

func NewLedger(store ledger.TxStore, opts ...Option) *Ledger {
	l := &Ledger{store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("expense")
	return l
}

// =============================================================================
// CATEGORIES
// =============================================================================

type CategoryInput struct {
	Name          string
	ParentID      *ledger.CategoryID
	TaxDeductible bool
}

// CategoryUpdate changes only the fields that are set. ClearParent moves
// the category to the root.
type CategoryUpdate struct {
	Name          *string
	TaxDeductible *bool
	ParentID      *ledger.CategoryID
	ClearParent   bool
}

// DeactivationResult reports what DeactivateCategory moved.
type DeactivationResult struct {
	Category           ledger.ExpenseCategory
	ExpensesReassigned int
	ChildrenReparented int
}

func (l *Ledger) CreateCategory(ctx context.Context, in CategoryInput) (ledger.ExpenseCategory, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ledger.ExpenseCategory{}, ledger.NewValidationError("name", "is required", nil)
	}

	c := ledger.ExpenseCategory{
		ID:            ledger.CategoryID(ledger.NewID()),
		Name:          name,
		ParentID:      in.ParentID,
		TaxDeductible: in.TaxDeductible,
		Active:        true,
		CreatedAt:     l.now().UTC(),
	}
	err := l.store.WithTx(ctx, func(tx ledger.Store) error {
		if c.ParentID != nil {
			if err := requireActiveCategory(ctx, tx, *c.ParentID, "parent_id"); err != nil {
				return err
			}
		}
		return tx.InsertCategory(ctx, c)
	})
	if err != nil {
		return ledger.ExpenseCategory{}, err
	}

	l.logger.Info("expense category created", zap.String("category_id", string(c.ID)), zap.String("name", c.Name))
	return c, nil
}

// UpdateCategory renames, flags or re-parents a category. A re-parent that
// would create a cycle fails with ledger.ErrCategoryCycle and changes
// nothing.
func (l *Ledger) UpdateCategory(ctx context.Context, id ledger.CategoryID, u CategoryUpdate) (ledger.ExpenseCategory, error) {
	var updated ledger.ExpenseCategory
	err := l.store.WithTx(ctx, func(tx ledger.Store) error {
		c, err := tx.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			if name == "" {
				return ledger.NewValidationError("name", "must not be empty", nil)
			}
			c.Name = name
		}
		if u.TaxDeductible != nil {
			c.TaxDeductible = *u.TaxDeductible
		}
		switch {
		case u.ClearParent:
			c.ParentID = nil
		case u.ParentID != nil:
			if err := requireActiveCategory(ctx, tx, *u.ParentID, "parent_id"); err != nil {
				return err
			}
			if err := checkCycle(ctx, tx, id, *u.ParentID); err != nil {
				return err
			}
			parent := *u.ParentID
			c.ParentID = &parent
		}
		updated = c
		return tx.UpdateCategory(ctx, c)
	})
	if err != nil {
		return ledger.ExpenseCategory{}, err
	}
	return updated, nil
}

// checkCycle walks the ancestors of parent and fails if id is among them.
func checkCycle(ctx context.Context, s ledger.ExpenseStore, id, parent ledger.CategoryID) error {
	seen := map[ledger.CategoryID]bool{}
	for cur := &parent; cur != nil; {
		if *cur == id {
			return &ledger.ConflictError{
				Entity:  "expense category",
				ID:      string(id),
				Message: fmt.Sprintf("parent %s would make the category its own ancestor", parent),
				Err:     ledger.ErrCategoryCycle,
			}
		}
		if seen[*cur] {
			return &ledger.IntegrityError{Entity: "expense category", ID: string(*cur), Message: "existing category cycle"}
		}
		seen[*cur] = true

		c, err := s.GetCategory(ctx, *cur)
		if err != nil {
			return err
		}
		cur = c.ParentID
	}
	return nil
}

// DeactivateCategory deactivates a category, moving its expenses and child
// categories to its parent.
func (l *Ledger) DeactivateCategory(ctx context.Context, id ledger.CategoryID) (DeactivationResult, error) {
	ctx, span := tracer.Start(ctx, "expense.DeactivateCategory")
	defer span.End()
	span.SetAttributes(attribute.String("category_id", string(id)))

	var res DeactivationResult
	err := l.store.WithTx(ctx, func(tx ledger.Store) error {
		c, err := tx.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		if !c.Active {
			return &ledger.ConflictError{Entity: "expense category", ID: string(id), Message: "already inactive"}
		}

		c.Active = false
		if err := tx.UpdateCategory(ctx, c); err != nil {
			return err
		}
		if res.ExpensesReassigned, err = tx.ReassignExpenses(ctx, id, c.ParentID); err != nil {
			return err
		}
		if res.ChildrenReparented, err = tx.ReparentCategories(ctx, id, c.ParentID); err != nil {
			return err
		}
		res.Category = c
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deactivate category")
		return DeactivationResult{}, err
	}

	target := "root"
	if res.Category.ParentID != nil {
		target = string(*res.Category.ParentID)
	}
	l.logger.Info("expense category deactivated",
		zap.String("category_id", string(id)),
		zap.String("moved_to", target),
		zap.Int("expenses_reassigned", res.ExpensesReassigned),
		zap.Int("children_reparented", res.ChildrenReparented))
	return res, nil
}

func (l *Ledger) Category(ctx context.Context, id ledger.CategoryID) (ledger.ExpenseCategory, error) {
	return l.store.GetCategory(ctx, id)
}

func (l *Ledger) Categories(ctx context.Context, f ledger.CategoryFilter) ([]ledger.ExpenseCategory, error) {
	return l.store.ListCategories(ctx, f)
}

func requireActiveCategory(ctx context.Context, s ledger.ExpenseStore, id ledger.CategoryID, field string) error {
	c, err := s.GetCategory(ctx, id)
	if err != nil {
		if ledger.IsNotFound(err) {
			return ledger.NewValidationError(field, fmt.Sprintf("category %s does not exist", id), nil)
		}
		return err
	}
	if !c.Active {
		return ledger.NewValidationError(field, fmt.Sprintf("category %s is inactive", id), nil)
	}
	return nil
}
