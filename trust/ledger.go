/*
Package trust implements the trust account ledger.

PURPOSE:
  Trust accounts (escrow, reserves, security deposits) hold money that
  belongs to someone else, so every movement is an append-only posting and
  the account balance is only a cache of their running sum.

INVARIANTS:
  - balance_after of each posting = previous balance_after ± amount
  - account balance = Σ signed posting amounts
  - a withdrawal never drives the balance below zero
  - a transfer is a withdrawal and a deposit sharing a transfer id,
    written in one transaction

CONCURRENCY:
  Postings take the account lock (ledger.AccountLockKey) and the account
  row lock. Transfers take both, always in ascending account id order, so
  two opposite transfers cannot deadlock.

RECONCILIATION:
  Reconcile recomputes the balance from the postings and reports any
  difference as an IntegrityError. It never corrects anything.
*/
package trust

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/lock"
)

var tracer = otel.Tracer("github.com/wdeanegpt/property-sub001/trust")

// =============================================================================
// TYPES
// =============================================================================

// AccountInput opens a trust account. A positive OpeningBalance is posted
// as the first deposit.
type AccountInput struct {
	Owner          ledger.OwnerContext
	Name           string
	AccountType    ledger.AccountType
	OpeningBalance decimal.Decimal
}

// Meta is free text attached to a posting.
type Meta struct {
	Description string
	Reference   string
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	TransferID string
	Withdrawal ledger.TrustTransaction
	Deposit    ledger.TrustTransaction
}

// ReconciliationReport compares the cached balance with the postings.
type ReconciliationReport struct {
	AccountID    ledger.AccountID
	Stored       decimal.Decimal
	Computed     decimal.Decimal
	Transactions int
	// ChainBreaks lists postings whose balance_after does not follow from
	// the one before.
	ChainBreaks []ledger.TrustTxID
}

// Balanced reports whether stored and computed balances agree and the
// balance_after chain is intact.
func (r ReconciliationReport) Balanced() bool {
	return r.Stored.Equal(r.Computed) && len(r.ChainBreaks) == 0
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger posts to trust accounts.
type Ledger struct {
	store     ledger.TxStore
	locker    ledger.Locker
	publisher ledger.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLocker sets the per-account lock. Nil keeps the in-process default.
func WithLocker(l ledger.Locker) Option {
	return func(t *Ledger) {
		if l != nil {
			t.locker = l
		}
	}
}

func WithPublisher(p ledger.Publisher) Option {
	return func(t *Ledger) {
		if p != nil {
			t.publisher = p
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Ledger) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Ledger) {
		if now != nil {
			t.now = now
		}
	}
}

// NewLedger creates a trust ledger over store.
func NewLedger(store ledger.TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		locker:    lock.NewLocal(),
		publisher: ledger.NopPublisher{},
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("trust")
	return l
}

// OpenAccount creates an active account.
func (l *Ledger) OpenAccount(ctx context.Context, in AccountInput) (ledger.TrustAccount, error) {
	if strings.TrimSpace(in.Name) == "" {
		return ledger.TrustAccount{}, ledger.NewValidationError("name", "is required", nil)
	}
	if !in.AccountType.Valid() {
		return ledger.TrustAccount{}, ledger.NewValidationError("account_type",
			fmt.Sprintf("unknown account type %q", in.AccountType), nil)
	}
	if in.OpeningBalance.IsNegative() {
		return ledger.TrustAccount{}, ledger.NewValidationError("opening_balance", "must not be negative", ledger.ErrInvalidAmount)
	}

	var acct ledger.TrustAccount
	err := l.store.WithTx(ctx, func(tx ledger.Store) error {
		owner, err := ledger.ResolveOwner(ctx, tx, in.Owner)
		if err != nil {
			return err
		}
		acct = ledger.TrustAccount{
			ID:          ledger.AccountID(ledger.NewID()),
			Owner:       owner,
			Name:        strings.TrimSpace(in.Name),
			AccountType: in.AccountType,
			Balance:     decimal.Zero,
			Active:      true,
			CreatedAt:   l.now().UTC(),
		}
		if err := tx.InsertTrustAccount(ctx, acct); err != nil {
			return err
		}
		if ledger.PositiveCents(in.OpeningBalance) {
			posted, err := l.post(ctx, tx, acct.ID, ledger.TrustDeposit, ledger.Cents(in.OpeningBalance),
				Meta{Description: "opening balance"}, "", "")
			if err != nil {
				return err
			}
			acct.Balance = posted.BalanceAfter
		}
		return nil
	})
	if err != nil {
		return ledger.TrustAccount{}, err
	}

	l.logger.Info("trust account opened",
		zap.String("account_id", string(acct.ID)),
		zap.String("account_type", string(acct.AccountType)),
		zap.String("balance", acct.Balance.StringFixed(ledger.CentsPlaces)))
	return acct, nil
}

// Deposit adds amount to the account.
func (l *Ledger) Deposit(ctx context.Context, id ledger.AccountID, amount decimal.Decimal, meta Meta) (ledger.TrustTransaction, error) {
	return l.single(ctx, id, ledger.TrustDeposit, amount, meta)
}

// Withdraw removes amount, failing with ledger.ErrInsufficientFunds rather
// than going negative.
func (l *Ledger) Withdraw(ctx context.Context, id ledger.AccountID, amount decimal.Decimal, meta Meta) (ledger.TrustTransaction, error) {
	return l.single(ctx, id, ledger.TrustWithdrawal, amount, meta)
}

func (l *Ledger) single(ctx context.Context, id ledger.AccountID, typ ledger.TrustTxType, amount decimal.Decimal, meta Meta) (ledger.TrustTransaction, error) {
	if err := validateAmount(amount); err != nil {
		return ledger.TrustTransaction{}, err
	}

	unlock, err := l.locker.Lock(ctx, ledger.AccountLockKey(id))
	if err != nil {
		return ledger.TrustTransaction{}, err
	}
	defer unlock()

	var posted ledger.TrustTransaction
	err = l.store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.LockTrustAccount(ctx, id); err != nil {
			return err
		}
		posted, err = l.post(ctx, tx, id, typ, ledger.Cents(amount), meta, "", "")
		return err
	})
	if err != nil {
		return ledger.TrustTransaction{}, err
	}

	l.logger.Info("trust posting",
		zap.String("account_id", string(id)),
		zap.String("type", string(typ)),
		zap.String("amount", posted.Amount.StringFixed(ledger.CentsPlaces)),
		zap.String("balance_after", posted.BalanceAfter.StringFixed(ledger.CentsPlaces)))
	return posted, nil
}

// Transfer moves amount between two accounts atomically.
func (l *Ledger) Transfer(ctx context.Context, from, to ledger.AccountID, amount decimal.Decimal, meta Meta) (TransferResult, error) {
	ctx, span := tracer.Start(ctx, "trust.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("amount", amount.String()),
	)

	if from == to {
		return TransferResult{}, ledger.NewValidationError("to_account_id", "must differ from the source account", nil)
	}
	if err := validateAmount(amount); err != nil {
		return TransferResult{}, err
	}

	ordered := []ledger.AccountID{from, to}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	for _, id := range ordered {
		unlock, err := l.locker.Lock(ctx, ledger.AccountLockKey(id))
		if err != nil {
			return TransferResult{}, err
		}
		defer unlock()
	}

	result := TransferResult{TransferID: ledger.NewID()}
	amount = ledger.Cents(amount)
	err := l.store.WithTx(ctx, func(tx ledger.Store) error {
		for _, id := range ordered {
			if err := tx.LockTrustAccount(ctx, id); err != nil {
				return err
			}
		}
		var err error
		result.Withdrawal, err = l.post(ctx, tx, from, ledger.TrustWithdrawal, amount, meta, to, result.TransferID)
		if err != nil {
			return err
		}
		result.Deposit, err = l.post(ctx, tx, to, ledger.TrustDeposit, amount, meta, from, result.TransferID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer")
		return TransferResult{}, err
	}

	l.logger.Info("trust transfer completed",
		zap.String("transfer_id", result.TransferID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("amount", amount.StringFixed(ledger.CentsPlaces)))
	e := ledger.NewEvent(ledger.EventTrustTransferred, string(from), l.now(), ledger.TrustTransferredPayload{
		TransferID: result.TransferID, From: from, To: to, Amount: amount,
	})
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.logger.Error("failed to publish event", zap.String("event_type", string(e.Type)), zap.Error(err))
	}
	return result, nil
}

// post appends one posting and updates the cached balance. The caller holds
// the account's row lock.
func (l *Ledger) post(
	ctx context.Context,
	tx ledger.Store,
	id ledger.AccountID,
	typ ledger.TrustTxType,
	amount decimal.Decimal,
	meta Meta,
	related ledger.AccountID,
	transferID string,
) (ledger.TrustTransaction, error) {
	acct, err := tx.GetTrustAccount(ctx, id)
	if err != nil {
		return ledger.TrustTransaction{}, err
	}
	if !acct.Active {
		return ledger.TrustTransaction{}, &ledger.ConflictError{Entity: "trust account", ID: string(id), Message: "account is inactive"}
	}

	t := ledger.TrustTransaction{
		ID:               ledger.TrustTxID(ledger.NewID()),
		AccountID:        id,
		Type:             typ,
		Amount:           amount,
		RelatedAccountID: related,
		TransferID:       transferID,
		Description:      meta.Description,
		Reference:        meta.Reference,
		CreatedAt:        l.now().UTC(),
	}
	t.BalanceAfter = acct.Balance.Add(t.SignedAmount())
	if t.BalanceAfter.IsNegative() {
		return ledger.TrustTransaction{}, &ledger.InsufficientFundsError{
			AccountID: id,
			Balance:   acct.Balance,
			Requested: amount,
		}
	}

	if err := tx.InsertTrustTransaction(ctx, t); err != nil {
		return ledger.TrustTransaction{}, err
	}
	if err := tx.SetTrustBalance(ctx, id, t.BalanceAfter); err != nil {
		return ledger.TrustTransaction{}, err
	}
	return t, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !ledger.PositiveCents(amount) {
		return ledger.NewValidationError("amount", "must be positive", ledger.ErrInvalidAmount)
	}
	return nil
}

// =============================================================================
// QUERIES & RECONCILIATION
// =============================================================================

func (l *Ledger) Account(ctx context.Context, id ledger.AccountID) (ledger.TrustAccount, error) {
	return l.store.GetTrustAccount(ctx, id)
}

func (l *Ledger) Accounts(ctx context.Context, f ledger.TrustAccountFilter) ([]ledger.TrustAccount, error) {
	return l.store.ListTrustAccounts(ctx, f)
}

// History returns the account's postings in order.
func (l *Ledger) History(ctx context.Context, id ledger.AccountID) ([]ledger.TrustTransaction, error) {
	if _, err := l.store.GetTrustAccount(ctx, id); err != nil {
		return nil, err
	}
	return l.store.ListTrustTransactions(ctx, id)
}

// Reconcile recomputes the account balance from its postings. On a
// mismatch the report comes back together with an *ledger.IntegrityError.
func (l *Ledger) Reconcile(ctx context.Context, id ledger.AccountID) (ReconciliationReport, error) {
	acct, err := l.store.GetTrustAccount(ctx, id)
	if err != nil {
		return ReconciliationReport{}, err
	}
	txs, err := l.store.ListTrustTransactions(ctx, id)
	if err != nil {
		return ReconciliationReport{}, err
	}

	report := ReconciliationReport{AccountID: id, Stored: acct.Balance, Computed: decimal.Zero, Transactions: len(txs)}
	for _, t := range txs {
		report.Computed = report.Computed.Add(t.SignedAmount())
		if !t.BalanceAfter.Equal(report.Computed) {
			report.ChainBreaks = append(report.ChainBreaks, t.ID)
		}
	}
	if report.Balanced() {
		return report, nil
	}

	msg := "stored balance differs from postings"
	if report.Stored.Equal(report.Computed) {
		msg = fmt.Sprintf("balance_after chain broken at %d postings", len(report.ChainBreaks))
	}
	l.logger.Error("trust account out of balance",
		zap.String("account_id", string(id)),
		zap.String("stored", report.Stored.StringFixed(ledger.CentsPlaces)),
		zap.String("computed", report.Computed.StringFixed(ledger.CentsPlaces)),
		zap.Int("chain_breaks", len(report.ChainBreaks)))
	return report, &ledger.IntegrityError{
		Entity:   "trust account",
		ID:       string(id),
		Stored:   report.Stored,
		Computed: report.Computed,
		Message:  msg,
	}
}

// ReconcileAll reconciles every account matching f. It returns all reports
// and the first IntegrityError found, if any.
func (l *Ledger) ReconcileAll(ctx context.Context, f ledger.TrustAccountFilter) ([]ReconciliationReport, error) {
	accounts, err := l.store.ListTrustAccounts(ctx, f)
	if err != nil {
		return nil, err
	}
	var (
		reports  []ReconciliationReport
		firstErr error
	)
	for _, a := range accounts {
		r, err := l.Reconcile(ctx, a.ID)
		if err != nil && !ledger.IsIntegrity(err) {
			return reports, err
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		reports = append(reports, r)
	}
	return reports, firstErr
}
