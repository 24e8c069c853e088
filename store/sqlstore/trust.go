package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// TRUST ACCOUNTS
// =============================================================================

const trustAccountColumns = `id, property_id, unit_id, name, account_type, balance, active, created_at`

func (s *queries) InsertTrustAccount(ctx context.Context, a ledger.TrustAccount) error {
	_, err := s.exec(ctx, `
		INSERT INTO trust_accounts (`+trustAccountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID),
		string(a.Owner.PropertyID),
		nullString(string(a.Owner.UnitID)),
		a.Name,
		string(a.AccountType),
		a.Balance.String(),
		a.Active,
		formatTime(a.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{Entity: "trust account", ID: string(a.ID), Message: "already exists"}
		}
		return fmt.Errorf("failed to insert trust account: %w", err)
	}
	return nil
}

func (s *queries) GetTrustAccount(ctx context.Context, id ledger.AccountID) (ledger.TrustAccount, error) {
	list, err := s.queryTrustAccounts(ctx, ` WHERE id = ?`, string(id))
	if err != nil {
		return ledger.TrustAccount{}, err
	}
	if len(list) == 0 {
		return ledger.TrustAccount{}, ledger.NewNotFoundError("trust account", string(id))
	}
	return list[0], nil
}

func (s *queries) ListTrustAccounts(ctx context.Context, f ledger.TrustAccountFilter) ([]ledger.TrustAccount, error) {
	var w where
	if f.PropertyID != "" {
		w.add("property_id = ?", string(f.PropertyID))
	}
	if f.ActiveOnly {
		w.add("active = ?", true)
	}
	return s.queryTrustAccounts(ctx, w.String(), w.args...)
}

func (s *queries) LockTrustAccount(ctx context.Context, id ledger.AccountID) error {
	return s.lockRow(ctx, "trust_accounts", "trust account", string(id))
}

func (s *queries) SetTrustBalance(ctx context.Context, id ledger.AccountID, balance decimal.Decimal) error {
	res, err := s.exec(ctx, `UPDATE trust_accounts SET balance = ? WHERE id = ?`, balance.String(), string(id))
	if err != nil {
		return fmt.Errorf("failed to update trust balance: %w", err)
	}
	return requireAffected(res, "trust account", string(id))
}

func (s *queries) queryTrustAccounts(ctx context.Context, clause string, args ...any) ([]ledger.TrustAccount, error) {
	rows, err := s.query(ctx, `SELECT `+trustAccountColumns+` FROM trust_accounts`+clause+
		` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trust accounts: %w", err)
	}
	defer rows.Close()

	var result []ledger.TrustAccount
	for rows.Next() {
		var (
			a                ledger.TrustAccount
			unitID           sql.NullString
			balance, created string
		)
		if err := rows.Scan(&a.ID, &a.Owner.PropertyID, &unitID, &a.Name, &a.AccountType,
			&balance, &a.Active, &created); err != nil {
			return nil, fmt.Errorf("failed to scan trust account: %w", err)
		}
		var err error
		if a.Balance, err = parseDecimal(balance); err != nil {
			return nil, err
		}
		a.Owner.UnitID = ledger.UnitID(unitID.String)
		a.CreatedAt = parseTime(created)
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// TRUST TRANSACTIONS (append-only)
// =============================================================================

// InsertTrustTransaction appends a posting with the account's next sequence
// number. Two writers that computed the same previous balance collide on
// idx_trust_transactions_seq and the second one gets a ConflictError.
func (s *queries) InsertTrustTransaction(ctx context.Context, t ledger.TrustTransaction) error {
	var seq int64
	if err := s.queryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM trust_transactions WHERE account_id = ?`,
		string(t.AccountID),
	).Scan(&seq); err != nil {
		return fmt.Errorf("failed to read trust sequence: %w", err)
	}

	_, err := s.exec(ctx, `
		INSERT INTO trust_transactions
		(id, account_id, seq, tx_type, amount, balance_after, related_account_id,
		 transfer_id, description, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.ID),
		string(t.AccountID),
		seq,
		string(t.Type),
		t.Amount.String(),
		t.BalanceAfter.String(),
		nullString(string(t.RelatedAccountID)),
		nullString(t.TransferID),
		t.Description,
		t.Reference,
		formatTime(t.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return &ledger.ConflictError{
				Entity:  "trust account",
				ID:      string(t.AccountID),
				Message: "concurrent posting",
			}
		}
		return fmt.Errorf("failed to insert trust transaction: %w", err)
	}
	return nil
}

func (s *queries) ListTrustTransactions(ctx context.Context, id ledger.AccountID) ([]ledger.TrustTransaction, error) {
	rows, err := s.query(ctx, `
		SELECT id, account_id, tx_type, amount, balance_after, related_account_id,
		       transfer_id, description, reference, created_at
		FROM trust_transactions
		WHERE account_id = ?
		ORDER BY seq ASC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query trust transactions: %w", err)
	}
	defer rows.Close()

	var result []ledger.TrustTransaction
	for rows.Next() {
		var (
			t                             ledger.TrustTransaction
			amount, balanceAfter, created string
			relatedAccount, transferID    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &amount, &balanceAfter, &relatedAccount,
			&transferID, &t.Description, &t.Reference, &created); err != nil {
			return nil, fmt.Errorf("failed to scan trust transaction: %w", err)
		}
		var err error
		if t.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if t.BalanceAfter, err = parseDecimal(balanceAfter); err != nil {
			return nil, err
		}
		t.RelatedAccountID = ledger.AccountID(relatedAccount.String)
		t.TransferID = transferID.String
		t.CreatedAt = parseTime(created)
		result = append(result, t)
	}
	return result, rows.Err()
}
