package journals

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/accounts"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
)

// balanceTolerance is the allowed rounding slack between total debit and
// total credit.
var balanceTolerance = decimal.New(1, -2)

// validateLineShape runs the pure structural checks: line count, one-sided
// amounts, and balance within tolerance.
func validateLineShape(lines []LineInput) error {
	if len(lines) < 2 {
		return shared.ErrTooFewLines
	}
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for i, line := range lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative amount", shared.ErrLineSign, i+1)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d", shared.ErrLineSign, i+1)
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	if totalDebit.Sub(totalCredit).Abs().GreaterThan(balanceTolerance) {
		return fmt.Errorf("%w: debit %s vs credit %s", shared.ErrUnbalanced, totalDebit, totalCredit)
	}
	return nil
}

// ValidateLines is the full pre-persistence check: structure first, then
// every referenced account must exist, belong to the tenant, and not be a
// header account. It performs no writes.
func ValidateLines(tenantID uuid.UUID, lines []LineInput, accts map[uuid.UUID]accounts.Account) error {
	if err := validateLineShape(lines); err != nil {
		return err
	}
	for i, line := range lines {
		account, ok := accts[line.AccountID]
		if !ok || account.TenantID != tenantID {
			return fmt.Errorf("%w: line %d account %s", shared.ErrInvalidAccount, i+1, line.AccountID)
		}
		if account.IsHeader {
			return fmt.Errorf("%w: line %d targets header account %s", shared.ErrInvalidAccount, i+1, account.Code)
		}
	}
	return nil
}

// lineAccountIDs collects the distinct account ids referenced by the lines.
func lineAccountIDs(lines []LineInput) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}
