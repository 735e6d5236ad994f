package journals

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/accounts"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateLineShape(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	cases := []struct {
		name    string
		lines   []LineInput
		wantErr error
	}{
		{
			name:    "single line rejected",
			lines:   []LineInput{{AccountID: a, Debit: amount("100")}},
			wantErr: shared.ErrTooFewLines,
		},
		{
			name: "negative amount rejected",
			lines: []LineInput{
				{AccountID: a, Debit: amount("-100")},
				{AccountID: b, Credit: amount("-100")},
			},
			wantErr: shared.ErrLineSign,
		},
		{
			name: "both sides on one line rejected",
			lines: []LineInput{
				{AccountID: a, Debit: amount("100"), Credit: amount("100")},
				{AccountID: b, Credit: amount("100")},
			},
			wantErr: shared.ErrLineSign,
		},
		{
			name: "empty line rejected",
			lines: []LineInput{
				{AccountID: a},
				{AccountID: b, Credit: amount("100")},
			},
			wantErr: shared.ErrLineSign,
		},
		{
			name: "imbalance beyond tolerance rejected",
			lines: []LineInput{
				{AccountID: a, Debit: amount("100.02")},
				{AccountID: b, Credit: amount("100.00")},
			},
			wantErr: shared.ErrUnbalanced,
		},
		{
			name: "one cent rounding slack allowed",
			lines: []LineInput{
				{AccountID: a, Debit: amount("100.01")},
				{AccountID: b, Credit: amount("100.00")},
			},
		},
		{
			name: "balanced entry accepted",
			lines: []LineInput{
				{AccountID: a, Debit: amount("250")},
				{AccountID: b, Credit: amount("250")},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateLineShape(tc.lines)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidateLinesAccountChecks(t *testing.T) {
	tenantID := uuid.New()
	cash := accounts.Account{ID: uuid.New(), TenantID: tenantID, Code: "1010", Type: accounts.AccountTypeAsset}
	revenue := accounts.Account{ID: uuid.New(), TenantID: tenantID, Code: "4000", Type: accounts.AccountTypeRevenue}
	header := accounts.Account{ID: uuid.New(), TenantID: tenantID, Code: "1000", Type: accounts.AccountTypeAsset, IsHeader: true}
	foreign := accounts.Account{ID: uuid.New(), TenantID: uuid.New(), Code: "1010", Type: accounts.AccountTypeAsset}

	accts := map[uuid.UUID]accounts.Account{
		cash.ID:    cash,
		revenue.ID: revenue,
		header.ID:  header,
		foreign.ID: foreign,
	}

	balanced := func(debitAccount, creditAccount uuid.UUID) []LineInput {
		return []LineInput{
			{AccountID: debitAccount, Debit: amount("500")},
			{AccountID: creditAccount, Credit: amount("500")},
		}
	}

	require.NoError(t, ValidateLines(tenantID, balanced(cash.ID, revenue.ID), accts))

	err := ValidateLines(tenantID, balanced(uuid.New(), revenue.ID), accts)
	require.ErrorIs(t, err, shared.ErrInvalidAccount)

	err = ValidateLines(tenantID, balanced(foreign.ID, revenue.ID), accts)
	require.ErrorIs(t, err, shared.ErrInvalidAccount)

	err = ValidateLines(tenantID, balanced(header.ID, revenue.ID), accts)
	require.ErrorIs(t, err, shared.ErrInvalidAccount)
	require.Contains(t, err.Error(), "header")
}
