package ledger

import (
	"strings"
)

// AccountCode identifies an account in the closed chart of accounts
type AccountCode string

const (
	// AccountSettlementClearing receives incoming payments before distribution
	AccountSettlementClearing AccountCode = "SETTLEMENT_CLEARING"
	// AccountReceivableGross is the receivable claim being paid down
	AccountReceivableGross AccountCode = "RECEIVABLE_GROSS"
	// AccountTaxReserveObligation holds the tax-reserve share
	AccountTaxReserveObligation AccountCode = "TAX_RESERVE_OBLIGATION"
	// AccountFundObligation holds amounts owed back to the funding pool
	AccountFundObligation AccountCode = "FUND_OBLIGATION"
	// AccountBeneficiaryObligation holds the beneficiary's excess payout
	AccountBeneficiaryObligation AccountCode = "BENEFICIARY_OBLIGATION"
	// AccountAnticipationFunding records money disbursed to anticipate receivables
	AccountAnticipationFunding AccountCode = "ANTICIPATION_FUNDING"
)

var chartOfAccounts = map[AccountCode]struct{}{
	AccountSettlementClearing:    {},
	AccountReceivableGross:       {},
	AccountTaxReserveObligation:  {},
	AccountFundObligation:        {},
	AccountBeneficiaryObligation: {},
	AccountAnticipationFunding:   {},
}

// IsValid reports whether the code belongs to the chart of accounts
func (c AccountCode) IsValid() bool {
	_, ok := chartOfAccounts[c]
	return ok
}

// String returns the string representation
func (c AccountCode) String() string {
	return string(c)
}

// EntrySide is the side of a double-entry line
type EntrySide string

const (
	Debit  EntrySide = "DEBIT"
	Credit EntrySide = "CREDIT"
)

// ParseEntrySide normalizes a side string; ok is false for anything but DEBIT/CREDIT
func ParseEntrySide(s string) (EntrySide, bool) {
	side := EntrySide(strings.ToUpper(strings.TrimSpace(s)))
	return side, side.IsValid()
}

// IsValid checks if the side is DEBIT or CREDIT
func (s EntrySide) IsValid() bool {
	return s == Debit || s == Credit
}

// Opposite flips DEBIT and CREDIT
func (s EntrySide) Opposite() EntrySide {
	if s == Debit {
		return Credit
	}
	return Debit
}

// String returns the string representation
func (s EntrySide) String() string {
	return string(s)
}
