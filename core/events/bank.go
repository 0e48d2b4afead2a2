package events

import (
	"encoding/hex"
	"math/big"
)

const (
	// TypeBankDeposit is emitted whenever the ledger credits an owner balance.
	TypeBankDeposit = "bank.deposit"
	// TypeBankWithdraw is emitted whenever a withdrawal completes, custody
	// transfer included.
	TypeBankWithdraw = "bank.withdraw"
	// TypeBankCapUpdated is emitted when an administrator changes the bank cap.
	TypeBankCapUpdated = "bank.cap_updated"
	// TypeBankSwapped is emitted when an incoming asset has been converted into
	// the canonical accounting unit via the external venue.
	TypeBankSwapped = "bank.swapped_to_canonical"
)

// BankDeposit captures a completed ledger credit.
type BankDeposit struct {
	Owner  [20]byte
	Asset  [20]byte
	Amount *big.Int
}

func (BankDeposit) EventType() string { return TypeBankDeposit }

func (e BankDeposit) Attributes() map[string]string {
	return map[string]string{
		"owner":  hex.EncodeToString(e.Owner[:]),
		"asset":  hex.EncodeToString(e.Asset[:]),
		"amount": formatAmount(e.Amount),
	}
}

// BankWithdraw captures a completed ledger debit and outbound transfer.
type BankWithdraw struct {
	Owner  [20]byte
	Asset  [20]byte
	Amount *big.Int
}

func (BankWithdraw) EventType() string { return TypeBankWithdraw }

func (e BankWithdraw) Attributes() map[string]string {
	return map[string]string{
		"owner":  hex.EncodeToString(e.Owner[:]),
		"asset":  hex.EncodeToString(e.Asset[:]),
		"amount": formatAmount(e.Amount),
	}
}

// BankCapUpdated records both the previous and the new aggregate cap.
type BankCapUpdated struct {
	OldCap *big.Int
	NewCap *big.Int
}

func (BankCapUpdated) EventType() string { return TypeBankCapUpdated }

func (e BankCapUpdated) Attributes() map[string]string {
	return map[string]string{
		"oldCap": formatAmount(e.OldCap),
		"newCap": formatAmount(e.NewCap),
	}
}

// BankSwapped records a completed conversion of an incoming asset into the
// canonical unit. AssetIn is the zero asset for native-value deposits.
type BankSwapped struct {
	Owner        [20]byte
	AssetIn      [20]byte
	AmountIn     *big.Int
	CanonicalOut *big.Int
}

func (BankSwapped) EventType() string { return TypeBankSwapped }

func (e BankSwapped) Attributes() map[string]string {
	return map[string]string{
		"owner":        hex.EncodeToString(e.Owner[:]),
		"assetIn":      hex.EncodeToString(e.AssetIn[:]),
		"amountIn":     formatAmount(e.AmountIn),
		"canonicalOut": formatAmount(e.CanonicalOut),
	}
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
