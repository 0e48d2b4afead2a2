package bank

import (
	"fmt"
	"math/big"
)

// AdmissionController decides whether an incoming normalized value may be
// admitted given the current aggregate and the configured cap. The decision is
// pure; it never mutates state.
type AdmissionController struct {
	ledger *Ledger
}

// NewAdmissionController binds the controller to the ledger whose aggregate it
// guards.
func NewAdmissionController(ledger *Ledger) *AdmissionController {
	return &AdmissionController{ledger: ledger}
}

// CheckAdmission reports whether admitting the incoming canonical-unit value
// keeps the aggregate within the cap. It is applied provisionally against a
// pre-trade estimate before any external conversion starts and re-applied
// against the post-trade actual before the ledger credit commits.
func (a *AdmissionController) CheckAdmission(incoming *big.Int) error {
	if a == nil || a.ledger == nil {
		return fmt.Errorf("bank: admission controller not initialised")
	}
	if incoming == nil || incoming.Sign() < 0 {
		return ErrZeroAmount
	}
	state, err := a.ledger.State()
	if err != nil {
		return err
	}
	return checkAdmission(state.TotalValue, incoming, state.Cap)
}

func checkAdmission(total, incoming, capLimit *big.Int) error {
	projected := new(big.Int).Add(total, incoming)
	if projected.Cmp(capLimit) > 0 {
		return &DepositLimitError{RequestedTotal: projected, Cap: new(big.Int).Set(capLimit)}
	}
	return nil
}
