package observability

import (
	"vaultbank/core/events"
	"vaultbank/observability/metrics"
)

// EventObserver bridges the bank event stream into the metrics registry.
type EventObserver struct {
	bank *metrics.BankMetrics
}

// NewEventObserver wires the observer against the process-wide registry.
func NewEventObserver() *EventObserver {
	return &EventObserver{bank: metrics.Bank()}
}

// Emit implements the events emitter interface.
func (o *EventObserver) Emit(evt events.Event) {
	if o == nil || o.bank == nil {
		return
	}
	switch evt.EventType() {
	case events.TypeBankDeposit:
		o.bank.ObserveDeposit("ledger")
	case events.TypeBankWithdraw:
		o.bank.ObserveWithdrawal("ledger")
	case events.TypeBankSwapped:
		o.bank.ObserveConversion()
	}
}
