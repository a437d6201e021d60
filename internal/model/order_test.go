package model

import (
	"testing"
)

func TestOrderCanTransitionTo(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusDelivered, false},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusShipped, false},
		{OrderStatusCancelled, OrderStatusProcessing, false},
	}

	for _, tt := range tests {
		order := &Order{Status: tt.from}
		if got := order.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestOrderIsTerminal(t *testing.T) {
	for _, status := range []string{OrderStatusPending, OrderStatusProcessing, OrderStatusShipped} {
		order := &Order{Status: status}
		if order.IsTerminal() {
			t.Errorf("Expected %s to be non-terminal", status)
		}
	}
	for _, status := range []string{OrderStatusDelivered, OrderStatusCancelled} {
		order := &Order{Status: status}
		if !order.IsTerminal() {
			t.Errorf("Expected %s to be terminal", status)
		}
	}
}

func TestTransactionIsSettled(t *testing.T) {
	pending := &PaymentTransaction{Status: TransactionStatusPending}
	if pending.IsSettled() {
		t.Error("Expected pending transaction to be unsettled")
	}
	for _, status := range []string{TransactionStatusPaid, TransactionStatusFailed, TransactionStatusCancelled} {
		tx := &PaymentTransaction{Status: status}
		if !tx.IsSettled() {
			t.Errorf("Expected %s transaction to be settled", status)
		}
	}
}

func TestAddressString(t *testing.T) {
	full := Address{Line1: "1 Test St", Line2: "Apt 2", City: "Springfield", State: "IL", PostalCode: "62704", Country: "US"}
	want := "1 Test St, Apt 2, Springfield, IL 62704, US"
	if got := full.String(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	short := Address{Line1: "1 Test St", City: "Springfield", State: "IL", PostalCode: "62704", Country: "US"}
	want = "1 Test St, Springfield, IL 62704, US"
	if got := short.String(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
