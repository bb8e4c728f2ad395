package settlement

import (
	"errors"
	"testing"

	"vastra/backend/internal/domain"
)

func TestOrderTransitions(t *testing.T) {
	cases := []struct {
		from  string
		to    string
		legal bool
	}{
		{domain.OrderStatusPlaced, domain.OrderStatusConfirmed, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusProcessing, true},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},

		// Forward skips are legal.
		{domain.OrderStatusPlaced, domain.OrderStatusShipped, true},
		{domain.OrderStatusPlaced, domain.OrderStatusDelivered, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusDelivered, true},

		// Cancellation only before shipment.
		{domain.OrderStatusPlaced, domain.OrderStatusCancelled, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled, true},
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, false},

		// No moving backwards.
		{domain.OrderStatusShipped, domain.OrderStatusProcessing, false},
		{domain.OrderStatusConfirmed, domain.OrderStatusPlaced, false},

		// Unknown statuses never transition.
		{"queued", domain.OrderStatusShipped, false},
		{domain.OrderStatusPlaced, "queued", false},
	}

	for _, tc := range cases {
		if got := CanAdvanceOrder(tc.from, tc.to); got != tc.legal {
			t.Errorf("CanAdvanceOrder(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.legal)
		}
	}
}

func TestDeliveredIsTerminal(t *testing.T) {
	if !IsTerminal(domain.OrderStatusDelivered) {
		t.Fatalf("expected delivered to be terminal")
	}
	for _, to := range []string{
		domain.OrderStatusPlaced,
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusCancelled,
	} {
		if CanAdvanceOrder(domain.OrderStatusDelivered, to) {
			t.Fatalf("delivered must not transition to %s", to)
		}
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	if !IsTerminal(domain.OrderStatusCancelled) {
		t.Fatalf("expected cancelled to be terminal")
	}
	if CanAdvanceOrder(domain.OrderStatusCancelled, domain.OrderStatusPlaced) {
		t.Fatalf("cancelled must not transition back to placed")
	}
}

func TestValidateOrderTransitionReturnsTypedError(t *testing.T) {
	err := ValidateOrderTransition(domain.OrderStatusDelivered, domain.OrderStatusShipped)
	if err == nil {
		t.Fatalf("expected error")
	}

	var transitionErr *TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected TransitionError, got %T", err)
	}
	if transitionErr.From != domain.OrderStatusDelivered || transitionErr.To != domain.OrderStatusShipped {
		t.Fatalf("unexpected from/to: %s -> %s", transitionErr.From, transitionErr.To)
	}
}

func TestInitialPaymentStatus(t *testing.T) {
	status, ok := InitialPaymentStatus(domain.PaymentMethodUPI)
	if !ok || status != domain.PaymentAwaitingVerification {
		t.Fatalf("expected upi to start awaiting_verification, got %s (%v)", status, ok)
	}

	status, ok = InitialPaymentStatus(domain.PaymentMethodCOD)
	if !ok || status != domain.PaymentPending {
		t.Fatalf("expected cod to start pending, got %s (%v)", status, ok)
	}

	if _, ok := InitialPaymentStatus("card"); ok {
		t.Fatalf("expected card to be unsupported")
	}
}

func TestPaymentTransitions(t *testing.T) {
	if err := ValidatePaymentTransition(domain.PaymentMethodUPI, domain.PaymentAwaitingVerification, domain.PaymentPaid); err != nil {
		t.Fatalf("upi approve should be legal: %v", err)
	}
	if err := ValidatePaymentTransition(domain.PaymentMethodUPI, domain.PaymentAwaitingVerification, domain.PaymentFailed); err != nil {
		t.Fatalf("upi reject should be legal: %v", err)
	}
	if err := ValidatePaymentTransition(domain.PaymentMethodUPI, domain.PaymentPaid, domain.PaymentFailed); err == nil {
		t.Fatalf("paid upi order must not become failed")
	}
	if err := ValidatePaymentTransition(domain.PaymentMethodCOD, domain.PaymentPending, domain.PaymentPaid); err != nil {
		t.Fatalf("cod settlement should be legal: %v", err)
	}
	if err := ValidatePaymentTransition(domain.PaymentMethodCOD, domain.PaymentPending, domain.PaymentFailed); err == nil {
		t.Fatalf("cod order must not become failed")
	}
}

func TestCancellableByCustomer(t *testing.T) {
	for _, status := range []string{domain.OrderStatusPlaced, domain.OrderStatusConfirmed, domain.OrderStatusProcessing} {
		if !CancellableByCustomer(status) {
			t.Errorf("expected %s to be cancellable", status)
		}
	}
	for _, status := range []string{domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled} {
		if CancellableByCustomer(status) {
			t.Errorf("expected %s to not be cancellable", status)
		}
	}
}

func TestSettlesCODOnDelivery(t *testing.T) {
	if !SettlesCODOnDelivery(domain.PaymentMethodCOD, domain.PaymentPending) {
		t.Fatalf("pending cod order must settle on delivery")
	}
	if SettlesCODOnDelivery(domain.PaymentMethodUPI, domain.PaymentAwaitingVerification) {
		t.Fatalf("upi order must not settle on delivery")
	}
	if SettlesCODOnDelivery(domain.PaymentMethodCOD, domain.PaymentPaid) {
		t.Fatalf("already-paid cod order must not settle twice")
	}
}
