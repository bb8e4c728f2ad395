// Package settlement owns the order and payment lifecycles. Every status
// write in the repositories goes through these checks, so an order can never
// hold a status pair the tables below do not allow.
package settlement

import (
	"fmt"

	"vastra/backend/internal/domain"
)

// TransitionError reports an attempted move between two statuses that the
// lifecycle does not allow. Error() carries the stable ILLEGAL_TRANSITION
// code; From and To are surfaced separately in API responses.
type TransitionError struct {
	Field string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ILLEGAL_TRANSITION: %s %s -> %s", e.Field, e.From, e.To)
}

// orderTransitions lists the legal fulfillment moves. Forward skips are
// allowed (placed -> shipped is legal when an order is packed and handed to
// the courier in one step); delivered and cancelled are terminal.
var orderTransitions = map[string][]string{
	domain.OrderStatusPlaced: {
		domain.OrderStatusConfirmed,
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusConfirmed: {
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusShipped: {
		domain.OrderStatusDelivered,
	},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
}

// paymentTransitions lists the legal payment moves per method. UPI orders
// wait for manual verification and end paid or failed; COD orders stay
// pending until settled on delivery.
var paymentTransitions = map[string]map[string][]string{
	domain.PaymentMethodUPI: {
		domain.PaymentAwaitingVerification: {domain.PaymentPaid, domain.PaymentFailed},
	},
	domain.PaymentMethodCOD: {
		domain.PaymentPending: {domain.PaymentPaid},
	},
}

func IsOrderStatus(status string) bool {
	_, ok := orderTransitions[status]
	return ok
}

// IsTerminal reports whether no transition leaves the given order status.
func IsTerminal(status string) bool {
	targets, ok := orderTransitions[status]
	return ok && len(targets) == 0
}

// CanAdvanceOrder reports whether from -> to is a legal fulfillment move.
func CanAdvanceOrder(from string, to string) bool {
	for _, target := range orderTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// ValidateOrderTransition returns a TransitionError when from -> to is not a
// legal fulfillment move. Illegal targets are rejected, never clamped to the
// nearest legal status.
func ValidateOrderTransition(from string, to string) error {
	if !CanAdvanceOrder(from, to) {
		return &TransitionError{Field: "status", From: from, To: to}
	}
	return nil
}

// ValidatePaymentTransition returns a TransitionError when from -> to is not
// a legal payment move for the given method.
func ValidatePaymentTransition(method string, from string, to string) error {
	for _, target := range paymentTransitions[method][from] {
		if target == to {
			return nil
		}
	}
	return &TransitionError{Field: "payment_status", From: from, To: to}
}

// InitialPaymentStatus returns the payment status a new order starts in for
// the given method, or false for an unsupported method.
func InitialPaymentStatus(method string) (string, bool) {
	switch method {
	case domain.PaymentMethodUPI:
		return domain.PaymentAwaitingVerification, true
	case domain.PaymentMethodCOD:
		return domain.PaymentPending, true
	}
	return "", false
}

// CancellableByCustomer reports whether a customer may still cancel an order
// in the given status. Once an order ships, only delivery ends it.
func CancellableByCustomer(status string) bool {
	switch status {
	case domain.OrderStatusPlaced, domain.OrderStatusConfirmed, domain.OrderStatusProcessing:
		return true
	}
	return false
}

// SettlesCODOnDelivery reports whether marking the order delivered must also
// flip its payment status to paid in the same update.
func SettlesCODOnDelivery(method string, paymentStatus string) bool {
	return method == domain.PaymentMethodCOD && paymentStatus == domain.PaymentPending
}
