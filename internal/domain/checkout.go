// This file defines the checkout session state machine values used while
// reconciling an external payment redirect.
package domain

// CheckoutState is the local state of an in-flight checkout reconciliation.
// It is never persisted; the poller that owns it discards it on navigation.
type CheckoutState string

const (
	// CheckoutChecking means a status poll is pending or scheduled.
	CheckoutChecking CheckoutState = "checking"

	// CheckoutPaid is terminal: the payment cleared and the subscription is
	// active. Reaching it triggers a usage ledger refresh.
	CheckoutPaid CheckoutState = "paid"

	// CheckoutExpired is terminal: the provider reported the session expired.
	CheckoutExpired CheckoutState = "expired"

	// CheckoutError is terminal: polling exhausted its attempts without a
	// definitive answer, or no session id was supplied.
	CheckoutError CheckoutState = "error"
)

// Terminal reports whether the state ends the reconciliation flow.
func (s CheckoutState) Terminal() bool {
	return s != CheckoutChecking
}

// CheckoutStatus is one poll response from the subscription status endpoint.
type CheckoutStatus struct {
	PaymentStatus string `json:"payment_status"`
	Status        string `json:"status"`
}

// Paid reports whether the provider confirmed payment.
func (s CheckoutStatus) Paid() bool { return s.PaymentStatus == "paid" }

// Expired reports whether the provider closed the session unpaid.
func (s CheckoutStatus) Expired() bool { return s.Status == "expired" }
