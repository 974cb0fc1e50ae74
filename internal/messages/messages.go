package messages

import "fmt"

// ─── Order builders ──────────────────────────────────────────────────────────

func OrderCreated(orderID string) (string, string) {
	return OrderCreatedTitle, fmt.Sprintf(OrderCreatedBody, orderID)
}

func OrderStatusUpdated(orderID, status string) (string, string) {
	return fmt.Sprintf(OrderStatusUpdatedTitle, orderID), fmt.Sprintf(OrderStatusUpdatedBody, orderID, status)
}

// OrderStatusChanged is used for transitions detected by polling, where both ends are known.
func OrderStatusChanged(orderID, from, to string) (string, string) {
	return fmt.Sprintf(OrderStatusUpdatedTitle, orderID), fmt.Sprintf(OrderStatusChangedBody, orderID, from, to)
}

func OrderTrackingAdded(orderID, trackingNumber string) (string, string) {
	title := fmt.Sprintf(OrderTrackingAddedTitle, orderID)
	if trackingNumber == "" {
		return title, fmt.Sprintf(OrderTrackingEmptyBody, orderID)
	}
	return title, fmt.Sprintf(OrderTrackingAddedBody, trackingNumber, orderID)
}

// ─── Wholesale builders ──────────────────────────────────────────────────────

func WholesaleSubmitted() (string, string) {
	return WholesaleSubmittedTitle, WholesaleSubmittedBody
}

func WholesaleApproved() (string, string) {
	return WholesaleApprovedTitle, WholesaleApprovedBody
}

func WholesaleRejected(reason string) (string, string) {
	if reason == "" {
		return WholesaleRejectedTitle, WholesaleRejectedBody
	}
	return WholesaleRejectedTitle, fmt.Sprintf(WholesaleReasonBody, reason)
}

func WholesaleUpdated(status string) (string, string) {
	return fmt.Sprintf(WholesaleUpdatedTitle, status), fmt.Sprintf(WholesaleUpdatedBody, status)
}
