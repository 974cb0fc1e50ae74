package messages

// ─── Orders ──────────────────────────────────────────────────────────────────

const (
	OrderCreatedTitle = "Order created"
	OrderCreatedBody  = "Your order #%s has been placed."

	OrderStatusUpdatedTitle = "Order #%s status updated"
	OrderStatusUpdatedBody  = "Order #%s is now %s."
	OrderStatusChangedBody  = "Order #%s changed from %s to %s."

	OrderTrackingAddedTitle = "Tracking update for order #%s"
	OrderTrackingAddedBody  = "Tracking number %s is now available for order #%s."
	OrderTrackingEmptyBody  = "New tracking information is available for order #%s."
)

// ─── Wholesale ───────────────────────────────────────────────────────────────

const (
	WholesaleSubmittedTitle = "Wholesale upgrade request submitted"
	WholesaleSubmittedBody  = "Your wholesale upgrade request is under review."

	WholesaleApprovedTitle = "Wholesale upgrade approved"
	WholesaleApprovedBody  = "Your account now has wholesale pricing."

	WholesaleRejectedTitle = "Wholesale upgrade rejected"
	WholesaleRejectedBody  = "Your wholesale upgrade request was not approved."
	WholesaleReasonBody    = "Your wholesale upgrade request was not approved: %s"

	WholesaleUpdatedTitle = "Wholesale request status: %s"
	WholesaleUpdatedBody  = "Your wholesale request is now %s."
)

// ─── Generic ─────────────────────────────────────────────────────────────────

const (
	GenericTitle = "Notification"
)
