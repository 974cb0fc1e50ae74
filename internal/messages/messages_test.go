package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitles(t *testing.T) {
	title, _ := OrderCreated("1")
	assert.Equal(t, "Order created", title)

	title, body := OrderStatusUpdated("42", "shipped")
	assert.Equal(t, "Order #42 status updated", title)
	assert.Equal(t, "Order #42 is now shipped.", body)

	title, body = OrderTrackingAdded("42", "")
	assert.Equal(t, "Tracking update for order #42", title)
	assert.Contains(t, body, "#42")

	title, _ = WholesaleUpdated("pending_documents")
	assert.Equal(t, "Wholesale request status: pending_documents", title)

	_, body = WholesaleRejected("missing license")
	assert.Contains(t, body, "missing license")
}
