package handlers

import (
	"encoding/json"

	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/messages"
)

func init() {
	Register("wholesale_request_submitted", handleWholesaleSubmitted)
	Register("wholesale_approved", handleWholesaleApproved)
	Register("wholesale_rejected", handleWholesaleRejected)
	Register("wholesale_request_updated", handleWholesaleUpdated)
}

func requestID(f fields) string {
	return f.str("request_id", "requestId", "id", "user_id", "userId")
}

func handleWholesaleSubmitted(event string, payload json.RawMessage) *domain.Record {
	f, ok := parsePayload(payload)
	if !ok {
		return nil
	}
	id := requestID(f)
	title, body := messages.WholesaleSubmitted()
	return f.record(event, domain.TypeWholesaleSubmitted,
		domain.RecordID(event, id), title, body,
		f.meta(event, map[string]any{"request_id": id}),
	)
}

func handleWholesaleApproved(event string, payload json.RawMessage) *domain.Record {
	f, ok := parsePayload(payload)
	if !ok {
		return nil
	}
	id := requestID(f)
	title, body := messages.WholesaleApproved()
	return f.record(event, domain.TypeWholesaleApproved,
		domain.RecordID(event, id), title, body,
		f.meta(event, map[string]any{"request_id": id}),
	)
}

func handleWholesaleRejected(event string, payload json.RawMessage) *domain.Record {
	f, ok := parsePayload(payload)
	if !ok {
		return nil
	}
	id := requestID(f)
	reason := f.str("reason", "rejection_reason", "rejectionReason")
	title, body := messages.WholesaleRejected(reason)
	return f.record(event, domain.TypeWholesaleRejected,
		domain.RecordID(event, id), title, body,
		f.meta(event, map[string]any{"request_id": id, "reason": reason}),
	)
}

func handleWholesaleUpdated(event string, payload json.RawMessage) *domain.Record {
	f, ok := parsePayload(payload)
	if !ok {
		return nil
	}
	id := requestID(f)
	status := domain.NormalizeStatus(f.str("status"))
	if status == "" {
		return nil
	}
	title, body := messages.WholesaleUpdated(status)
	return f.record(event, domain.TypeWholesaleUpdate,
		domain.RecordID(event, id, status), title, body,
		f.meta(event, map[string]any{"request_id": id, "status": status}),
	)
}
