// Package provider declares the external collaborator interfaces the core
// consumes: the payment provider, the object store proof artifacts are
// uploaded to, and the push gateway realtime fan-out delivers through.
// These are abstract per specification §6; only the contracts the core
// relies on are declared here.
package provider

import (
	"context"
	"time"
)

// IntentResult is returned by CreateAndCaptureIntent once funds are held.
type IntentResult struct {
	PaymentIntentID string
	ChargeID        string
}

// TransferResult is returned by Transfer once a release payout is accepted.
type TransferResult struct {
	TransferID string
}

// RefundResult is returned by Refund.
type RefundResult struct {
	RefundID string
}

// PaymentProvider is the payment provider's server-to-server surface: intent
// capture for funding an escrow, and transfer/refund for releasing it.
// Every call is idempotent on idempotencyKey.
type PaymentProvider interface {
	// CreateAndCaptureIntent funds an escrow for amountCents, the fund=>HELD
	// edge of the Money State Machine.
	CreateAndCaptureIntent(ctx context.Context, idempotencyKey string, amountCents int64) (IntentResult, error)
	// Transfer pays out a released escrow to its hustler.
	Transfer(ctx context.Context, idempotencyKey string, chargeID string, amountCents int64) (TransferResult, error)
	// Refund returns funds to the poster, in full or in part.
	Refund(ctx context.Context, idempotencyKey string, chargeID string, amountCents int64) (RefundResult, error)
	// LookupByIdempotencyKey lets the reaper reconcile a transitional money
	// state after a provider-call timeout by re-querying the provider's own
	// record of what, if anything, actually happened.
	LookupByIdempotencyKey(ctx context.Context, idempotencyKey string) (status string, found bool, err error)
}

// ObjectStore issues short-lived presigned upload URLs for proof artifacts;
// the core records only the resulting object key and never streams file
// bytes itself.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key string, ttl time.Duration) (url string, err error)
}

// PushGateway delivers realtime notifications to a user's active sessions.
// Delivery is deduplicated by the caller using (recipient, eventID).
type PushGateway interface {
	Send(ctx context.Context, recipientID, eventID, eventType string, payload []byte) error
}
