// Package sandbox provides thread-safe in-memory fakes of the external
// provider interfaces, used by tests and local development in place of a
// real payment processor, object store, or push gateway.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hustlexp/core/internal/platform/idgen"
	"github.com/hustlexp/core/internal/provider"
)

// PaymentProvider is an in-memory fake that always succeeds and remembers
// its calls by idempotency key, the way the real provider's dedup layer
// would.
type PaymentProvider struct {
	mu      sync.Mutex
	intents map[string]provider.IntentResult
	xfers   map[string]provider.TransferResult
	refunds map[string]provider.RefundResult
}

// NewPaymentProvider returns an empty fake PaymentProvider.
func NewPaymentProvider() *PaymentProvider {
	return &PaymentProvider{
		intents: make(map[string]provider.IntentResult),
		xfers:   make(map[string]provider.TransferResult),
		refunds: make(map[string]provider.RefundResult),
	}
}

var _ provider.PaymentProvider = (*PaymentProvider)(nil)

func (p *PaymentProvider) CreateAndCaptureIntent(_ context.Context, key string, _ int64) (provider.IntentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.intents[key]; ok {
		return existing, nil
	}
	result := provider.IntentResult{PaymentIntentID: "pi_" + idgen.New(), ChargeID: "ch_" + idgen.New()}
	p.intents[key] = result
	return result, nil
}

func (p *PaymentProvider) Transfer(_ context.Context, key string, _ string, _ int64) (provider.TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.xfers[key]; ok {
		return existing, nil
	}
	result := provider.TransferResult{TransferID: "tr_" + idgen.New()}
	p.xfers[key] = result
	return result, nil
}

func (p *PaymentProvider) Refund(_ context.Context, key string, _ string, _ int64) (provider.RefundResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.refunds[key]; ok {
		return existing, nil
	}
	result := provider.RefundResult{RefundID: "re_" + idgen.New()}
	p.refunds[key] = result
	return result, nil
}

func (p *PaymentProvider) LookupByIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.intents[key]; ok {
		return "succeeded", true, nil
	}
	if _, ok := p.xfers[key]; ok {
		return "succeeded", true, nil
	}
	if _, ok := p.refunds[key]; ok {
		return "succeeded", true, nil
	}
	return "", false, nil
}

// ObjectStore is an in-memory fake that fabricates a presigned URL without
// talking to any real bucket.
type ObjectStore struct{}

var _ provider.ObjectStore = (*ObjectStore)(nil)

func (ObjectStore) PresignUpload(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://sandbox.local/uploads/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

// PushGateway is an in-memory fake recording every send for assertions in
// tests, deduplicating by (recipient, eventID) the way the real gateway's
// caller is expected to.
type PushGateway struct {
	mu   sync.Mutex
	sent map[string]bool
	Log  []Delivery
}

// Delivery is one recorded call to Send.
type Delivery struct {
	RecipientID string
	EventID     string
	EventType   string
	Payload     []byte
}

// NewPushGateway returns an empty fake PushGateway.
func NewPushGateway() *PushGateway {
	return &PushGateway{sent: make(map[string]bool)}
}

var _ provider.PushGateway = (*PushGateway)(nil)

func (g *PushGateway) Send(_ context.Context, recipientID, eventID, eventType string, payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	dedupKey := recipientID + "|" + eventID
	if g.sent[dedupKey] {
		return nil
	}
	g.sent[dedupKey] = true
	g.Log = append(g.Log, Delivery{RecipientID: recipientID, EventID: eventID, EventType: eventType, Payload: payload})
	return nil
}
