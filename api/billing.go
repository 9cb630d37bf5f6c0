package api

import (
	"context"

	"github.com/buildstate/fm-sync/core"
)

// BillingService exposes the read-only subscription status. Billing
// changes happen through the provider's hosted pages, not this API.
type BillingService struct {
	c *Client
}

func (s *BillingService) Subscription(ctx context.Context) (core.Doc, error) {
	const op = "billing.subscription"
	body, err := s.c.get(ctx, op, "/billing/subscription", nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "subscription")
}

func (s *BillingService) Invoices(ctx context.Context) (core.Collection, error) {
	const op = "billing.invoices"
	body, err := s.c.get(ctx, op, "/billing/invoices", nil)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "invoices")
}
