package settlement

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/payout"
	"github.com/stripe/stripe-go/v76/transfer"
)

// ProviderStatus is the provider-side view of one reference.
type ProviderStatus string

const (
	ProviderUnknown   ProviderStatus = "unknown"
	ProviderPending   ProviderStatus = "pending"
	ProviderSucceeded ProviderStatus = "succeeded"
	ProviderFailed    ProviderStatus = "failed"
)

// Provider is the payment rail boundary. Every call is keyed by a stable
// reference derived from the batch or distribution ID, so a resubmission
// after a crash or timeout never creates a second money movement, and
// GetStatus can reconcile an in-doubt reference without resubmitting.
type Provider interface {
	// FundingPull debits the external bank into the holding account.
	FundingPull(ctx context.Context, reference string, amountCents int64, currency string) error
	// Transfer moves funds from the holding account to the disbursement rail.
	Transfer(ctx context.Context, reference string, amountCents int64, currency string) error
	// Payout pays one recipient from the disbursement rail.
	Payout(ctx context.Context, reference, destination string, amountCents int64, currency string) error
	// GetStatus looks up the provider-side state of a reference.
	GetStatus(ctx context.Context, reference string) (ProviderStatus, error)
}

var ErrProviderNotConfigured = errors.New("payment provider not configured")

// StripeProvider implements Provider with the Stripe Go SDK. The reference is
// carried both as the idempotency key and in metadata so GetStatus can find
// the object again.
type StripeProvider struct {
	SecretKey           string
	DisbursementAccount string // connected account receiving Transfer calls
}

func (p *StripeProvider) FundingPull(ctx context.Context, reference string, amountCents int64, currency string) error {
	if p.SecretKey == "" {
		return ErrProviderNotConfigured
	}
	stripe.Key = p.SecretKey
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		Confirm:  stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(reference)
	params.AddMetadata("reference", reference)
	_, err := paymentintent.New(params)
	return err
}

func (p *StripeProvider) Transfer(ctx context.Context, reference string, amountCents int64, currency string) error {
	if p.SecretKey == "" {
		return ErrProviderNotConfigured
	}
	stripe.Key = p.SecretKey
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(p.DisbursementAccount),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(reference)
	params.AddMetadata("reference", reference)
	_, err := transfer.New(params)
	return err
}

func (p *StripeProvider) Payout(ctx context.Context, reference, destination string, amountCents int64, currency string) error {
	if p.SecretKey == "" {
		return ErrProviderNotConfigured
	}
	stripe.Key = p.SecretKey
	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(reference)
	params.AddMetadata("reference", reference)
	_, err := payout.New(params)
	return err
}

// GetStatus scans recent payouts for the reference in metadata. Stripe has no
// lookup by idempotency key, so the metadata copy is the reconciliation hook.
func (p *StripeProvider) GetStatus(ctx context.Context, reference string) (ProviderStatus, error) {
	if p.SecretKey == "" {
		return ProviderUnknown, ErrProviderNotConfigured
	}
	stripe.Key = p.SecretKey
	params := &stripe.PayoutListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(100)
	it := payout.List(params)
	for it.Next() {
		po := it.Payout()
		if po.Metadata["reference"] != reference {
			continue
		}
		switch po.Status {
		case stripe.PayoutStatusPaid:
			return ProviderSucceeded, nil
		case stripe.PayoutStatusFailed, stripe.PayoutStatusCanceled:
			return ProviderFailed, nil
		default:
			return ProviderPending, nil
		}
	}
	if err := it.Err(); err != nil {
		return ProviderUnknown, err
	}
	return ProviderUnknown, nil
}
