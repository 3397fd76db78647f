package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"habitStreakAPI/internal/streak"
)

// Checkout metadata written by the client when it starts a restore payment.
const (
	MetadataPurpose      = "purpose"
	MetadataHabitID      = "habitId"
	MetadataUserID       = "userId"
	MetadataPriceID      = "priceId"
	PurposeStreakRestore = "streak_restore"
)

// PaymentVerifier confirms that a payment reference is a settled restore
// payment for key.
type PaymentVerifier interface {
	VerifyRestorePayment(ctx context.Context, key streak.HabitKey, paymentIntentID string) (*RestorePayment, error)
}

type StripeVerifier struct {
	fetch func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func NewStripeVerifier(secretKey string) *StripeVerifier {
	sc := client.New(secretKey, nil)
	return &StripeVerifier{fetch: sc.PaymentIntents.Get}
}

func (v *StripeVerifier) VerifyRestorePayment(ctx context.Context, key streak.HabitKey, paymentIntentID string) (*RestorePayment, error) {
	if paymentIntentID == "" {
		return nil, ErrPaymentKeyRequired
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := v.fetch(paymentIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment intent: %w", err)
	}
	return restorePaymentFromIntent(pi, key)
}

func restorePaymentFromIntent(pi *stripe.PaymentIntent, key streak.HabitKey) (*RestorePayment, error) {
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: status %s", ErrPaymentNotVerified, pi.Status)
	}
	if pi.Metadata[MetadataPurpose] != PurposeStreakRestore {
		return nil, fmt.Errorf("%w: not a streak restore payment", ErrPaymentNotVerified)
	}
	if pi.Metadata[MetadataHabitID] != key.HabitID {
		return nil, fmt.Errorf("%w: payment belongs to another habit", ErrPaymentNotVerified)
	}
	if owner := pi.Metadata[MetadataUserID]; owner != "" && owner != key.OwnerID {
		return nil, fmt.Errorf("%w: payment belongs to another user", ErrPaymentNotVerified)
	}

	return &RestorePayment{
		Key:        pi.ID,
		PriceID:    pi.Metadata[MetadataPriceID],
		PriceCents: pi.Amount,
		Currency:   strings.ToUpper(string(pi.Currency)),
	}, nil
}

// RestorePaymentFromSession builds the payment for a completed checkout
// session, keyed by its payment intent ID and falling back to the session ID.
func RestorePaymentFromSession(session *stripe.CheckoutSession) RestorePayment {
	key := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		key = session.PaymentIntent.ID
	}
	return RestorePayment{
		Key:        key,
		PriceID:    session.Metadata[MetadataPriceID],
		PriceCents: session.AmountTotal,
		Currency:   strings.ToUpper(string(session.Currency)),
	}
}
