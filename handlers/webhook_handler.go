package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/streak"
	"habitStreakAPI/services"
)

type WebhookHandler struct {
	habitService   *services.HabitService
	planService    *services.PlanService
	endpointSecret string
}

func NewWebhookHandler(habitService *services.HabitService, planService *services.PlanService, endpointSecret string) *WebhookHandler {
	return &WebhookHandler{
		habitService:   habitService,
		planService:    planService,
		endpointSecret: endpointSecret,
	}
}

// HandleStripeWebhook processes events sent by Stripe
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("error reading webhook body", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	if h.endpointSecret == "" {
		logger.Error("STRIPE_WEBHOOK_SECRET is not set")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.endpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn("error verifying webhook signature", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			logger.Error("error parsing checkout session", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := h.handleCheckoutSessionCompleted(ctx, &session); err != nil {
			logger.Error("error handling checkout.session.completed", "session", session.ID, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			logger.Error("error parsing subscription", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := h.planService.ApplySubscription(ctx, sub.Metadata[services.MetadataUserID], sub.Status); err != nil {
			logger.Error("error handling subscription update", "subscription", sub.ID, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

	default:
		logger.Debug("unhandled stripe event", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

// handleCheckoutSessionCompleted applies restore purchases. Outcomes that a
// retry cannot change are logged and acknowledged.
func (h *WebhookHandler) handleCheckoutSessionCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	if session.Metadata[services.MetadataPurpose] != services.PurposeStreakRestore {
		if session.Subscription != nil && session.Metadata[services.MetadataUserID] != "" {
			return h.planService.ApplySubscription(ctx, session.Metadata[services.MetadataUserID], stripe.SubscriptionStatusActive)
		}
		return nil
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		logger.Warn("restore checkout not paid", "session", session.ID, "status", session.PaymentStatus)
		return nil
	}

	key := streak.HabitKey{
		OwnerID: session.Metadata[services.MetadataUserID],
		HabitID: session.Metadata[services.MetadataHabitID],
	}
	if key.OwnerID == "" || key.HabitID == "" {
		return fmt.Errorf("restore session %s is missing %s or %s metadata", session.ID, services.MetadataUserID, services.MetadataHabitID)
	}

	res, err := h.habitService.Restore(ctx, key, services.RestorePaymentFromSession(session))
	switch {
	case errors.Is(err, services.ErrHabitNotFound), errors.Is(err, services.ErrNoStreakToRestore):
		logger.Warn("restore payment could not be applied", "session", session.ID, "owner", key.OwnerID, "habit", key.HabitID, "error", err)
		return nil
	case err != nil:
		return err
	}

	logger.Info("restore checkout processed", "session", session.ID, "duplicate", res.Duplicate)
	return nil
}
