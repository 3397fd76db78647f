package services

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/store"
)

// PlanService keeps user_plans in step with Stripe subscriptions. The plan
// decides the monthly freeze quota.
type PlanService struct {
	store store.Store
}

func NewPlanService(st store.Store) *PlanService {
	return &PlanService{store: st}
}

func PlanForStatus(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return store.PlanPro
	default:
		return store.PlanFree
	}
}

func (s *PlanService) ApplySubscription(ctx context.Context, ownerID string, status stripe.SubscriptionStatus) error {
	if ownerID == "" {
		return fmt.Errorf("no user id on subscription")
	}
	plan := PlanForStatus(status)
	if err := s.store.SetPlan(ctx, ownerID, plan); err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	logger.Info("plan updated", "owner", ownerID, "plan", plan, "status", status)
	return nil
}
