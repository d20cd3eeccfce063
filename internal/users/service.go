package users

import (
	"context"
	"errors"
	"strings"

	"interview-backend/internal/shared/telemetry"
	"interview-backend/internal/usage"
)

// ErrUnknownPlan indicates a plan name outside the sellable tiers.
var ErrUnknownPlan = errors.New("unknown plan")

// UsageResetter clears a user's metered counters after a plan change.
type UsageResetter interface {
	Reset(ctx context.Context, userID, plan string) error
}

type Service struct {
	Repo Repo

	// UsageReset, when set, is invoked after a successful plan change so the
	// new tier starts with fresh counters.
	UsageReset UsageResetter
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// UpsertFromAuth persists the user identity from OAuth to stabilize history and usage ownership.
func (s *Service) UpsertFromAuth(ctx context.Context, user User) error {
	if s == nil || s.Repo == nil {
		return errors.New("users service not configured")
	}
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return errors.New("user id and email are required")
	}
	return s.Repo.Upsert(ctx, user)
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}

// PlanFor returns the user's plan, defaulting to free for unknown users
// so guests and fresh accounts stay on the zero-cost tier.
func (s *Service) PlanFor(ctx context.Context, userID string) (string, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "free", nil
		}
		return "", err
	}
	if user.Plan == "" {
		return "free", nil
	}
	return user.Plan, nil
}

// SetPlan stores a new subscription plan for the user.
func (s *Service) SetPlan(ctx context.Context, userID, plan string) error {
	if s == nil || s.Repo == nil {
		return errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(plan) == "" {
		return errors.New("user id and plan are required")
	}
	return s.Repo.SetPlan(ctx, userID, plan)
}

// ChangePlan validates the requested tier, stores it and resets the user's
// usage counters so the new allowances apply immediately.
func (s *Service) ChangePlan(ctx context.Context, userID, plan string) (User, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if !usage.KnownPlan(plan) {
		return User{}, ErrUnknownPlan
	}
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := s.SetPlan(ctx, userID, plan); err != nil {
		return User{}, err
	}
	user.Plan = plan
	if s.UsageReset != nil {
		if err := s.UsageReset.Reset(ctx, userID, plan); err != nil {
			telemetry.Warn("users.usage_reset_failed", map[string]any{
				"user_id": userID,
				"plan":    plan,
				"error":   err.Error(),
			})
		}
	}
	return user, nil
}
