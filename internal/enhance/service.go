package enhance

import (
	"context"
	"fmt"
	"strings"

	"interview-backend/internal/llm"
	"interview-backend/internal/usage"
)

const maxContentChars = 4000

// PlanResolver looks up the subscription plan for a user.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (string, error)
}

// Result carries the rewritten section plus the caller's remaining allowance.
type Result struct {
	SectionType string
	Enhanced    string
	Usage       usage.FeatureUsage
}

// Service rewrites individual resume sections with an LLM. Each call is
// metered against the aiEnhance feature.
type Service struct {
	LLM   llm.Client
	Usage *usage.Service
	Plans PlanResolver
}

// Enhance rewrites one resume section. Access is checked before the LLM call
// and the quota unit is consumed only after a successful generation.
func (s *Service) Enhance(ctx context.Context, userID, sectionType, content string) (Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Result{}, fmt.Errorf("validation: content is required")
	}
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	plan, err := s.plan(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve plan: %w", err)
	}
	access, err := s.Usage.CheckAccess(ctx, userID, plan, usage.FeatureAIEnhance)
	if err != nil {
		return Result{}, fmt.Errorf("check access: %w", err)
	}
	if !access.Allowed {
		return Result{}, usage.NewLimitError(plan, access)
	}

	enhanced, err := s.LLM.Complete(ctx, enhancePrompt(sectionType, content))
	if err != nil {
		return Result{}, fmt.Errorf("enhance %s: %w", normalizeSection(sectionType), err)
	}
	enhanced = strings.TrimSpace(enhanced)
	if enhanced == "" {
		return Result{}, fmt.Errorf("enhance %s: empty completion", normalizeSection(sectionType))
	}

	fu, err := s.Usage.Consume(ctx, userID, plan, usage.FeatureAIEnhance)
	if err != nil {
		return Result{}, fmt.Errorf("record usage: %w", err)
	}
	return Result{
		SectionType: normalizeSection(sectionType),
		Enhanced:    enhanced,
		Usage:       fu,
	}, nil
}

func (s *Service) plan(ctx context.Context, userID string) (string, error) {
	if s.Plans == nil {
		return usage.PlanFree, nil
	}
	plan, err := s.Plans.PlanFor(ctx, userID)
	if err != nil {
		return "", err
	}
	return usage.NormalizePlan(plan), nil
}
