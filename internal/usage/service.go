package usage

import "context"

type store interface {
	Get(ctx context.Context, userID, plan string) (map[string]FeatureUsage, error)
	Increment(ctx context.Context, userID, plan, feature string, n int) (FeatureUsage, error)
	Grant(ctx context.Context, userID, plan, feature string, delta int) (FeatureUsage, error)
	Reset(ctx context.Context, userID, plan string) error
}

// Service meters feature consumption via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Get returns the user's full usage snapshot, creating any missing feature
// counters from the plan defaults.
func (s *Service) Get(ctx context.Context, userID, plan string) (Snapshot, error) {
	plan = NormalizePlan(plan)
	features, err := s.store.Get(ctx, userID, plan)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Plan: plan, Features: features}, nil
}

// CheckAccess reports whether the user may consume one unit of the feature.
func (s *Service) CheckAccess(ctx context.Context, userID, plan, feature string) (Access, error) {
	if !KnownFeature(feature) {
		return Access{}, ErrUnknownFeature
	}
	snap, err := s.Get(ctx, userID, plan)
	if err != nil {
		return Access{}, err
	}
	fu := snap.Features[feature]
	return Access{
		Feature:   feature,
		Allowed:   fu.Used < fu.Limit,
		Used:      fu.Used,
		Limit:     fu.Limit,
		Remaining: fu.Remaining(),
	}, nil
}

// Consume atomically increments a feature counter and returns the new state.
// It does not re-check the limit; callers gate with CheckAccess first, and a
// concurrent burst can overshoot by the number of in-flight requests.
func (s *Service) Consume(ctx context.Context, userID, plan, feature string) (FeatureUsage, error) {
	if !KnownFeature(feature) {
		return FeatureUsage{}, ErrUnknownFeature
	}
	return s.store.Increment(ctx, userID, NormalizePlan(plan), feature, 1)
}

// Grant raises a feature limit by delta, used for add-on purchases.
func (s *Service) Grant(ctx context.Context, userID, plan, feature string, delta int) (FeatureUsage, error) {
	if !KnownFeature(feature) {
		return FeatureUsage{}, ErrUnknownFeature
	}
	if delta <= 0 {
		snap, err := s.Get(ctx, userID, plan)
		if err != nil {
			return FeatureUsage{}, err
		}
		return snap.Features[feature], nil
	}
	return s.store.Grant(ctx, userID, NormalizePlan(plan), feature, delta)
}

// Reset restores all counters to plan defaults.
func (s *Service) Reset(ctx context.Context, userID, plan string) error {
	return s.store.Reset(ctx, userID, NormalizePlan(plan))
}
