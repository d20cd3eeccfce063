package usage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]FeatureUsage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]map[string]FeatureUsage)}
}

// ensure creates missing feature counters at plan defaults. Existing counters
// are left untouched so purchased limit bumps survive.
func (s *memoryStore) ensure(userID, plan string) map[string]FeatureUsage {
	features, ok := s.data[userID]
	if !ok {
		features = make(map[string]FeatureUsage)
		s.data[userID] = features
	}
	for feature, limit := range PlanLimits(plan) {
		if _, ok := features[feature]; !ok {
			features[feature] = FeatureUsage{Used: 0, Limit: limit}
		}
	}
	return features
}

func (s *memoryStore) Get(ctx context.Context, userID, plan string) (map[string]FeatureUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	features := s.ensure(userID, plan)
	out := make(map[string]FeatureUsage, len(features))
	for k, v := range features {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) Increment(ctx context.Context, userID, plan, feature string, n int) (FeatureUsage, error) {
	if err := ctx.Err(); err != nil {
		return FeatureUsage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	features := s.ensure(userID, plan)
	fu := features[feature]
	fu.Used += n
	features[feature] = fu
	return fu, nil
}

func (s *memoryStore) Grant(ctx context.Context, userID, plan, feature string, delta int) (FeatureUsage, error) {
	if err := ctx.Err(); err != nil {
		return FeatureUsage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	features := s.ensure(userID, plan)
	fu := features[feature]
	fu.Limit += delta
	features[feature] = fu
	return fu, nil
}

func (s *memoryStore) Reset(ctx context.Context, userID, plan string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	features := make(map[string]FeatureUsage)
	for feature, limit := range PlanLimits(plan) {
		features[feature] = FeatureUsage{Used: 0, Limit: limit}
	}
	s.data[userID] = features
	return nil
}
