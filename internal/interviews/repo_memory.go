package interviews

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores interviews in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Interview
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Interview)}
}

func (r *MemoryRepo) Create(ctx context.Context, interview Interview) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[interview.ID] = cloneInterview(interview)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, interviewID string) (Interview, error) {
	if err := ctx.Err(); err != nil {
		return Interview{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	interview, ok := r.byID[interviewID]
	if !ok {
		return Interview{}, ErrNotFound
	}
	return cloneInterview(interview), nil
}

func (r *MemoryRepo) ListBySession(ctx context.Context, sessionID string) ([]Interview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []Interview
	for _, iv := range r.byID {
		if iv.SessionID == sessionID {
			out = append(out, cloneInterview(iv))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (r *MemoryRepo) AppendTurn(ctx context.Context, interviewID string, turn Turn) error {
	return r.update(ctx, interviewID, func(iv *Interview) {
		iv.Conversation = append(iv.Conversation, turn)
	})
}

func (r *MemoryRepo) MarkEnded(ctx context.Context, interviewID string, endedAt time.Time) (bool, error) {
	claimed := false
	err := r.update(ctx, interviewID, func(iv *Interview) {
		if iv.Status != StatusActive {
			return
		}
		claimed = true
		iv.Status = StatusCompleted
		iv.EndedAt = &endedAt
		iv.AnalysisStatus = AnalysisProcessing
	})
	return claimed, err
}

func (r *MemoryRepo) SaveAnalysis(ctx context.Context, interviewID string, analysis map[string]any) error {
	return r.update(ctx, interviewID, func(iv *Interview) {
		iv.Analysis = analysis
		iv.AnalysisStatus = AnalysisCompleted
		iv.AnalysisError = nil
	})
}

func (r *MemoryRepo) SaveSuggestedAnswers(ctx context.Context, interviewID string, suggestions map[string]any) error {
	return r.update(ctx, interviewID, func(iv *Interview) {
		iv.SuggestedAnswers = suggestions
	})
}

func (r *MemoryRepo) MarkAnalysisFailed(ctx context.Context, interviewID string, errMsg string) error {
	return r.update(ctx, interviewID, func(iv *Interview) {
		iv.AnalysisStatus = AnalysisFailed
		iv.AnalysisError = &errMsg
	})
}

func (r *MemoryRepo) update(ctx context.Context, interviewID string, apply func(*Interview)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	interview, ok := r.byID[interviewID]
	if !ok {
		return ErrNotFound
	}
	apply(&interview)
	interview.UpdatedAt = time.Now().UTC()
	r.byID[interviewID] = interview
	return nil
}

func cloneInterview(iv Interview) Interview {
	out := iv
	out.Conversation = append([]Turn(nil), iv.Conversation...)
	return out
}
