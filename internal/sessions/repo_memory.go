package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores sessions in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Session
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Session)}
}

func (r *MemoryRepo) Create(ctx context.Context, session Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[session.ID] = session
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	var out []Session
	for _, s := range r.byID {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Session{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

func (r *MemoryRepo) UpdateStage(ctx context.Context, sessionID, stage string, progress int) error {
	return r.update(ctx, sessionID, func(s *Session) {
		s.Stage = stage
		s.Progress = progress
	})
}

func (r *MemoryRepo) SaveResumeText(ctx context.Context, sessionID, text string) error {
	return r.update(ctx, sessionID, func(s *Session) {
		s.ResumeText = text
	})
}

func (r *MemoryRepo) SaveArtifact(ctx context.Context, sessionID, artifact string, value map[string]any) error {
	var assignErr error
	err := r.update(ctx, sessionID, func(s *Session) {
		switch artifact {
		case ArtifactResumeData:
			s.ResumeData = value
		case ArtifactJobData:
			s.JobData = value
		case ArtifactMatchResult:
			s.MatchResult = value
		case ArtifactPrepPlan:
			s.PrepPlan = value
		default:
			assignErr = fmt.Errorf("unknown artifact %q", artifact)
		}
	})
	if err != nil {
		return err
	}
	return assignErr
}

func (r *MemoryRepo) MarkProcessing(ctx context.Context, sessionID string, startedAt time.Time) error {
	return r.update(ctx, sessionID, func(s *Session) {
		s.Status = StatusProcessing
		s.StartedAt = &startedAt
	})
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, sessionID string, completedAt time.Time) error {
	return r.update(ctx, sessionID, func(s *Session) {
		s.Status = StatusCompleted
		s.Stage = StageCompleted
		s.Progress = ProgressFor(StageCompleted)
		s.ErrorCode = nil
		s.ErrorMessage = nil
		s.CompletedAt = &completedAt
	})
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, sessionID, code, message string, completedAt time.Time) error {
	return r.update(ctx, sessionID, func(s *Session) {
		s.Status = StatusFailed
		s.ErrorCode = &code
		s.ErrorMessage = &message
		s.CompletedAt = &completedAt
	})
}

func (r *MemoryRepo) update(ctx context.Context, sessionID string, apply func(*Session)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	apply(&session)
	session.UpdatedAt = time.Now().UTC()
	r.byID[sessionID] = session
	return nil
}
