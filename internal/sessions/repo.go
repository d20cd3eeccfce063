package sessions

import (
	"context"
	"time"
)

// Artifact column names accepted by SaveArtifact.
const (
	ArtifactResumeData  = "resume_data"
	ArtifactJobData     = "job_data"
	ArtifactMatchResult = "match_result"
	ArtifactPrepPlan    = "prep_plan"
)

// Repo defines persistence operations for analysis sessions.
type Repo interface {
	Create(ctx context.Context, session Session) error
	GetByID(ctx context.Context, sessionID string) (Session, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Session, error)
	UpdateStage(ctx context.Context, sessionID, stage string, progress int) error
	SaveResumeText(ctx context.Context, sessionID, text string) error
	SaveArtifact(ctx context.Context, sessionID, artifact string, value map[string]any) error
	MarkProcessing(ctx context.Context, sessionID string, startedAt time.Time) error
	MarkCompleted(ctx context.Context, sessionID string, completedAt time.Time) error
	MarkFailed(ctx context.Context, sessionID, code, message string, completedAt time.Time) error
}
