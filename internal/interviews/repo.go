package interviews

import (
	"context"
	"time"
)

// Repo persists interviews and their conversations.
type Repo interface {
	Create(ctx context.Context, interview Interview) error
	GetByID(ctx context.Context, interviewID string) (Interview, error)
	ListBySession(ctx context.Context, sessionID string) ([]Interview, error)

	// AppendTurn adds a turn to the conversation without rewriting it.
	AppendTurn(ctx context.Context, interviewID string, turn Turn) error

	// MarkEnded flips an active interview to completed and records when the
	// post-interview analysis starts. It reports whether this call won the
	// flip; false means the interview was already ended.
	MarkEnded(ctx context.Context, interviewID string, endedAt time.Time) (bool, error)

	SaveAnalysis(ctx context.Context, interviewID string, analysis map[string]any) error
	SaveSuggestedAnswers(ctx context.Context, interviewID string, suggestions map[string]any) error
	MarkAnalysisFailed(ctx context.Context, interviewID string, errMsg string) error
}
