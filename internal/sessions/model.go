package sessions

import "time"

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Pipeline stages in execution order, with the progress checkpoint each one
// reports while it runs.
const (
	StageCreated    = "created"
	StageExtracting = "extracting"
	StageParsing    = "parsing"
	StageMatching   = "matching"
	StagePlanning   = "planning"
	StageCompleted  = "completed"
)

var stageProgress = map[string]int{
	StageCreated:    5,
	StageExtracting: 10,
	StageParsing:    30,
	StageMatching:   50,
	StagePlanning:   80,
	StageCompleted:  100,
}

// ProgressFor returns the checkpoint for a stage.
func ProgressFor(stage string) int {
	return stageProgress[stage]
}

// Session is one resume-analysis run through the pipeline.
type Session struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	FileName       string         `json:"fileName,omitempty"`
	StorageKey     string         `json:"-"`
	MimeType       string         `json:"-"`
	ResumeText     string         `json:"-"`
	JobDescription string         `json:"jobDescription"`
	TargetRole     string         `json:"targetRole,omitempty"`
	Status         string         `json:"status"`
	Stage          string         `json:"stage"`
	Progress       int            `json:"progress"`
	ResumeData     map[string]any `json:"resumeData,omitempty"`
	JobData        map[string]any `json:"jobData,omitempty"`
	MatchResult    map[string]any `json:"matchResult,omitempty"`
	PrepPlan       map[string]any `json:"prepPlan,omitempty"`
	ErrorCode      *string        `json:"errorCode,omitempty"`
	ErrorMessage   *string        `json:"errorMessage,omitempty"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}
