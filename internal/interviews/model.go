package interviews

import "time"

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	AnalysisNotStarted = "not_started"
	AnalysisProcessing = "processing"
	AnalysisCompleted  = "completed"
	AnalysisFailed     = "failed"
)

const (
	TypeGeneral    = "general"
	TypeTechnical  = "technical"
	TypeBehavioral = "behavioral"
)

// NormalizeType maps unknown interview types to general.
func NormalizeType(interviewType string) string {
	switch interviewType {
	case TypeTechnical, TypeBehavioral:
		return interviewType
	default:
		return TypeGeneral
	}
}

const (
	RoleInterviewer = "interviewer"
	RoleCandidate   = "candidate"
)

// Turn is a single exchange in the interview conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Interview is a mock interview run against a completed analysis session.
// ResumeSnapshot and JobSnapshot freeze the session artifacts at start time
// so later edits to the session cannot shift the interviewer's context.
type Interview struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	SessionID        string         `json:"sessionId"`
	InterviewType    string         `json:"interviewType"`
	Status           string         `json:"status"`
	Conversation     []Turn         `json:"conversation"`
	ResumeSnapshot   map[string]any `json:"-"`
	JobSnapshot      map[string]any `json:"-"`
	AnalysisStatus   string         `json:"analysisStatus"`
	Analysis         map[string]any `json:"analysis,omitempty"`
	AnalysisError    *string        `json:"analysisError,omitempty"`
	SuggestedAnswers map[string]any `json:"suggestedAnswers,omitempty"`
	StartedAt        time.Time      `json:"startedAt"`
	EndedAt          *time.Time     `json:"endedAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// ProgressEntry summarizes one completed interview for trend tracking.
type ProgressEntry struct {
	Date               time.Time `json:"date"`
	InterviewID        string    `json:"interviewId"`
	InterviewType      string    `json:"interviewType"`
	OverallScore       int       `json:"overallScore"`
	TechnicalScore     int       `json:"technicalScore"`
	CommunicationScore int       `json:"communicationScore"`
	BehavioralScore    int       `json:"behavioralScore"`
}

// ProgressHistory is the per-session interview track record.
type ProgressHistory struct {
	Interviews []ProgressEntry `json:"interviews"`
	Trends     map[string]any  `json:"trends"`
}
