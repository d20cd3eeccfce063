package interviews

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"interview-backend/internal/llm"
	"interview-backend/internal/llm/structured"
	"interview-backend/internal/sessions"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/telemetry"
	"interview-backend/internal/usage"
)

const responseFallback = "[IRIS encountered an issue generating a response. Please try again.]"

const suggestedAnswersBatchSize = 3

// SessionSource looks up analysis sessions for interview bootstrapping.
type SessionSource interface {
	Get(ctx context.Context, userID, sessionID string) (sessions.Session, error)
}

// PlanResolver looks up the subscription plan for a user.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (string, error)
}

// Service runs mock interviews against completed analysis sessions.
type Service struct {
	Repo     Repo
	Sessions SessionSource
	Usage    *usage.Service
	Plans    PlanResolver
	LLM      llm.Client
}

// StartResult is what Start hands back to the HTTP layer.
type StartResult struct {
	Interview Interview
	Greeting  string
	Usage     usage.FeatureUsage
}

// Start meters and opens a new interview for a completed session. The
// greeting comes from the LLM; if that call fails the interview still starts
// with a canned opener rather than burning the user's quota on an error.
func (s *Service) Start(ctx context.Context, userID, sessionID, interviewType string) (StartResult, error) {
	if userID == "" {
		return StartResult{}, errors.New("userID is required")
	}
	if sessionID == "" {
		return StartResult{}, errors.New("sessionID is required")
	}
	interviewType = NormalizeType(interviewType)

	session, err := s.Sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return StartResult{}, err
	}
	if session.Status != sessions.StatusCompleted {
		return StartResult{}, ErrSessionNotReady
	}
	if session.ResumeData == nil || session.JobData == nil {
		return StartResult{}, ErrMissingSessionData
	}

	plan := s.resolvePlan(ctx, userID)
	access, err := s.Usage.CheckAccess(ctx, userID, plan, usage.FeatureMockInterviews)
	if err != nil {
		return StartResult{}, err
	}
	if !access.Allowed {
		return StartResult{}, usage.NewLimitError(plan, access)
	}
	used, err := s.Usage.Consume(ctx, userID, plan, usage.FeatureMockInterviews)
	if err != nil {
		return StartResult{}, err
	}

	systemPrompt := interviewerSystem(session.ResumeData, session.JobData, interviewType)
	candidateName := stringField(session.ResumeData, "name")

	greeting, err := s.LLM.Complete(ctx, greetingRequest(systemPrompt, candidateName, interviewType))
	if err != nil || strings.TrimSpace(greeting) == "" {
		if err != nil {
			telemetry.Warn("interview.greeting_fallback", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
		name := candidateName
		if name == "" {
			name = "there"
		}
		greeting = fmt.Sprintf("Hello %s. Welcome to your %s mock interview. Let's begin. Can you start by telling me a bit about yourself and your background?", name, interviewType)
	}

	now := time.Now().UTC()
	interview := Interview{
		ID:            uuid.NewString(),
		UserID:        userID,
		SessionID:     sessionID,
		InterviewType: interviewType,
		Status:        StatusActive,
		Conversation: []Turn{
			{Role: RoleInterviewer, Content: greeting, CreatedAt: now},
		},
		ResumeSnapshot: session.ResumeData,
		JobSnapshot:    session.JobData,
		AnalysisStatus: AnalysisNotStarted,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Repo.Create(ctx, interview); err != nil {
		return StartResult{}, err
	}
	metrics.IncInterviewStarted()
	telemetry.Info("interview.started", map[string]any{
		"request_id":     requestIDFromContext(ctx),
		"user_id":        userID,
		"session_id":     sessionID,
		"interview_id":   interview.ID,
		"interview_type": interviewType,
	})

	return StartResult{Interview: interview, Greeting: greeting, Usage: used}, nil
}

// Respond records the candidate's answer and produces the interviewer's next
// turn. The candidate turn is durable even when the LLM call fails; the
// fallback line keeps the conversation moving.
func (s *Service) Respond(ctx context.Context, userID, interviewID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("message is required")
	}
	interview, err := s.getOwned(ctx, userID, interviewID)
	if err != nil {
		return "", err
	}
	if interview.Status != StatusActive {
		return "", ErrNotActive
	}

	candidateTurn := Turn{Role: RoleCandidate, Content: message, CreatedAt: time.Now().UTC()}
	if err := s.Repo.AppendTurn(ctx, interviewID, candidateTurn); err != nil {
		return "", err
	}
	conversation := append(interview.Conversation, candidateTurn)

	systemPrompt := interviewerSystem(interview.ResumeSnapshot, interview.JobSnapshot, interview.InterviewType)
	start := time.Now()
	reply, err := s.LLM.Complete(ctx, nextTurnRequest(systemPrompt, conversation))
	metrics.ObserveLLMDurationMs(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			telemetry.Error("interview.turn_failed", map[string]any{
				"request_id":   requestIDFromContext(ctx),
				"interview_id": interviewID,
				"error":        err.Error(),
			})
		}
		reply = responseFallback
	}

	interviewerTurn := Turn{Role: RoleInterviewer, Content: reply, CreatedAt: time.Now().UTC()}
	if err := s.Repo.AppendTurn(ctx, interviewID, interviewerTurn); err != nil {
		telemetry.Error("interview.turn_save_failed", map[string]any{
			"interview_id": interviewID,
			"error":        err.Error(),
		})
		return "", fmt.Errorf("save interviewer turn: %w", err)
	}
	metrics.IncInterviewTurns()
	return reply, nil
}

// End closes an active interview and kicks off the transcript analysis in the
// background. Ending an already ended interview is a no-op that reports the
// current state. The repo's guarded update decides the winner when two ends
// race, so the analysis is scheduled at most once.
func (s *Service) End(ctx context.Context, userID, interviewID string) (Interview, error) {
	interview, err := s.getOwned(ctx, userID, interviewID)
	if err != nil {
		return Interview{}, err
	}

	endedAt := time.Now().UTC()
	claimed, err := s.Repo.MarkEnded(ctx, interviewID, endedAt)
	if err != nil {
		return Interview{}, err
	}
	if !claimed {
		return s.getOwned(ctx, userID, interviewID)
	}
	interview.Status = StatusCompleted
	interview.EndedAt = &endedAt
	interview.AnalysisStatus = AnalysisProcessing
	metrics.IncInterviewCompleted()
	telemetry.Info("interview.ended", map[string]any{
		"request_id":   requestIDFromContext(ctx),
		"user_id":      userID,
		"interview_id": interviewID,
		"turns":        len(interview.Conversation),
	})

	go s.analyzeAsync(backgroundWithRequestID(ctx), interview)
	return interview, nil
}

// Get returns an interview owned by the user.
func (s *Service) Get(ctx context.Context, userID, interviewID string) (Interview, error) {
	return s.getOwned(ctx, userID, interviewID)
}

// SuggestedAnswers returns cached coaching suggestions, generating them on
// demand when the background analysis did not produce any or force is set.
func (s *Service) SuggestedAnswers(ctx context.Context, userID, interviewID string, force bool) (map[string]any, error) {
	interview, err := s.getOwned(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if interview.SuggestedAnswers != nil && !force {
		return interview.SuggestedAnswers, nil
	}
	if len(interview.Conversation) == 0 || interview.ResumeSnapshot == nil || interview.JobSnapshot == nil {
		return nil, ErrMissingSessionData
	}

	suggestions, err := s.generateSuggestedAnswers(ctx, interview)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SaveSuggestedAnswers(ctx, interviewID, suggestions); err != nil {
		telemetry.Warn("interview.suggestions_cache_failed", map[string]any{
			"interview_id": interviewID,
			"error":        err.Error(),
		})
	}
	return suggestions, nil
}

// ProgressHistory summarizes all analyzed interviews linked to a session,
// oldest first, with improvement trends once there is more than one.
func (s *Service) ProgressHistory(ctx context.Context, userID, sessionID string) (ProgressHistory, error) {
	if _, err := s.Sessions.Get(ctx, userID, sessionID); err != nil {
		return ProgressHistory{}, err
	}
	interviews, err := s.Repo.ListBySession(ctx, sessionID)
	if err != nil {
		return ProgressHistory{}, err
	}

	history := ProgressHistory{Interviews: []ProgressEntry{}, Trends: map[string]any{}}
	for _, iv := range interviews {
		if iv.AnalysisStatus != AnalysisCompleted || iv.Analysis == nil || iv.EndedAt == nil {
			continue
		}
		history.Interviews = append(history.Interviews, ProgressEntry{
			Date:               *iv.EndedAt,
			InterviewID:        iv.ID,
			InterviewType:      iv.InterviewType,
			OverallScore:       intField(iv.Analysis, "overallScore"),
			TechnicalScore:     nestedScore(iv.Analysis, "technicalAssessment"),
			CommunicationScore: nestedScore(iv.Analysis, "communicationAssessment"),
			BehavioralScore:    nestedScore(iv.Analysis, "behavioralAssessment"),
		})
	}
	sort.Slice(history.Interviews, func(i, j int) bool {
		return history.Interviews[i].Date.Before(history.Interviews[j].Date)
	})

	if len(history.Interviews) > 1 {
		first := history.Interviews[0]
		latest := history.Interviews[len(history.Interviews)-1]
		days := int(latest.Date.Sub(first.Date).Hours() / 24)
		history.Trends = map[string]any{
			"totalInterviews":          len(history.Interviews),
			"overallImprovement":       latest.OverallScore - first.OverallScore,
			"technicalImprovement":     latest.TechnicalScore - first.TechnicalScore,
			"communicationImprovement": latest.CommunicationScore - first.CommunicationScore,
			"behavioralImprovement":    latest.BehavioralScore - first.BehavioralScore,
			"timespan":                 fmt.Sprintf("%d days", days),
		}
	}
	return history, nil
}

func (s *Service) getOwned(ctx context.Context, userID, interviewID string) (Interview, error) {
	if interviewID == "" {
		return Interview{}, errors.New("interviewID is required")
	}
	interview, err := s.Repo.GetByID(ctx, interviewID)
	if err != nil {
		return Interview{}, err
	}
	if interview.UserID != userID {
		return Interview{}, ErrNotFound
	}
	return interview, nil
}

func (s *Service) resolvePlan(ctx context.Context, userID string) string {
	if s.Plans == nil {
		return usage.PlanFree
	}
	plan, err := s.Plans.PlanFor(ctx, userID)
	if err != nil {
		return usage.PlanFree
	}
	return usage.NormalizePlan(plan)
}

func (s *Service) analyzeAsync(ctx context.Context, interview Interview) {
	defer func() {
		if r := recover(); r != nil {
			_ = s.Repo.MarkAnalysisFailed(context.Background(), interview.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	transcript := Transcript(interview.Conversation)

	var analysis map[string]any
	if _, err := structured.Complete(ctx, s.LLM, analysisRequest(transcript, interview.JobSnapshot, interview.ResumeSnapshot), &analysis); err != nil {
		s.failAnalysis(ctx, interview.ID, fmt.Errorf("llm analysis: %w", err))
		return
	}
	if err := s.Repo.SaveAnalysis(ctx, interview.ID, analysis); err != nil {
		s.failAnalysis(ctx, interview.ID, fmt.Errorf("save analysis: %w", err))
		return
	}

	suggestions, err := s.generateSuggestedAnswers(ctx, interview)
	if err != nil {
		// Analysis already landed; suggestions can be regenerated on demand.
		telemetry.Warn("interview.suggestions_failed", map[string]any{
			"interview_id": interview.ID,
			"error":        err.Error(),
		})
	} else if err := s.Repo.SaveSuggestedAnswers(ctx, interview.ID, suggestions); err != nil {
		telemetry.Warn("interview.suggestions_cache_failed", map[string]any{
			"interview_id": interview.ID,
			"error":        err.Error(),
		})
	}

	telemetry.Info("interview.analysis_completed", map[string]any{
		"request_id":   requestIDFromContext(ctx),
		"interview_id": interview.ID,
	})
}

func (s *Service) failAnalysis(ctx context.Context, interviewID string, err error) {
	msg := err.Error()
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	if updateErr := s.Repo.MarkAnalysisFailed(context.Background(), interviewID, msg); updateErr != nil {
		telemetry.Error("interview.analysis_fail_update_failed", map[string]any{
			"interview_id": interviewID,
			"error":        updateErr.Error(),
		})
	}
	telemetry.Error("interview.analysis_failed", map[string]any{
		"request_id":   requestIDFromContext(ctx),
		"interview_id": interviewID,
		"error":        msg,
	})
}

// generateSuggestedAnswers batches the interviewer's questions so long
// interviews stay inside the model's output window.
func (s *Service) generateSuggestedAnswers(ctx context.Context, interview Interview) (map[string]any, error) {
	questions := ExtractQuestions(interview.Conversation)
	all := []any{}
	for i := 0; i < len(questions); i += suggestedAnswersBatchSize {
		end := i + suggestedAnswersBatchSize
		if end > len(questions) {
			end = len(questions)
		}
		batch := questions[i:end]

		var parsed map[string]any
		if _, err := structured.Complete(ctx, s.LLM, suggestedAnswersRequest(batch, interview.ResumeSnapshot, interview.JobSnapshot), &parsed); err != nil {
			telemetry.Warn("interview.suggestions_batch_failed", map[string]any{
				"interview_id": interview.ID,
				"batch":        i / suggestedAnswersBatchSize,
				"error":        err.Error(),
			})
			continue
		}
		if items, ok := parsed["suggestedAnswers"].([]any); ok {
			all = append(all, items...)
		}
	}
	if len(questions) > 0 && len(all) == 0 {
		return nil, errors.New("no suggested answers generated")
	}
	return map[string]any{"suggestedAnswers": all}, nil
}

// Transcript renders the conversation the way the analysis prompts expect.
func Transcript(conversation []Turn) string {
	var b strings.Builder
	for _, turn := range conversation {
		speaker := "Candidate"
		if turn.Role == RoleInterviewer {
			speaker = "Interviewer"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExtractQuestions pulls the interviewer's actual questions out of the
// conversation, skipping closers and apologies.
func ExtractQuestions(conversation []Turn) []string {
	skips := []string{"thank you", "i apologize", "concluded", "this mock interview"}
	var out []string
	for _, turn := range conversation {
		if turn.Role != RoleInterviewer {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" || !strings.Contains(content, "?") {
			continue
		}
		lower := strings.ToLower(content)
		skip := false
		for _, marker := range skips {
			if strings.Contains(lower, marker) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, content)
		}
	}
	return out
}

func intField(obj map[string]any, key string) int {
	if obj == nil {
		return 0
	}
	switch v := obj[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func nestedScore(analysis map[string]any, section string) int {
	nested, ok := analysis[section].(map[string]any)
	if !ok {
		return 0
	}
	return intField(nested, "score")
}
