package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"interview-backend/internal/extract"
	"interview-backend/internal/llm"
	"interview-backend/internal/llm/structured"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/storage/object"
	"interview-backend/internal/shared/telemetry"
	"interview-backend/internal/usage"
)

const minResumeChars = 50

// PlanResolver looks up the subscription plan for a user.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (string, error)
}

// Service runs the resume analysis pipeline.
type Service struct {
	Repo       Repo
	Usage      *usage.Service
	Plans      PlanResolver
	LLM        llm.Client
	Store      object.ObjectStore
	JobQueue   queue.Client
	StaleAfter time.Duration
}

// CreateInput carries the inputs for a new session. Either FileData or
// ResumeText must be set.
type CreateInput struct {
	FileName       string
	FileData       []byte
	MimeType       string
	ResumeText     string
	JobDescription string
	TargetRole     string
}

// Create meters, persists, and starts a new analysis session. When a job
// queue is configured the pipeline runs on the worker; otherwise it runs in
// this process.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (Session, error) {
	if userID == "" {
		return Session{}, errors.New("userID is required")
	}
	if strings.TrimSpace(in.JobDescription) == "" {
		return Session{}, fmt.Errorf("validation: job description is required")
	}

	plan := s.resolvePlan(ctx, userID)
	if s.Usage != nil {
		access, err := s.Usage.CheckAccess(ctx, userID, plan, usage.FeatureResumeAnalyses)
		if err != nil {
			return Session{}, err
		}
		if !access.Allowed {
			return Session{}, usage.NewLimitError(plan, access)
		}
	}

	// With a store the upload is staged and text extraction runs on the
	// worker; without one the text is extracted here.
	resumeText := in.ResumeText
	storageKey := ""
	if len(in.FileData) > 0 {
		if s.Store != nil {
			key, _, _, err := s.Store.Save(ctx, userID, in.FileName, bytes.NewReader(in.FileData))
			if err != nil {
				return Session{}, fmt.Errorf("stage upload: %w", err)
			}
			storageKey = key
			resumeText = ""
		} else {
			text, err := extract.ExtractTextFromBytes(ctx, in.FileData, in.MimeType, in.FileName)
			if err != nil {
				return Session{}, fmt.Errorf("validation: %w", err)
			}
			resumeText = text
		}
	}
	if storageKey == "" && strings.TrimSpace(resumeText) == "" {
		return Session{}, fmt.Errorf("validation: resume text is required")
	}

	if s.Usage != nil {
		if _, err := s.Usage.Consume(ctx, userID, plan, usage.FeatureResumeAnalyses); err != nil {
			s.discardStaged(ctx, storageKey)
			return Session{}, err
		}
	}

	session := Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		FileName:       in.FileName,
		StorageKey:     storageKey,
		MimeType:       in.MimeType,
		ResumeText:     resumeText,
		JobDescription: in.JobDescription,
		TargetRole:     in.TargetRole,
		Status:         StatusQueued,
		Stage:          StageCreated,
		Progress:       ProgressFor(StageCreated),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, session); err != nil {
		s.discardStaged(ctx, storageKey)
		return Session{}, err
	}

	if s.JobQueue != nil {
		msg := queue.Message{
			SessionID:  session.ID,
			RequestID:  requestIDFromContext(ctx),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.JobQueue.Send(ctx, msg); err != nil {
			telemetry.Error("session.enqueue_failed", map[string]any{
				"session_id": session.ID,
				"error":      err.Error(),
			})
			go s.processAsync(backgroundWithRequestID(ctx), session.ID)
		}
	} else {
		go s.processAsync(backgroundWithRequestID(ctx), session.ID)
	}

	return session, nil
}

// Get returns a session owned by the user.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, errors.New("sessionID is required")
	}
	session, err := s.Repo.GetByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if session.UserID != userID {
		return Session{}, ErrNotFound
	}
	return session, nil
}

// List returns sessions for a user ordered newest-first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Session, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// Stalled reports whether a processing session has gone quiet for longer
// than the configured staleness window. The run may still finish; this only
// surfaces doubt to pollers.
func (s *Service) Stalled(session Session, now time.Time) bool {
	if session.Status != StatusProcessing {
		return false
	}
	staleAfter := s.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return now.Sub(session.UpdatedAt) > staleAfter
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

// discardStaged removes a staged upload. Missing keys and missing stores are
// no-ops; delete failures are logged, not returned.
func (s *Service) discardStaged(ctx context.Context, storageKey string) {
	if storageKey == "" || s.Store == nil {
		return
	}
	if err := s.Store.Delete(ctx, storageKey); err != nil {
		telemetry.Error("session.upload.cleanup_failed", map[string]any{
			"storage_key": storageKey,
			"error":       err.Error(),
		})
	}
}

func (s *Service) processAsync(ctx context.Context, sessionID string) {
	defer func() {
		if r := recover(); r != nil {
			s.failSession(ctx, sessionID, "", fmt.Errorf("panic: %v", r), nil)
		}
	}()
	_ = s.ProcessSession(ctx, sessionID)
}

// ProcessSession runs the full pipeline for a queued session. Failures are
// persisted on the session before the error is returned. The staged upload,
// when one exists, is removed exactly once whichever way the run ends.
func (s *Service) ProcessSession(ctx context.Context, sessionID string) error {
	startedAt := time.Now().UTC()
	session, err := s.Repo.GetByID(ctx, sessionID)
	if err != nil {
		err = fmt.Errorf("session lookup: %w", err)
		s.failSession(ctx, sessionID, "", err, &startedAt)
		return err
	}
	defer s.discardStaged(context.WithoutCancel(ctx), session.StorageKey)

	if err := s.Repo.MarkProcessing(ctx, sessionID, startedAt); err != nil {
		err = fmt.Errorf("set processing failed: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	metrics.IncSessionStarted()
	s.logStatus(ctx, session, StatusProcessing, "queued->processing", nil)

	if s.LLM == nil {
		err := errors.New("missing llm client")
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}

	if err := s.advance(ctx, sessionID, StageExtracting); err != nil {
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	if strings.TrimSpace(session.ResumeText) == "" && session.StorageKey != "" {
		if s.Store == nil {
			err := errors.New("validation: staged upload without object store")
			s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
			return err
		}
		text, err := extract.ExtractText(ctx, s.Store, session.StorageKey, session.MimeType, session.FileName)
		if err != nil {
			err = fmt.Errorf("validation: %w", err)
			s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
			return err
		}
		if err := s.Repo.SaveResumeText(ctx, sessionID, text); err != nil {
			err = fmt.Errorf("save resume text: %w", err)
			s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
			return err
		}
		session.ResumeText = text
	}
	resumeText := normalizeWhitespace(session.ResumeText)
	if len(resumeText) < minResumeChars {
		err := fmt.Errorf("validation: resume text too short (%d chars)", len(resumeText))
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}

	if err := s.advance(ctx, sessionID, StageParsing); err != nil {
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	var resumeData map[string]any
	if _, err := structured.Complete(ctx, s.LLM, parseResumePrompt(resumeText), &resumeData); err != nil {
		err = fmt.Errorf("llm parse resume: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	if name, _ := resumeData["name"].(string); strings.TrimSpace(name) == "" {
		err := errors.New("llm output invalid: resume data missing name")
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	if err := s.Repo.SaveArtifact(ctx, sessionID, ArtifactResumeData, resumeData); err != nil {
		err = fmt.Errorf("save resume data: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}

	var jobData map[string]any
	if _, err := structured.Complete(ctx, s.LLM, parseJobPrompt(session.JobDescription, session.TargetRole), &jobData); err != nil {
		err = fmt.Errorf("llm parse job: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	if err := s.Repo.SaveArtifact(ctx, sessionID, ArtifactJobData, jobData); err != nil {
		err = fmt.Errorf("save job data: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}

	if err := s.advance(ctx, sessionID, StageMatching); err != nil {
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	var matchResult map[string]any
	if _, err := structured.Complete(ctx, s.LLM, matchPrompt(compact(resumeData), compact(jobData)), &matchResult); err != nil {
		err = fmt.Errorf("llm match: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	// A degraded match carries an "error" key instead of scores. Persist it
	// for diagnosis, then fail the session.
	if degraded, _ := matchResult["error"].(string); strings.TrimSpace(degraded) != "" {
		_ = s.Repo.SaveArtifact(ctx, sessionID, ArtifactMatchResult, matchResult)
		err := fmt.Errorf("llm output invalid: match degraded: %s", degraded)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	if err := s.Repo.SaveArtifact(ctx, sessionID, ArtifactMatchResult, matchResult); err != nil {
		err = fmt.Errorf("save match result: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}

	if err := s.advance(ctx, sessionID, StagePlanning); err != nil {
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	var prepPlan map[string]any
	if _, err := structured.Complete(ctx, s.LLM, prepPlanPrompt(compact(resumeData), compact(jobData), compact(matchResult)), &prepPlan); err != nil {
		err = fmt.Errorf("llm prep plan: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	if count := questionCount(prepPlan); count < 15 || count > 20 {
		telemetry.Warn("session.plan.question_count", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"session_id": sessionID,
			"count":      count,
		})
	}
	if err := s.Repo.SaveArtifact(ctx, sessionID, ArtifactPrepPlan, prepPlan); err != nil {
		err = fmt.Errorf("save prep plan: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.MarkCompleted(ctx, sessionID, completedAt); err != nil {
		err = fmt.Errorf("set session result failed: %w", err)
		s.failSession(ctx, sessionID, session.UserID, err, &startedAt)
		return err
	}
	metrics.IncSessionCompleted()
	metrics.ObserveSessionDurationMs(durationMs(&startedAt, &completedAt))
	s.logStatus(ctx, session, StatusCompleted, "processing->completed", &completedAt)
	return nil
}

func (s *Service) advance(ctx context.Context, sessionID, stage string) error {
	if err := s.Repo.UpdateStage(ctx, sessionID, stage, ProgressFor(stage)); err != nil {
		return fmt.Errorf("set stage %s failed: %w", stage, err)
	}
	return nil
}

func (s *Service) failSession(ctx context.Context, sessionID, userID string, err error, startedAt *time.Time) {
	code := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := time.Now().UTC()
	if updateErr := s.Repo.MarkFailed(context.Background(), sessionID, code, msg, completedAt); updateErr != nil {
		telemetry.Error("session.fail_update_failed", map[string]any{
			"session_id": sessionID,
			"error":      updateErr.Error(),
			"orig":       msg,
		})
	}
	metrics.IncSessionFailed()
	if startedAt != nil {
		metrics.ObserveSessionDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("session.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"session_id":        sessionID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
	})
}

func (s *Service) logStatus(ctx context.Context, session Session, status, transition string, completedAt *time.Time) {
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           session.UserID,
		"session_id":        session.ID,
		"status":            status,
		"status_transition": transition,
	}
	if completedAt != nil && session.StartedAt != nil {
		fields["duration_ms"] = durationMs(session.StartedAt, completedAt)
	}
	telemetry.Info("session.status", fields)
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeLLMTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "request timeout"):
		return ErrorCodeLLMTimeout
	case strings.Contains(msg, "timeout") && strings.Contains(msg, "llm"):
		return ErrorCodeLLMTimeout
	case strings.Contains(msg, "llm output invalid"), strings.Contains(msg, "schema"),
		strings.Contains(msg, "no json object"):
		return ErrorCodeLLMSchemaMismatch
	case strings.Contains(msg, "validation"):
		return ErrorCodeValidation
	case strings.Contains(msg, "save "), strings.Contains(msg, "set stage"),
		strings.Contains(msg, "set processing"), strings.Contains(msg, "set session"),
		strings.Contains(msg, "session lookup"):
		return ErrorCodeStorage
	default:
		return ErrorCodeInternal
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func normalizeWhitespace(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

func questionCount(plan map[string]any) int {
	raw, ok := plan["likelyQuestions"]
	if !ok {
		return 0
	}
	if list, ok := raw.([]any); ok {
		return len(list)
	}
	return 0
}

func compact(value map[string]any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Timeline generates a day-by-day preparation plan from a completed run.
// Days must be within 1 to 90.
func (s *Service) Timeline(ctx context.Context, userID, sessionID string, days int) (map[string]any, error) {
	if days < 1 || days > 90 {
		return nil, fmt.Errorf("validation: days must be between 1 and 90")
	}
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != StatusCompleted || session.PrepPlan == nil {
		return nil, ErrNotReady
	}

	candidateName, _ := session.ResumeData["name"].(string)
	jobTitle, _ := session.JobData["title"].(string)
	var timeline map[string]any
	if _, err := structured.Complete(ctx, s.LLM, timelinePrompt(candidateName, jobTitle, days, compact(session.PrepPlan), compact(session.MatchResult)), &timeline); err != nil {
		return nil, fmt.Errorf("llm timeline: %w", err)
	}
	if _, ok := timeline["timeline"].([]any); !ok {
		return nil, errors.New("llm output invalid: timeline missing or not a list")
	}
	return timeline, nil
}

// Rewrite improves one resume section against the session's job description.
func (s *Service) Rewrite(ctx context.Context, userID, sessionID, section string) (map[string]any, error) {
	if strings.TrimSpace(section) == "" {
		return nil, fmt.Errorf("validation: section is required")
	}
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != StatusCompleted || session.ResumeData == nil {
		return nil, ErrNotReady
	}

	var rewrite map[string]any
	if _, err := structured.Complete(ctx, s.LLM, rewritePrompt(compact(session.ResumeData), session.JobDescription, section), &rewrite); err != nil {
		return nil, fmt.Errorf("llm rewrite: %w", err)
	}
	return rewrite, nil
}

// Summary is the short completed-run digest attached to status polls.
func Summary(session Session) map[string]any {
	if session.Status != StatusCompleted {
		return nil
	}
	name, _ := session.ResumeData["name"].(string)
	summary := map[string]any{
		"name":             name,
		"prepPlanComplete": session.PrepPlan != nil,
	}
	if score, ok := session.MatchResult["matchScore"]; ok {
		summary["matchScore"] = score
	}
	return summary
}
