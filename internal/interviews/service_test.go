package interviews

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"interview-backend/internal/llm"
	"interview-backend/internal/sessions"
	"interview-backend/internal/usage"
)

type scriptedLLM struct {
	responses []string
	err       error
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("no scripted response left")
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

type fakeSessions struct {
	sessions map[string]sessions.Session
}

func (f *fakeSessions) Get(ctx context.Context, userID, sessionID string) (sessions.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return sessions.Session{}, sessions.ErrNotFound
	}
	return s, nil
}

type staticPlans struct{ plan string }

func (p staticPlans) PlanFor(ctx context.Context, userID string) (string, error) {
	return p.plan, nil
}

func completedSession() sessions.Session {
	return sessions.Session{
		ID:     "sess-1",
		UserID: "user-1",
		Status: sessions.StatusCompleted,
		ResumeData: map[string]any{
			"name":   "Asha Rao",
			"skills": []any{"go", "postgres"},
		},
		JobData: map[string]any{
			"title":          "Backend Engineer",
			"requiredSkills": []any{"go", "aws"},
		},
	}
}

func newTestService(client llm.Client) *Service {
	return &Service{
		Repo:     NewMemoryRepo(),
		Sessions: &fakeSessions{sessions: map[string]sessions.Session{"sess-1": completedSession()}},
		Usage:    usage.NewService(),
		Plans:    staticPlans{plan: usage.PlanPro},
		LLM:      client,
	}
}

func TestStartCreatesInterviewWithGreeting(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{"Good morning Asha. Shall we begin?"}})

	result, err := svc.Start(context.Background(), "user-1", "sess-1", TypeTechnical)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Greeting != "Good morning Asha. Shall we begin?" {
		t.Fatalf("greeting = %q", result.Greeting)
	}
	if result.Interview.Status != StatusActive {
		t.Fatalf("status = %s, want %s", result.Interview.Status, StatusActive)
	}
	if len(result.Interview.Conversation) != 1 || result.Interview.Conversation[0].Role != RoleInterviewer {
		t.Fatalf("conversation = %+v", result.Interview.Conversation)
	}
	if result.Usage.Used != 1 {
		t.Fatalf("used = %d, want 1", result.Usage.Used)
	}
}

func TestStartFallsBackToCannedGreeting(t *testing.T) {
	svc := newTestService(&scriptedLLM{err: errors.New("upstream down")})

	result, err := svc.Start(context.Background(), "user-1", "sess-1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.HasPrefix(result.Greeting, "Hello Asha Rao. Welcome to your general mock interview.") {
		t.Fatalf("greeting = %q", result.Greeting)
	}
}

func TestStartNormalizesUnknownType(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{"Hello."}})
	result, err := svc.Start(context.Background(), "user-1", "sess-1", "speed-round")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if result.Interview.InterviewType != TypeGeneral {
		t.Fatalf("type = %s, want %s", result.Interview.InterviewType, TypeGeneral)
	}
}

func TestStartRequiresCompletedSession(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{"Hello."}})
	pending := completedSession()
	pending.Status = sessions.StatusProcessing
	svc.Sessions = &fakeSessions{sessions: map[string]sessions.Session{"sess-1": pending}}

	if _, err := svc.Start(context.Background(), "user-1", "sess-1", ""); !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("err = %v, want ErrSessionNotReady", err)
	}
}

func TestStartBlocksFreePlan(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{"Hello."}})
	svc.Plans = staticPlans{plan: usage.PlanFree}

	// Free plan carries zero mock interviews.
	if _, err := svc.Start(context.Background(), "user-1", "sess-1", ""); !errors.Is(err, usage.ErrLimitReached) {
		t.Fatalf("err = %v, want ErrLimitReached", err)
	}
}

func TestRespondAppendsBothTurns(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{"Hello.", "Tell me about a recent project?"}})
	result, err := svc.Start(context.Background(), "user-1", "sess-1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply, err := svc.Respond(context.Background(), "user-1", result.Interview.ID, "I am ready.")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != "Tell me about a recent project?" {
		t.Fatalf("reply = %q", reply)
	}

	interview, _ := svc.Repo.GetByID(context.Background(), result.Interview.ID)
	if len(interview.Conversation) != 3 {
		t.Fatalf("turns = %d, want 3", len(interview.Conversation))
	}
	if interview.Conversation[1].Role != RoleCandidate || interview.Conversation[2].Role != RoleInterviewer {
		t.Fatalf("roles = %s/%s", interview.Conversation[1].Role, interview.Conversation[2].Role)
	}
}

func TestRespondFallsBackWhenLLMFails(t *testing.T) {
	client := &scriptedLLM{responses: []string{"Hello."}}
	svc := newTestService(client)
	result, err := svc.Start(context.Background(), "user-1", "sess-1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	client.err = errors.New("upstream down")
	reply, err := svc.Respond(context.Background(), "user-1", result.Interview.ID, "I am ready.")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply != responseFallback {
		t.Fatalf("reply = %q, want fallback", reply)
	}

	// The fallback line still lands in the durable conversation.
	interview, _ := svc.Repo.GetByID(context.Background(), result.Interview.ID)
	last := interview.Conversation[len(interview.Conversation)-1]
	if last.Content != responseFallback {
		t.Fatalf("last turn = %q", last.Content)
	}
}

// flakyTurnRepo fails AppendTurn after the first n successful appends.
type flakyTurnRepo struct {
	Repo
	appends int
	failAt  int
}

func (r *flakyTurnRepo) AppendTurn(ctx context.Context, interviewID string, turn Turn) error {
	r.appends++
	if r.appends > r.failAt {
		return errors.New("conversation write failed")
	}
	return r.Repo.AppendTurn(ctx, interviewID, turn)
}

func TestRespondSurfacesInterviewerTurnWriteFailure(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{"Hello.", "What does your current role involve?"}})
	result, err := svc.Start(context.Background(), "user-1", "sess-1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Repo = &flakyTurnRepo{Repo: svc.Repo, failAt: 1}

	if _, err := svc.Respond(context.Background(), "user-1", result.Interview.ID, "I am ready."); err == nil || !strings.Contains(err.Error(), "save interviewer turn") {
		t.Fatalf("err = %v, want interviewer turn save failure", err)
	}
}

func TestRespondRejectsEndedInterview(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{"Hello.", `{"overallScore":50}`}})
	result, err := svc.Start(context.Background(), "user-1", "sess-1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.End(context.Background(), "user-1", result.Interview.ID); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := svc.Respond(context.Background(), "user-1", result.Interview.ID, "hi"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("err = %v, want ErrNotActive", err)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	client := &scriptedLLM{responses: []string{"Hello.", `{"overallScore":70,"technicalAssessment":{"score":65}}`}}
	svc := newTestService(client)
	result, err := svc.Start(context.Background(), "user-1", "sess-1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, err := svc.End(context.Background(), "user-1", result.Interview.ID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if first.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", first.Status, StatusCompleted)
	}

	second, err := svc.End(context.Background(), "user-1", result.Interview.ID)
	if err != nil {
		t.Fatalf("second End: %v", err)
	}
	if second.Status != StatusCompleted {
		t.Fatalf("second status = %s", second.Status)
	}

	waitForAnalysis(t, svc, result.Interview.ID)

	// One greeting plus one analysis run; the second End must not have
	// scheduled another analysis.
	if client.calls != 2 {
		t.Fatalf("llm calls = %d, want 2", client.calls)
	}
}

func TestEndClaimsAnalysisOnce(t *testing.T) {
	endedAt := time.Now().UTC()
	repo := NewMemoryRepo()
	if err := repo.Create(context.Background(), Interview{ID: "iv-1", UserID: "user-1", Status: StatusActive}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	claimed, err := repo.MarkEnded(context.Background(), "iv-1", endedAt)
	if err != nil || !claimed {
		t.Fatalf("first MarkEnded = %v, %v, want claimed", claimed, err)
	}
	claimed, err = repo.MarkEnded(context.Background(), "iv-1", endedAt)
	if err != nil {
		t.Fatalf("second MarkEnded: %v", err)
	}
	if claimed {
		t.Fatal("second MarkEnded must not win the claim")
	}
}

func TestEndRunsAnalysis(t *testing.T) {
	analysis := `{"overallScore":72,"technicalAssessment":{"score":68},"communicationAssessment":{"score":75},"behavioralAssessment":{"score":70}}`
	svc := newTestService(&scriptedLLM{responses: []string{"Hello.", analysis}})
	result, err := svc.Start(context.Background(), "user-1", "sess-1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.End(context.Background(), "user-1", result.Interview.ID); err != nil {
		t.Fatalf("End: %v", err)
	}

	interview := waitForAnalysis(t, svc, result.Interview.ID)
	if interview.AnalysisStatus != AnalysisCompleted {
		t.Fatalf("analysis status = %s (err=%v)", interview.AnalysisStatus, interview.AnalysisError)
	}
	if interview.Analysis["overallScore"] != float64(72) {
		t.Fatalf("analysis = %v", interview.Analysis)
	}
}

func waitForAnalysis(t *testing.T, svc *Service, interviewID string) Interview {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		interview, err := svc.Repo.GetByID(context.Background(), interviewID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if interview.AnalysisStatus == AnalysisCompleted || interview.AnalysisStatus == AnalysisFailed {
			return interview
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("analysis did not finish")
	return Interview{}
}

func TestGetRejectsOtherUsers(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{"Hello."}})
	result, err := svc.Start(context.Background(), "user-1", "sess-1", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Get(context.Background(), "someone-else", result.Interview.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExtractQuestionsSkipsClosers(t *testing.T) {
	conversation := []Turn{
		{Role: RoleInterviewer, Content: "Can you tell me about yourself?"},
		{Role: RoleCandidate, Content: "Sure, I am a backend engineer."},
		{Role: RoleInterviewer, Content: "Okay. How would you design a rate limiter?"},
		{Role: RoleInterviewer, Content: "Thank you for your time. Any questions about this mock interview?"},
		{Role: RoleInterviewer, Content: "This concludes our mock interview."},
	}
	questions := ExtractQuestions(conversation)
	if len(questions) != 2 {
		t.Fatalf("questions = %v", questions)
	}
	if !strings.Contains(questions[1], "rate limiter") {
		t.Fatalf("questions = %v", questions)
	}
}

func TestTranscriptLabelsSpeakers(t *testing.T) {
	conversation := []Turn{
		{Role: RoleInterviewer, Content: "Hello."},
		{Role: RoleCandidate, Content: "Hi."},
	}
	got := Transcript(conversation)
	want := "Interviewer: Hello.\nCandidate: Hi."
	if got != want {
		t.Fatalf("transcript = %q, want %q", got, want)
	}
}

func TestProgressHistoryComputesTrends(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, score := range []int{40, 70} {
		ended := base.AddDate(0, 0, i*7)
		interview := Interview{
			ID:             string(rune('a'+i)) + "-interview",
			UserID:         "user-1",
			SessionID:      "sess-1",
			InterviewType:  TypeGeneral,
			Status:         StatusCompleted,
			AnalysisStatus: AnalysisCompleted,
			Analysis: map[string]any{
				"overallScore":            float64(score),
				"technicalAssessment":     map[string]any{"score": float64(score - 5)},
				"communicationAssessment": map[string]any{"score": float64(score + 5)},
				"behavioralAssessment":    map[string]any{"score": float64(score)},
			},
			StartedAt: ended.Add(-30 * time.Minute),
			EndedAt:   &ended,
			CreatedAt: ended,
			UpdatedAt: ended,
		}
		if err := svc.Repo.Create(ctx, interview); err != nil {
			t.Fatalf("seed interview: %v", err)
		}
	}

	history, err := svc.ProgressHistory(ctx, "user-1", "sess-1")
	if err != nil {
		t.Fatalf("ProgressHistory: %v", err)
	}
	if len(history.Interviews) != 2 {
		t.Fatalf("interviews = %d, want 2", len(history.Interviews))
	}
	if history.Interviews[0].OverallScore != 40 {
		t.Fatalf("history not sorted oldest first: %+v", history.Interviews)
	}
	if history.Trends["overallImprovement"] != 30 {
		t.Fatalf("trends = %v", history.Trends)
	}
	if history.Trends["timespan"] != "7 days" {
		t.Fatalf("timespan = %v", history.Trends["timespan"])
	}
}

func TestProgressHistoryEmptyWithoutAnalyses(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	history, err := svc.ProgressHistory(context.Background(), "user-1", "sess-1")
	if err != nil {
		t.Fatalf("ProgressHistory: %v", err)
	}
	if len(history.Interviews) != 0 || len(history.Trends) != 0 {
		t.Fatalf("history = %+v", history)
	}
}
